package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/torsoroso16/api-project/internal/repository/memory"
	"github.com/torsoroso16/api-project/internal/services/scheduler/repo"
)

type fakeLedger struct {
	expiresAt []time.Time
	err       error
	calls     int
}

func (f *fakeLedger) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	var kept []time.Time
	var n int64
	for _, e := range f.expiresAt {
		if e.Before(now) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.expiresAt = kept
	return n, nil
}

func TestSweepExpiredTokens_Idempotent(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := &fakeLedger{expiresAt: []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Hour)}}
	uc := NewUC(l, nil, 30*24*time.Hour, nil)
	uc.Now = func() time.Time { return now }

	require.NoError(t, uc.SweepExpiredTokens(context.Background()))
	assert.Len(t, l.expiresAt, 1)

	require.NoError(t, uc.SweepExpiredTokens(context.Background()))
	assert.Len(t, l.expiresAt, 1)
	assert.Equal(t, 2, l.calls)
}

func TestSweepExpiredTokens_WrapsError(t *testing.T) {
	uc := NewUC(&fakeLedger{err: errors.New("conn refused")}, nil, time.Hour, nil)
	err := uc.SweepExpiredTokens(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete expired tokens")
}

func TestSweepRevocationMarkers(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := func() time.Time { return now }
	c := memory.NewCache().WithClock(clk)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "revoked_token:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "revoked_token:b", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "other:c", []byte("1"), time.Minute))

	now = now.Add(2 * time.Minute)
	uc := NewUC(&fakeLedger{}, repo.Markers{S: c, Prefixes: []string{"revoked_token:"}}, 30*24*time.Hour, nil)

	require.NoError(t, uc.SweepRevocationMarkers(ctx))
	ok, err := c.Exists(ctx, "revoked_token:b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, uc.SweepRevocationMarkers(ctx))
}

func TestSweepRevocationMarkers_BoundedPerPrefix(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := memory.NewCache().WithClock(func() time.Time { return now })
	ctx := context.Background()

	// both lost their TTL
	require.NoError(t, c.Set(ctx, "login_failures:a@x.com", []byte("3"), 0))
	require.NoError(t, c.Set(ctx, "revoked_token:a", []byte("1"), 0))

	markers := repo.Markers{
		S:        c,
		Prefixes: []string{"revoked_token:", "login_failures:"},
		Bounds:   map[string]time.Duration{"login_failures:": 15 * time.Minute},
	}
	uc := NewUC(&fakeLedger{}, markers, 30*24*time.Hour, nil)
	require.NoError(t, uc.SweepRevocationMarkers(ctx))

	now = now.Add(16 * time.Minute)
	ok, err := c.Exists(ctx, "login_failures:a@x.com")
	require.NoError(t, err)
	assert.False(t, ok, "failure counter re-armed past its window")

	ok, err = c.Exists(ctx, "revoked_token:a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTasks_DefaultIntervals(t *testing.T) {
	uc := NewUC(&fakeLedger{}, nil, time.Hour, nil)
	tasks := uc.Tasks(Intervals{})
	require.Len(t, tasks, 2)
	assert.Equal(t, 24*time.Hour, tasks[0].Every)
	assert.Equal(t, 7*24*time.Hour, tasks[1].Every)
}

type fakeOutbox struct{ before time.Time }

func (f *fakeOutbox) PurgeDelivered(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return 4, nil
}

func TestPurgeDeliveredOutbox(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ob := &fakeOutbox{}
	uc := NewUC(&fakeLedger{}, nil, time.Hour, nil)
	uc.Now = func() time.Time { return now }

	require.NoError(t, uc.PurgeDeliveredOutbox(context.Background()))
	assert.True(t, ob.before.IsZero())

	uc.Outbox = ob
	require.NoError(t, uc.PurgeDeliveredOutbox(context.Background()))
	assert.Equal(t, now.Add(-DefaultOutboxRetention), ob.before)

	tasks := uc.Tasks(Intervals{Outbox: time.Hour})
	require.Len(t, tasks, 3)
	assert.Equal(t, "outbox_purge", tasks[2].Name)
	assert.Equal(t, time.Hour, tasks[2].Every)
}
