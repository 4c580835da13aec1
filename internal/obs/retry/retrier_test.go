package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(name string, attempts int) Policy {
	return Policy{Name: name, Attempts: attempts, Backoff: Exponential{Base: time.Millisecond}}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast("until_success", 5), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(retryOutcomes.WithLabelValues("until_success", outcomeOK)))
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	var exhausted error
	cause := errors.New("bad payload")
	p := fast("permanent", 5)
	p.OnExhaust = func(e error) { exhausted = e }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return Permanent(cause)
	})
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Error(t, exhausted)
	assert.Equal(t, 1.0, testutil.ToFloat64(retryOutcomes.WithLabelValues("permanent", outcomePermanent)))
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast("exhaust", 3), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(retryOutcomes.WithLabelValues("exhaust", outcomeExhausted)))
}

func TestDo_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{Name: "cancel", Attempts: 5, Backoff: Exponential{Base: time.Hour}}
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_AttemptTimeout(t *testing.T) {
	p := Policy{Name: "timeout", Attempts: 2, AttemptTimeout: 10 * time.Millisecond}
	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}

func TestExponential_Capped(t *testing.T) {
	b := Exponential{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, time.Second, b.Next(10))
	assert.Equal(t, time.Second, b.Next(1000))
}

func TestKafkaPolicy_DoesNotRetryCancellation(t *testing.T) {
	p := DefaultKafkaPolicy(nil)
	assert.False(t, p.Retryable(context.Canceled))
	assert.True(t, p.Retryable(errors.New("broker down")))
	assert.True(t, p.Retryable(context.DeadlineExceeded))
}
