package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/torsoroso16/api-project/internal/domain/cache"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb), mr
}

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "refresh_token:abc", []byte(`{"userId":1}`), time.Hour))
	assert.Equal(t, time.Hour, mr.TTL("refresh_token:abc"))

	got, err := c.Get(ctx, "refresh_token:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":1}`, string(got))

	ok, err := c.Exists(ctx, "refresh_token:abc")
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := c.Delete(ctx, "refresh_token:abc")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete(ctx, "refresh_token:abc")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Get(ctx, "refresh_token:abc")
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestCache_ExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.Set(ctx, "revoked_token:j1", []byte("1"), 5*time.Second))
	mr.FastForward(6 * time.Second)

	ok, err := c.Exists(ctx, "revoked_token:j1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Incr(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	n, err := c.Incr(ctx, "login_failures:a@x.com", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	mr.FastForward(5 * time.Minute)

	n, err = c.Incr(ctx, "login_failures:a@x.com", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 10*time.Minute, mr.TTL("login_failures:a@x.com"))
}

func TestCache_Sweep(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, mr.Set("revoked_token:no-ttl", "1"))
	require.NoError(t, mr.Set("revoked_token:long", "1"))
	mr.SetTTL("revoked_token:long", 90*24*time.Hour)
	require.NoError(t, mr.Set("revoked_token:short", "1"))
	mr.SetTTL("revoked_token:short", time.Hour)
	require.NoError(t, mr.Set("password_reset:x", "1"))

	n, err := c.Sweep(ctx, "revoked_token:", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, 30*24*time.Hour, mr.TTL("revoked_token:no-ttl"))
	assert.Equal(t, 30*24*time.Hour, mr.TTL("revoked_token:long"))
	assert.Equal(t, time.Hour, mr.TTL("revoked_token:short"))
	assert.Zero(t, mr.TTL("password_reset:x"))

	n, err = c.Sweep(ctx, "revoked_token:", 30*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_ErrorsSurface(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cache.ErrMiss)
}
