package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Incr sets ttl only when the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Sweeper prunes entries under prefix so that none lives longer than maxTTL.
type Sweeper interface {
	Sweep(ctx context.Context, prefix string, maxTTL time.Duration) (int, error)
}
