package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/torsoroso16/api-project/internal/domain/cache"
)

var (
	_ cache.Cache   = (*Cache)(nil)
	_ cache.Sweeper = (*Cache)(nil)
)

type Cache struct {
	rdb redis.UniversalClient
}

func NewCache(rdb redis.UniversalClient) *Cache { return &Cache{rdb: rdb} }

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (c *Cache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 && ttl > 0 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return n, fmt.Errorf("redis expire: %w", err)
		}
	}
	return n, nil
}

// Sweep re-arms keys under prefix that have no TTL or one longer than
// maxTTL. Redis expires the rest on its own.
func (c *Cache) Sweep(ctx context.Context, prefix string, maxTTL time.Duration) (int, error) {
	fixed := 0
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := c.rdb.TTL(ctx, key).Result()
		if err != nil {
			return fixed, fmt.Errorf("redis ttl %s: %w", key, err)
		}
		// -2: gone since SCAN returned it, -1: no expiry
		if ttl == -2 {
			continue
		}
		if ttl == -1 || ttl > maxTTL {
			if err := c.rdb.Expire(ctx, key, maxTTL).Err(); err != nil {
				return fixed, fmt.Errorf("redis expire %s: %w", key, err)
			}
			fixed++
		}
	}
	if err := iter.Err(); err != nil {
		return fixed, fmt.Errorf("redis scan: %w", err)
	}
	return fixed, nil
}
