package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/torsoroso16/api-project/internal/domain/cache"
)

var (
	_ cache.Cache   = (*Cache)(nil)
	_ cache.Sweeper = (*Cache)(nil)
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache is the in-process stand-in used when redis is disabled and in tests.
// Expired entries are hidden on read and removed by Sweep.
type Cache struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]entry), now: time.Now}
}

func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = e
	return nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *Cache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	delete(c.items, key)
	return ok, nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	return ok, nil
}

func (c *Cache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	e, ok := c.lookup(key)
	if ok {
		n, _ = strconv.ParseInt(string(e.value), 10, 64)
	} else {
		e = entry{}
		if ttl > 0 {
			e.expiresAt = c.now().Add(ttl)
		}
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	c.items[key] = e
	return n, nil
}

func (c *Cache) Sweep(_ context.Context, prefix string, maxTTL time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	limit := now.Add(maxTTL)
	n := 0
	for k, e := range c.items {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		switch {
		case e.expired(now):
			delete(c.items, k)
			n++
		case e.expiresAt.IsZero() || e.expiresAt.After(limit):
			e.expiresAt = limit
			c.items[k] = e
			n++
		}
	}
	return n, nil
}

// Len counts live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, e := range c.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (c *Cache) lookup(key string) (entry, bool) {
	e, ok := c.items[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(c.now()) {
		delete(c.items, key)
		return entry{}, false
	}
	return e, true
}
