package repo

import (
	"context"
	"errors"
	"time"

	"github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/cache"
)

type Ledger struct{ L auth.Ledger }

func (a Ledger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return a.L.DeleteExpired(ctx, now)
}

// Markers sweeps each prefix in turn; one failing prefix does not stop the rest.
// Bounds lowers the TTL cap for individual prefixes.
type Markers struct {
	S        cache.Sweeper
	Prefixes []string
	Bounds   map[string]time.Duration
}

func (m Markers) Sweep(ctx context.Context, maxTTL time.Duration) (int, error) {
	total := 0
	var errs []error
	for _, p := range m.Prefixes {
		ttl := maxTTL
		if b := m.Bounds[p]; b > 0 && b < ttl {
			ttl = b
		}
		n, err := m.S.Sweep(ctx, p, ttl)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}
