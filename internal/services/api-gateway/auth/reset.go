package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/torsoroso16/api-project/internal/domain/cache"
)

type resetRecord struct {
	UserID    int64     `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// resetTokens is the single-use password reset store on top of the cache.
type resetTokens struct {
	cache cache.Cache
}

func (r resetTokens) put(ctx context.Context, token string, rec resetRecord, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reset record: %w", err)
	}
	return r.cache.Set(ctx, ResetPrefix+token, b, ttl)
}

// get returns nil, nil for an unknown token.
func (r resetTokens) get(ctx context.Context, token string) (*resetRecord, error) {
	b, err := r.cache.Get(ctx, ResetPrefix+token)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec resetRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, nil
	}
	return &rec, nil
}

// claim deletes the token; only the caller that actually removed it may use it.
func (r resetTokens) claim(ctx context.Context, token string) (bool, error) {
	return r.cache.Delete(ctx, ResetPrefix+token)
}
