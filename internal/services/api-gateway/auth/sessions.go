package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	domainauth "github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/cache"
	"go.uber.org/zap"
)

// Cache key prefixes. The scheduler sweeps the ones that can outlive a token.
const (
	RefreshPrefix       = "refresh_token:"
	RevokedPrefix       = "revoked_token:"
	ResetPrefix         = "password_reset:"
	LoginFailuresPrefix = "login_failures:"
)

var SweptPrefixes = []string{RevokedPrefix, RefreshPrefix, LoginFailuresPrefix}

// SweepBounds caps the TTL the sweep may re-arm per prefix, below the refresh
// token lifetime. Failure counters never outlive their window.
func SweepBounds(loginFailureWindow time.Duration) map[string]time.Duration {
	if loginFailureWindow <= 0 {
		loginFailureWindow = DefaultLoginFailureWindow
	}
	return map[string]time.Duration{LoginFailuresPrefix: loginFailureWindow}
}

type refreshRecord struct {
	UserID    int64     `json:"userId"`
	TokenHash string    `json:"tokenHash"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// sessions keeps the cache in step with the ledger. Callers write the ledger
// first; cache failures here are logged and never fail the caller.
type sessions struct {
	ledger domainauth.Ledger
	cache  cache.Cache
	log    *zap.Logger
	now    func() time.Time
}

// remember caches the record of a freshly persisted refresh token.
func (s *sessions) remember(ctx context.Context, rt *domainauth.RefreshToken) {
	if rt == nil {
		return
	}
	ttl := rt.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	b, _ := json.Marshal(refreshRecord{UserID: rt.UserID, TokenHash: rt.TokenHash, ExpiresAt: rt.ExpiresAt})
	if err := s.cache.Set(ctx, RefreshPrefix+rt.Jti, b, ttl); err != nil {
		cacheFallbacks.WithLabelValues("set_refresh").Inc()
		s.log.Warn("cache refresh record", zap.String("jti", rt.Jti), zap.Error(err))
	}
}

// lookup reads the cached record and falls back to the ledger. A nil record
// with a nil error means the jti is unknown or already revoked.
func (s *sessions) lookup(ctx context.Context, jti string) (*refreshRecord, error) {
	b, err := s.cache.Get(ctx, RefreshPrefix+jti)
	if err == nil {
		var rec refreshRecord
		if jerr := json.Unmarshal(b, &rec); jerr == nil {
			return &rec, nil
		}
		_, _ = s.cache.Delete(ctx, RefreshPrefix+jti)
	} else if !errors.Is(err, cache.ErrMiss) {
		cacheFallbacks.WithLabelValues("get_refresh").Inc()
		s.log.Warn("cache refresh lookup", zap.String("jti", jti), zap.Error(err))
	}

	rt, err := s.ledger.FindByJti(ctx, jti)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &refreshRecord{UserID: rt.UserID, TokenHash: rt.TokenHash, ExpiresAt: rt.ExpiresAt}, nil
}

// revoked reports whether a revocation marker exists for jti. A cache
// error counts as "not marked"; the ledger still decides.
func (s *sessions) revoked(ctx context.Context, jti string) bool {
	ok, err := s.cache.Exists(ctx, RevokedPrefix+jti)
	if err != nil {
		cacheFallbacks.WithLabelValues("exists_marker").Inc()
		s.log.Warn("revocation marker lookup", zap.String("jti", jti), zap.Error(err))
		return false
	}
	return ok
}

// mark writes the marker for the remaining validity, then drops the cached
// record. A presentation that still finds the record reaches the ledger and
// loses the conditional revoke there.
func (s *sessions) mark(ctx context.Context, jti string, expiresAt time.Time) {
	if ttl := expiresAt.Sub(s.now()); ttl > 0 {
		if err := s.cache.Set(ctx, RevokedPrefix+jti, []byte("1"), ttl); err != nil {
			cacheFallbacks.WithLabelValues("set_marker").Inc()
			s.log.Warn("set revocation marker", zap.String("jti", jti), zap.Error(err))
		}
	}
	if _, err := s.cache.Delete(ctx, RefreshPrefix+jti); err != nil {
		cacheFallbacks.WithLabelValues("delete_refresh").Inc()
		s.log.Warn("drop cached refresh record", zap.String("jti", jti), zap.Error(err))
	}
}

// revokedInLedger asks the ledger whether jti was revoked, for presentations
// that raced past the marker before it was written.
func (s *sessions) revokedInLedger(ctx context.Context, jti string) bool {
	ok, err := s.ledger.IsRevoked(ctx, jti)
	if err != nil {
		s.log.Warn("ledger revocation lookup", zap.String("jti", jti), zap.Error(err))
		return false
	}
	return ok
}

func (s *sessions) markAll(ctx context.Context, rows []domainauth.RefreshToken) {
	for _, rt := range rows {
		s.mark(ctx, rt.Jti, rt.ExpiresAt)
	}
}
