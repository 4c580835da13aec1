package auth

import (
	"context"
	"time"
)

// Ledger is the authoritative store of refresh token state.
type Ledger interface {
	Create(ctx context.Context, t *RefreshToken) error
	// FindByJti returns only non-revoked rows.
	FindByJti(ctx context.Context, jti string) (*RefreshToken, error)
	// IsRevoked reports whether a revoked row exists for jti.
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Revoke reports whether this call moved the row from active to revoked.
	Revoke(ctx context.Context, jti string) (bool, error)
	RevokeAllByUser(ctx context.Context, userID int64) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
