package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/torsoroso16/api-project/internal/domain/auth"
)

var _ auth.Ledger = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct{ db *DB }

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const (
	qRTCreate = `
INSERT INTO refresh_tokens (jti, token_hash, user_id, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at;
`
	qRTFindByJti = `
SELECT id, jti::text, token_hash, user_id, expires_at, is_revoked, created_at
FROM refresh_tokens
WHERE jti = $1 AND is_revoked = FALSE;
`
	qRTIsRevoked = `
SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE jti = $1 AND is_revoked = TRUE);
`
	// conditional: concurrent callers race here and only one sees a row
	qRTRevoke = `
UPDATE refresh_tokens SET is_revoked = TRUE
WHERE jti = $1 AND is_revoked = FALSE;
`
	qRTRevokeAll = `
UPDATE refresh_tokens SET is_revoked = TRUE
WHERE user_id = $1 AND is_revoked = FALSE
RETURNING id, jti::text, token_hash, user_id, expires_at, created_at;
`
	qRTDeleteExpired = `
DELETE FROM refresh_tokens WHERE expires_at < $1;
`
)

func (r *RefreshTokenRepo) Create(ctx context.Context, t *auth.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRTCreate, t.Jti, t.TokenHash, t.UserID, t.ExpiresAt).
		Scan(&t.ID, &t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create refresh: %w", ErrConflict)
		}
		return fmt.Errorf("create refresh: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) FindByJti(ctx context.Context, jti string) (*auth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t auth.RefreshToken
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRTFindByJti, jti).
		Scan(&t.ID, &t.Jti, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find refresh by jti: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var revoked bool
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRTIsRevoked, jti).Scan(&revoked); err != nil {
		return false, fmt.Errorf("check revoked refresh: %w", err)
	}
	return revoked, nil
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, jti string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevoke, jti)
	if err != nil {
		return false, fmt.Errorf("revoke refresh: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepo) RevokeAllByUser(ctx context.Context, userID int64) ([]auth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qRTRevokeAll, userID)
	if err != nil {
		return nil, fmt.Errorf("revoke all refresh: %w", err)
	}
	defer rows.Close()

	var out []auth.RefreshToken
	for rows.Next() {
		t := auth.RefreshToken{IsRevoked: true}
		if err := rows.Scan(&t.ID, &t.Jti, &t.TokenHash, &t.UserID, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan revoked refresh: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTDeleteExpired, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh: %w", err)
	}
	return tag.RowsAffected(), nil
}
