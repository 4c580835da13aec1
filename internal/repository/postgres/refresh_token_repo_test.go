package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/torsoroso16/api-project/internal/domain/auth"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWithPool(mock, time.Second), mock
}

const testJti = "8c3f3b9e-7c5a-4f0e-9a44-0f6f3f1d2c11"

func TestRefreshTokenRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	exp := time.Now().Add(time.Hour).UTC()
	created := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO refresh_tokens`).
		WithArgs(testJti, "hash", int64(7), exp).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), created))

	rt := &auth.RefreshToken{Jti: testJti, TokenHash: "hash", UserID: 7, ExpiresAt: exp}
	require.NoError(t, repo.Create(context.Background(), rt))
	assert.Equal(t, int64(11), rt.ID)
	assert.Equal(t, created, rt.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_CreateDuplicateJti(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)

	mock.ExpectQuery(`INSERT INTO refresh_tokens`).
		WithArgs(testJti, "hash", int64(7), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &auth.RefreshToken{Jti: testJti, TokenHash: "hash", UserID: 7, ExpiresAt: time.Now()})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRefreshTokenRepo_FindByJti(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	exp := time.Now().Add(time.Hour).UTC()

	mock.ExpectQuery(`SELECT id, jti::text, token_hash, user_id, expires_at, is_revoked, created_at\s+FROM refresh_tokens\s+WHERE jti = \$1 AND is_revoked = FALSE`).
		WithArgs(testJti).
		WillReturnRows(pgxmock.NewRows([]string{"id", "jti", "token_hash", "user_id", "expires_at", "is_revoked", "created_at"}).
			AddRow(int64(3), testJti, "hash", int64(7), exp, false, exp.Add(-time.Hour)))

	got, err := repo.FindByJti(context.Background(), testJti)
	require.NoError(t, err)
	assert.Equal(t, testJti, got.Jti)
	assert.Equal(t, int64(7), got.UserID)
	assert.False(t, got.IsRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_FindByJtiMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)

	mock.ExpectQuery(`FROM refresh_tokens`).WithArgs(testJti).WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByJti(context.Background(), testJti)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenRepo_IsRevoked(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM refresh_tokens WHERE jti = \$1 AND is_revoked = TRUE\)`).
		WithArgs(testJti).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := repo.IsRevoked(context.Background(), testJti)
	require.NoError(t, err)
	assert.True(t, revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_RevokeIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)

	mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = TRUE\s+WHERE jti = \$1 AND is_revoked = FALSE`).
		WithArgs(testJti).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = TRUE\s+WHERE jti = \$1 AND is_revoked = FALSE`).
		WithArgs(testJti).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	first, err := repo.Revoke(context.Background(), testJti)
	require.NoError(t, err)
	second, err := repo.Revoke(context.Background(), testJti)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_RevokeAllByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	exp := time.Now().Add(time.Hour).UTC()

	cols := []string{"id", "jti", "token_hash", "user_id", "expires_at", "created_at"}
	mock.ExpectQuery(`UPDATE refresh_tokens SET is_revoked = TRUE\s+WHERE user_id = \$1 AND is_revoked = FALSE\s+RETURNING`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), "a", "h1", int64(7), exp, exp).
			AddRow(int64(2), "b", "h2", int64(7), exp, exp))
	mock.ExpectQuery(`UPDATE refresh_tokens SET is_revoked = TRUE`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(cols))

	got, err := repo.RevokeAllByUser(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Jti)
	assert.True(t, got[1].IsRevoked)

	again, err := repo.RevokeAllByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, again)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepo_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestRefreshTokenRepo_JoinsAmbientTx(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	tx := NewTransactor(db, nopLogger())

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens`).WithArgs(testJti).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tx.WithTx(context.Background(), func(ctx context.Context) error {
		ok, err := repo.Revoke(ctx, testJti)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}
