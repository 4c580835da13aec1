package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/torsoroso16/api-project/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const (
	// users row and its role links go in one statement
	qUserInsert = `
WITH ins AS (
    INSERT INTO users (email, name, password_hash, is_active, is_email_verified, email_verification_token)
    VALUES ($1, $2, $3, $4, $5, $6)
    RETURNING id, created_at, updated_at
), links AS (
    INSERT INTO user_roles (user_id, role_id)
    SELECT ins.id, r.id FROM ins JOIN roles r ON r.name = ANY($7::text[])
)
SELECT id, created_at, updated_at FROM ins;`

	qUserSelect = `
SELECT u.id, u.email, u.name, u.password_hash, u.is_active, u.is_email_verified,
       u.email_verification_token, u.created_at, u.updated_at,
       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}') AS roles
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id
`
	qUserByID          = qUserSelect + `WHERE u.id = $1 GROUP BY u.id;`
	qUserByEmail       = qUserSelect + `WHERE u.email = $1 GROUP BY u.id;`
	qUserByVerifyToken = qUserSelect + `WHERE u.email_verification_token = $1 GROUP BY u.id;`

	qUserPatch = `
UPDATE users
SET name                     = COALESCE($2::text, name),
    password_hash            = COALESCE($3::text, password_hash),
    is_active                = COALESCE($4::boolean, is_active),
    is_email_verified        = COALESCE($5::boolean, is_email_verified),
    email_verification_token = CASE WHEN $6::boolean THEN NULL ELSE email_verification_token END,
    updated_at               = NOW()
WHERE id = $1;`

	qRoleByName = `
SELECT id, name, COALESCE(description, '')
FROM roles
WHERE name = $1;`
)

func (r *UserRepo) Create(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	err := r.db.execQueryer(ctx).QueryRow(ctx, qUserInsert,
		u.Email, u.Name, u.PasswordHash, u.IsActive, u.IsEmailVerified, u.VerificationToken, roles,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user insert: %w", ErrConflict)
		}
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*user.User, error) {
	return r.findOne(ctx, qUserByID, id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, qUserByEmail, email)
}

func (r *UserRepo) FindByVerificationToken(ctx context.Context, token string) (*user.User, error) {
	return r.findOne(ctx, qUserByVerifyToken, token)
}

func (r *UserRepo) Update(ctx context.Context, id int64, p user.Patch) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserPatch,
		id, p.Name, p.PasswordHash, p.IsActive, p.IsEmailVerified, p.ClearVerificationToken,
	)
	if err != nil {
		return fmt.Errorf("user update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) FindRoleByName(ctx context.Context, name string) (*user.Role, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var role user.Role
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRoleByName, name).
		Scan(&role.ID, &role.Name, &role.Description); err != nil {
		if notFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("role by name: %w", err)
	}
	return &role, nil
}

func (r *UserRepo) findOne(ctx context.Context, q string, arg any) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var u user.User
	if err := scanUser(r.db.execQueryer(ctx).QueryRow(ctx, q, arg), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUser(row pgx.Row, out *user.User) error {
	if err := row.Scan(
		&out.ID, &out.Email, &out.Name, &out.PasswordHash, &out.IsActive, &out.IsEmailVerified,
		&out.VerificationToken, &out.CreatedAt, &out.UpdatedAt, &out.Roles,
	); err != nil {
		if notFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("scan user: %w", err)
	}
	return nil
}
