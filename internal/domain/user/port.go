package user

import "context"

type Repo interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)
	Update(ctx context.Context, id int64, p Patch) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)
}
