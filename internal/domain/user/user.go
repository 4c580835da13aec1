package user

import (
	"slices"
	"time"
)

type User struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	PasswordHash      string    `json:"-"`
	IsActive          bool      `json:"is_active"`
	IsEmailVerified   bool      `json:"is_email_verified"`
	VerificationToken *string   `json:"-"`
	Roles             []string  `json:"roles"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u *User) HasRole(name string) bool { return slices.Contains(u.Roles, name) }

type Role struct {
	ID          int64
	Name        string
	Description string
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Name                   *string
	PasswordHash           *string
	IsActive               *bool
	IsEmailVerified        *bool
	ClearVerificationToken bool
}
