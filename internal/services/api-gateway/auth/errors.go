package auth

import (
	"errors"
	"fmt"

	"github.com/torsoroso16/api-project/internal/domain"
)

var (
	ErrConflict               = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrAccountDisabled        = errors.New("account is disabled")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrConfiguration          = errors.New("default role is not configured")
	ErrNotFound               = domain.ErrNotFound

	// ErrTokenReuseDetected reads the same as ErrInvalidRefreshToken to the
	// caller and matches it under errors.Is.
	ErrTokenReuseDetected = fmt.Errorf("%w", ErrInvalidRefreshToken)
)

// IsReuse tells a reuse rejection apart from an ordinary invalid token.
func IsReuse(err error) bool { return errors.Is(err, ErrTokenReuseDetected) }
