package auth

import (
	"time"
)

type RefreshToken struct {
	ID        int64
	Jti       string
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

type EventKind string

const (
	EventRefreshTokenReuse     EventKind = "REFRESH_TOKEN_REUSE_DETECTED"
	EventRepeatedLoginFailures EventKind = "REPEATED_LOGIN_FAILURES"
	EventPasswordChanged       EventKind = "PASSWORD_CHANGED"
	EventPasswordReset         EventKind = "PASSWORD_RESET"
)

type SecurityEvent struct {
	Kind      EventKind      `json:"event"`
	UserID    *int64         `json:"userId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
