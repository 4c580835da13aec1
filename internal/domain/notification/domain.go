package notification

import (
	"context"
	"time"
)

type EmailKind string

const (
	EmailVerification  EmailKind = "verification"
	EmailPasswordReset EmailKind = "password_reset"
)

// EmailRequested travels from the api-gateway outbox to the email-notifier.
type EmailRequested struct {
	Kind        EmailKind `json:"kind"`
	To          string    `json:"to"`
	Token       string    `json:"token"`
	RequestedAt time.Time `json:"requested_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Kind      EmailKind `json:"kind"`
	Recipient string    `json:"recipient"`
	SentAt    time.Time `json:"sent_at"`
	Payload   string    `json:"payload"`
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Clock interface {
	Now() time.Time
}
