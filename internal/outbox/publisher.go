package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/notification"
	"github.com/torsoroso16/api-project/internal/domain/outbox"
)

// Publisher records outgoing emails and security events as outbox rows.
// When ctx carries a transaction the row commits with it.
type Publisher struct {
	repo outbox.Repository
	now  func() time.Time
}

func NewPublisher(repo outbox.Repository) *Publisher {
	return &Publisher{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (p *Publisher) SendVerificationEmail(ctx context.Context, email, token string) error {
	return p.email(ctx, notification.EmailVerification, email, token)
}

func (p *Publisher) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return p.email(ctx, notification.EmailPasswordReset, email, token)
}

func (p *Publisher) PublishSecurityEvent(ctx context.Context, ev auth.SecurityEvent) error {
	return p.enqueue(ctx, outbox.KindSecurityEvent, ev)
}

func (p *Publisher) email(ctx context.Context, kind notification.EmailKind, to, token string) error {
	return p.enqueue(ctx, outbox.KindEmailRequested, notification.EmailRequested{
		Kind:        kind,
		To:          strings.ToLower(strings.TrimSpace(to)),
		Token:       token,
		RequestedAt: p.now(),
	})
}

func (p *Publisher) enqueue(ctx context.Context, kind outbox.Kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	return p.repo.Enqueue(ctx, ulid.Make().String(), kind, data)
}
