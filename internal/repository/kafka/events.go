package kafka

import (
	"context"
	"strings"

	"github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/kafka"
	"github.com/torsoroso16/api-project/internal/domain/notification"
)

const (
	TopicEmailRequested = "storefront.email.requested"
	TopicSecurityEvents = "storefront.security.events"
)

var (
	_ kafka.EmailEvents    = (*EmailEventsKafka)(nil)
	_ kafka.SecurityEvents = (*SecurityEventsKafka)(nil)
)

type EmailEventsKafka struct{ p *Producer }

func NewEmailEventsKafka(p *Producer) *EmailEventsKafka { return &EmailEventsKafka{p: p} }

// PublishEmailRequested keys by recipient so one inbox keeps its order.
func (e *EmailEventsKafka) PublishEmailRequested(ctx context.Context, ev notification.EmailRequested) error {
	return e.p.PublishJSON(ctx, []byte(strings.ToLower(ev.To)), ev)
}

type SecurityEventsKafka struct{ p *Producer }

func NewSecurityEventsKafka(p *Producer) *SecurityEventsKafka { return &SecurityEventsKafka{p: p} }

func (e *SecurityEventsKafka) PublishSecurityEvent(ctx context.Context, ev auth.SecurityEvent) error {
	var key []byte
	if ev.UserID != nil {
		key = KeyFromInt64(*ev.UserID)
	}
	return e.p.PublishJSON(ctx, key, ev)
}
