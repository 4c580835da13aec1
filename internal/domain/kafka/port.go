package kafka

import (
	"context"

	"github.com/torsoroso16/api-project/internal/domain/auth"
	"github.com/torsoroso16/api-project/internal/domain/notification"
)

type EmailEvents interface {
	PublishEmailRequested(ctx context.Context, ev notification.EmailRequested) error
}

type SecurityEvents interface {
	PublishSecurityEvent(ctx context.Context, ev auth.SecurityEvent) error
}
