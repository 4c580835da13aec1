package repo

import (
	"context"
	"time"

	"github.com/torsoroso16/api-project/internal/domain/notification"
)

type NotificationRepo struct{ R notification.Repo }

func (a NotificationRepo) Create(ctx context.Context, n *notification.Notification) error {
	return a.R.Create(ctx, &notification.Notification{
		Kind: n.Kind, Recipient: n.Recipient, SentAt: n.SentAt, Payload: n.Payload,
	})
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
