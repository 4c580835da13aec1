package notification

import "context"

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipient string, limit int) ([]*Notification, error)
}
