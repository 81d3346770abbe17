package notification

import "context"

// Store persists notifications for in-app retrieval.
type Store interface {
	Save(ctx context.Context, n *Notification) error
	ListByRecipient(ctx context.Context, recipientID string, unreadOnly bool) ([]*Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}
