package notification

import (
	"context"
	"errors"
	"log/slog"

	domainerrors "lifelink/pkg/domain-errors"
	"lifelink/pkg/platform/sentinel"
)

// Service exposes the in-app notification feed.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) List(ctx context.Context, recipientID string, unreadOnly bool) ([]*Notification, error) {
	out, err := s.store.ListByRecipient(ctx, recipientID, unreadOnly)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to list notifications")
	}
	return out, nil
}

func (s *Service) MarkRead(ctx context.Context, id, recipientID string) error {
	if err := s.store.MarkRead(ctx, id, recipientID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domainerrors.New(domainerrors.CodeNotFound, "notification not found")
		}
		return domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to mark notification read")
	}
	return nil
}
