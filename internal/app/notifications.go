package app

import (
	"context"

	"codecollab/api/internal/store"
)

func (s *Service) ListNotifications(ctx context.Context, caller Caller) ([]store.Notification, error) {
	return s.store.ListNotifications(ctx, caller.UserID)
}

// MarkAllNotificationsRead flips the caller's unread notifications and
// returns how many changed.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, caller Caller) (int64, error) {
	return s.store.MarkAllNotificationsRead(ctx, caller.UserID)
}
