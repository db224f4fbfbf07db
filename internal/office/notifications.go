package office

import (
	"context"
	"strings"

	"github.com/halolight/halolight-api-go/internal/auth"
)

func (s *Service) ListNotifications(ctx context.Context, actor auth.Identity, q NotificationQuery) (auth.Page[Notification], error) {
	q.UserID = actor.UserID
	q.Page, q.PageSize = normalizePage(q.Page, q.PageSize)
	items, total, err := s.store.ListNotifications(ctx, q)
	if err != nil {
		return auth.Page[Notification]{}, err
	}
	if items == nil {
		items = []Notification{}
	}
	return auth.Page[Notification]{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

func (s *Service) UnreadCount(ctx context.Context, actor auth.Identity) (int64, error) {
	return s.store.CountUnread(ctx, actor.UserID)
}

// MarkRead marks one of the caller's notifications read. Other users'
// notifications are NotFound.
func (s *Service) MarkRead(ctx context.Context, actor auth.Identity, id string) error {
	if err := s.store.MarkNotificationRead(ctx, actor.UserID, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidateStats(actor.UserID)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor auth.Identity) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, actor.UserID)
	if err != nil {
		return 0, err
	}
	s.invalidateStats(actor.UserID)
	return n, nil
}

func (s *Service) DeleteNotification(ctx context.Context, actor auth.Identity, id string) error {
	if err := s.store.DeleteNotification(ctx, actor.UserID, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidateStats(actor.UserID)
	return nil
}
