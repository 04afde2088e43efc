package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/pkg/kvstore"
	"github.com/google/uuid"
)

const notificationTTL = 90 * 24 * time.Hour

// Notify stores an in-app notification for userID.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, kind, title, body string) (*domain.Notification, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate notification id: %w", err)
	}
	return s.storeNotification(ctx, id, userID, kind, title, body)
}

// notifyOnce stores a notification whose id is derived from dedupeKey, so a
// redelivered event does not notify twice.
func (s *Service) notifyOnce(ctx context.Context, userID uuid.UUID, dedupeKey, kind, title, body string) (*domain.Notification, error) {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("fundlink:notification:"+dedupeKey))
	existing, err := s.notifications.Get(ctx, userID.String(), id.String())
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) {
		return nil, err
	}
	return s.storeNotification(ctx, id, userID, kind, title, body)
}

func (s *Service) storeNotification(ctx context.Context, id, userID uuid.UUID, kind, title, body string) (*domain.Notification, error) {
	notification := domain.Notification{
		ID:        id,
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.notifications.Put(ctx, notification, notificationTTL, userID.String(), id.String()); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	return &notification, nil
}

// ListNotifications returns the caller's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, user *domain.User) ([]domain.Notification, error) {
	items, err := s.notifications.List(ctx, user.ID.String())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

// MarkNotificationRead flags one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, user *domain.User, notificationID uuid.UUID) (*domain.Notification, error) {
	notification, err := s.notifications.Get(ctx, user.ID.String(), notificationID.String())
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	if notification.Read {
		return &notification, nil
	}
	notification.Read = true
	if err := s.notifications.Put(ctx, notification, notificationTTL, user.ID.String(), notificationID.String()); err != nil {
		return nil, err
	}
	return &notification, nil
}
