// Package notify records per-user notifications and pushes live events to
// connected clients. Delivery is best effort by design: a failed write is
// logged and swallowed so it can never fail an enclosing pump or billing
// cycle.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nwehbe/waterops/internal/storage"
)

type Service struct {
	storage storage.Storage
	hub     *Hub
}

// NewService requires a constructed hub; wiring a nil hub is a programming
// error surfaced at first publish.
func NewService(s storage.Storage, hub *Hub) *Service {
	return &Service{storage: s, hub: hub}
}

// Notify persists a notification for the user and, on success, publishes a
// live event to all connected subscribers. Errors are logged, never returned.
func (s *Service) Notify(ctx context.Context, message, userID string) {
	n := storage.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.storage.CreateNotification(ctx, n); err != nil {
		log.Printf("notify: persist for user %s failed: %v", userID, err)
		return
	}
	s.hub.Publish(Event{
		Event:        EventNewNotification,
		UserID:       userID,
		Notification: n,
	})
}

// List returns the user's unexpired notifications, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]storage.Notification, error) {
	return s.storage.ListNotifications(ctx, userID, time.Now())
}

// Hub exposes the live-event hub for stream handlers.
func (s *Service) Hub() *Hub {
	return s.hub
}
