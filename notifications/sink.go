package notifications

import (
	"context"
	"log"
	"time"

	"github.com/coreybb/quorum/models"
	"github.com/google/uuid"
)

// Store persists notification records.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Sink writes in-app notifications. Sends are best-effort: a storage
// failure is logged and discarded so callers cannot depend on it.
type Sink struct {
	store Store
}

func NewSink(store Store) *Sink {
	return &Sink{store: store}
}

func (s *Sink) Notify(ctx context.Context, userID string, notificationType models.NotificationType, title, message string, data map[string]any) {
	n := &models.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		log.Printf("WARN (NotificationSink): Failed to record %s notification for user %s: %v",
			notificationType, userID, err)
	}
}
