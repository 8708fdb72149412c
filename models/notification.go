package models

import "time"

// NotificationType defines the set of allowed notification types.
type NotificationType string

const (
	NotificationTypeDistributionFailed NotificationType = "distribution_failed"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
