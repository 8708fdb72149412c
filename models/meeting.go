package models

import "time"

type Meeting struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MeetingOwner is the projection used to address owner-facing
// notifications without loading the full meeting record.
type MeetingOwner struct {
	MeetingID   string `json:"meeting_id"`
	Title       string `json:"title"`
	OwnerUserID string `json:"owner_user_id"`
}
