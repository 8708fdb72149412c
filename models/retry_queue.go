package models

import "time"

// RetryStatus defines the set of allowed statuses for a RetryQueueItem.
type RetryStatus string

const (
	RetryStatusPending   RetryStatus = "pending"
	RetryStatusRetrying  RetryStatus = "retrying"
	RetryStatusCompleted RetryStatus = "completed"
	RetryStatusFailed    RetryStatus = "failed"
)

// IsTerminal reports whether no further transitions occur for an item
// in this status.
func (s RetryStatus) IsTerminal() bool {
	return s == RetryStatusCompleted || s == RetryStatusFailed
}

// FailedRecipient is one recipient still awaiting successful delivery.
type FailedRecipient struct {
	Email     string `json:"email"`
	LastError string `json:"last_error,omitempty"`
}

// RetryQueueItem tracks the remaining recipients for one distribution
// that experienced partial or total failure. FailedRecipients shrinks
// across successful retries; once Status is completed or failed the
// item is read-only.
type RetryQueueItem struct {
	ID               string            `json:"id"`
	DistributionID   string            `json:"distribution_id"`
	MeetingID        string            `json:"meeting_id"`
	PDFGenerationID  string            `json:"pdf_generation_id"`
	FailedRecipients []FailedRecipient `json:"failed_recipients"`
	RetryCount       int               `json:"retry_count"`
	MaxRetries       int               `json:"max_retries"`
	Status           RetryStatus       `json:"status"`
	NextRetryAt      time.Time         `json:"next_retry_at"`
	LastRetryAt      *time.Time        `json:"last_retry_at,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// RetryQueueUpdate is the partial update applied to a queue item after
// one retry attempt. Nil fields are left unchanged.
type RetryQueueUpdate struct {
	Status           *RetryStatus
	FailedRecipients []FailedRecipient
	RetryCount       *int
	NextRetryAt      *time.Time
	LastError        *string
}
