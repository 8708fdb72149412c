package models

import "time"

// DistributionStatus defines the set of allowed statuses for a Distribution.
type DistributionStatus string

const (
	DistributionStatusSuccess DistributionStatus = "success"
	DistributionStatusPartial DistributionStatus = "partial"
	DistributionStatusFailed  DistributionStatus = "failed"
)

// RecipientStatus is the per-recipient delivery outcome recorded on a
// distribution's recipient details.
type RecipientStatus string

const (
	RecipientStatusSent   RecipientStatus = "sent"
	RecipientStatusFailed RecipientStatus = "failed"
)

// Distribution is the history ledger entry for one send of a generated
// minutes PDF to a recipient list. Counts and recipient details are
// updated in place as retries resolve recipients.
type Distribution struct {
	ID              string             `json:"id"`
	MeetingID       string             `json:"meeting_id"`
	PDFGenerationID string             `json:"pdf_generation_id"`
	TotalRecipients int                `json:"total_recipients"`
	SuccessfulCount int                `json:"successful_count"`
	FailedCount     int                `json:"failed_count"`
	Status          DistributionStatus `json:"status"`
	Recipients      []RecipientDetail  `json:"recipients"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// RecipientDetail records one recipient's delivery outcome. A recipient
// that succeeds on a later retry is updated in place with Retried set,
// never duplicated.
type RecipientDetail struct {
	Email   string          `json:"email"`
	Status  RecipientStatus `json:"status"`
	Error   string          `json:"error,omitempty"`
	Retried bool            `json:"retried,omitempty"`
	SentAt  *time.Time      `json:"sent_at,omitempty"`
}

// DeriveDistributionStatus computes the ledger status from aggregate
// counts: no failures is success, any success alongside failures is
// partial, otherwise failed.
func DeriveDistributionStatus(successfulCount, failedCount int) DistributionStatus {
	switch {
	case failedCount == 0:
		return DistributionStatusSuccess
	case successfulCount > 0:
		return DistributionStatusPartial
	default:
		return DistributionStatusFailed
	}
}
