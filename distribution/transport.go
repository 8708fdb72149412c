package distribution

import (
	"context"

	"github.com/coreybb/quorum/models"
)

// ArtifactRef identifies the generated minutes document being sent.
// The document itself lives in the platform's storage; recipients get
// a download link rather than an attachment.
type ArtifactRef struct {
	MeetingID       string
	PDFGenerationID string
	MeetingTitle    string
}

// RecipientResult is one recipient's outcome from a single transport call.
type RecipientResult struct {
	Email  string
	Status models.RecipientStatus
	Error  string
}

// DeliveryTransport is the adapter interface for delivery mechanisms.
// Implement this to add new transports (email, webhook, etc.).
//
// Deliver attempts a send to every address and reports a per-recipient
// result. A returned error means the transport failed wholesale and no
// per-recipient outcome is known.
type DeliveryTransport interface {
	Deliver(ctx context.Context, artifact ArtifactRef, emails []string) ([]RecipientResult, error)
}
