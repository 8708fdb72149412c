package distribution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coreybb/quorum/models"
	"github.com/google/uuid"
)

// HistoryWriter creates distribution history entries.
type HistoryWriter interface {
	CreateDistribution(ctx context.Context, dist *models.Distribution) error
}

// QueueWriter enqueues retry items for distributions with failures.
type QueueWriter interface {
	CreateItem(ctx context.Context, item *models.RetryQueueItem) error
}

// Service performs the initial distribution of a generated minutes
// document: sends to every recipient, records the history entry, and
// enqueues a retry item covering any recipients that failed.
type Service struct {
	meetings  MeetingDirectory
	history   HistoryWriter
	queue     QueueWriter
	transport DeliveryTransport
	now       func() time.Time
}

func NewService(
	meetings MeetingDirectory,
	history HistoryWriter,
	queue QueueWriter,
	transport DeliveryTransport,
) *Service {
	return &Service{
		meetings:  meetings,
		history:   history,
		queue:     queue,
		transport: transport,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Distribute sends the document to the recipient list and returns the
// recorded history entry. Recipient-level failures do not error; they
// are captured in the entry and handed to the retry queue.
func (s *Service) Distribute(ctx context.Context, meetingID, pdfGenerationID string, emails []string) (*models.Distribution, error) {
	if len(emails) == 0 {
		return nil, fmt.Errorf("no recipients provided for meeting %s", meetingID)
	}

	owner, err := s.meetings.GetMeetingOwner(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up meeting %s: %w", meetingID, err)
	}

	artifact := ArtifactRef{
		MeetingID:       meetingID,
		PDFGenerationID: pdfGenerationID,
		MeetingTitle:    owner.Title,
	}

	now := s.now()
	results, err := s.transport.Deliver(ctx, artifact, emails)

	recipients := make([]models.RecipientDetail, 0, len(emails))
	var failedRecipients []models.FailedRecipient
	successful := 0

	if err != nil {
		log.Printf("ERROR (DistributionService): Transport failed for meeting %s: %v", meetingID, err)
		for _, email := range emails {
			recipients = append(recipients, models.RecipientDetail{
				Email:  email,
				Status: models.RecipientStatusFailed,
				Error:  err.Error(),
			})
			failedRecipients = append(failedRecipients, models.FailedRecipient{Email: email, LastError: err.Error()})
		}
	} else {
		resultByEmail := make(map[string]RecipientResult, len(results))
		for _, res := range results {
			resultByEmail[res.Email] = res
		}
		for _, email := range emails {
			res, ok := resultByEmail[email]
			if ok && res.Status == models.RecipientStatusSent {
				sentAt := now
				recipients = append(recipients, models.RecipientDetail{
					Email:  email,
					Status: models.RecipientStatusSent,
					SentAt: &sentAt,
				})
				successful++
				continue
			}
			errMsg := res.Error
			if !ok {
				errMsg = "no result returned by transport"
			}
			recipients = append(recipients, models.RecipientDetail{
				Email:  email,
				Status: models.RecipientStatusFailed,
				Error:  errMsg,
			})
			failedRecipients = append(failedRecipients, models.FailedRecipient{Email: email, LastError: errMsg})
		}
	}

	failed := len(emails) - successful
	dist := &models.Distribution{
		ID:              uuid.NewString(),
		MeetingID:       meetingID,
		PDFGenerationID: pdfGenerationID,
		TotalRecipients: len(emails),
		SuccessfulCount: successful,
		FailedCount:     failed,
		Status:          models.DeriveDistributionStatus(successful, failed),
		Recipients:      recipients,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.history.CreateDistribution(ctx, dist); err != nil {
		return nil, fmt.Errorf("failed to record distribution for meeting %s: %w", meetingID, err)
	}

	if len(failedRecipients) > 0 {
		item := &models.RetryQueueItem{
			ID:               uuid.NewString(),
			DistributionID:   dist.ID,
			MeetingID:        meetingID,
			PDFGenerationID:  pdfGenerationID,
			FailedRecipients: failedRecipients,
			RetryCount:       0,
			MaxRetries:       MaxRetries,
			Status:           models.RetryStatusPending,
			NextRetryAt:      now.Add(Backoff(1)),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.queue.CreateItem(ctx, item); err != nil {
			// The history entry already records the failures; losing
			// the queue row means no automatic retry, so surface it.
			return dist, fmt.Errorf("failed to enqueue retry item for distribution %s: %w", dist.ID, err)
		}
		log.Printf("INFO (DistributionService): Distribution %s delivered %d/%d, queued retry for %d recipient(s)",
			dist.ID, successful, len(emails), len(failedRecipients))
	} else {
		log.Printf("INFO (DistributionService): Distribution %s delivered to all %d recipient(s)", dist.ID, len(emails))
	}

	return dist, nil
}
