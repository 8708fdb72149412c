package distribution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coreybb/quorum/models"
)

// QueueStore is the persisted retry queue as seen by the retry loop.
type QueueStore interface {
	SelectDue(ctx context.Context, limit int, now time.Time) ([]models.RetryQueueItem, error)
	ClaimForRetry(ctx context.Context, itemID string, now time.Time) (bool, error)
	UpdateItem(ctx context.Context, itemID string, update models.RetryQueueUpdate) error
}

// HistoryLedger is the distribution history record reconciled after
// each retry attempt.
type HistoryLedger interface {
	GetDistributionByID(ctx context.Context, distributionID string) (*models.Distribution, error)
	UpdateDistributionOutcome(ctx context.Context, distributionID string, successfulCount, failedCount int, status models.DistributionStatus, recipients []models.RecipientDetail) error
}

// MeetingDirectory resolves a meeting's title and owner for
// terminal-failure notifications.
type MeetingDirectory interface {
	GetMeetingOwner(ctx context.Context, meetingID string) (*models.MeetingOwner, error)
}

// NotificationSink receives best-effort notifications. Implementations
// must swallow their own failures; there is no error return, so a
// notification glitch cannot alter the caller's control flow.
type NotificationSink interface {
	Notify(ctx context.Context, userID string, notificationType models.NotificationType, title, message string, data map[string]any)
}

// RunResult is the aggregate outcome of one ProcessDueRetries run.
type RunResult struct {
	TotalProcessed int `json:"total_processed"`
	SuccessCount   int `json:"success_count"`
	FailedCount    int `json:"failed_count"`
}

// RetryService advances failed distributions toward resolution. Each
// run claims due queue items, redelivers to their remaining recipients,
// reconciles the history ledger, and either completes, reschedules, or
// terminally fails each item.
type RetryService struct {
	queue     QueueStore
	ledger    HistoryLedger
	meetings  MeetingDirectory
	notifier  NotificationSink
	transport DeliveryTransport
	metrics   *Metrics
	batchSize int
	now       func() time.Time
}

func NewRetryService(
	queue QueueStore,
	ledger HistoryLedger,
	meetings MeetingDirectory,
	notifier NotificationSink,
	transport DeliveryTransport,
	metrics *Metrics,
) *RetryService {
	return &RetryService{
		queue:     queue,
		ledger:    ledger,
		meetings:  meetings,
		notifier:  notifier,
		transport: transport,
		metrics:   metrics,
		batchSize: RetryBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock.
func (s *RetryService) WithClock(now func() time.Time) *RetryService {
	s.now = now
	return s
}

type itemOutcome int

const (
	outcomeSkipped itemOutcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeRescheduled
)

// ProcessDueRetries runs one bounded batch over the due backlog. Items
// are processed sequentially; a per-item failure never aborts the run.
// The only run-level error is failing to read the queue at all.
func (s *RetryService) ProcessDueRetries(ctx context.Context) (*RunResult, error) {
	now := s.now()

	items, err := s.queue.SelectDue(ctx, s.batchSize, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select due retry items: %w", err)
	}

	s.metrics.RunStarted()

	result := &RunResult{}
	if len(items) == 0 {
		return result, nil
	}

	log.Printf("INFO (RetryService): Processing %d due retry item(s)", len(items))

	for i := range items {
		switch s.processItem(ctx, &items[i]) {
		case outcomeCompleted:
			result.TotalProcessed++
			result.SuccessCount++
			s.metrics.ItemCompleted()
		case outcomeFailed:
			result.TotalProcessed++
			result.FailedCount++
			s.metrics.ItemFailed()
		case outcomeRescheduled:
			result.TotalProcessed++
			s.metrics.ItemRescheduled()
		case outcomeSkipped:
			// Not counted: nothing was attempted for the item.
		}
	}

	return result, nil
}

// processItem runs one retry attempt. Whatever happens after the claim,
// retry_count advances by exactly 1 so the item cannot stall at the
// same count across runs.
func (s *RetryService) processItem(ctx context.Context, item *models.RetryQueueItem) itemOutcome {
	// Selection already excludes exhausted items; re-check in case a
	// stale row slipped through.
	if item.RetryCount >= item.MaxRetries {
		log.Printf("WARN (RetryService): Item %s selected with retry count %d >= max %d, skipping",
			item.ID, item.RetryCount, item.MaxRetries)
		return outcomeSkipped
	}

	now := s.now()

	// Claim before the transport call: a crash mid-attempt leaves the
	// row marked retrying instead of silently reverting to pending, and
	// an overlapping run loses the conditional update and skips.
	claimed, err := s.queue.ClaimForRetry(ctx, item.ID, now)
	if err != nil {
		log.Printf("ERROR (RetryService): Failed to claim item %s: %v", item.ID, err)
		return outcomeSkipped
	}
	if !claimed {
		log.Printf("INFO (RetryService): Item %s already claimed or terminal, skipping", item.ID)
		return outcomeSkipped
	}

	// Nothing left to deliver: close the item out without burning an
	// attempt.
	if len(item.FailedRecipients) == 0 {
		completed := models.RetryStatusCompleted
		if err := s.queue.UpdateItem(ctx, item.ID, models.RetryQueueUpdate{
			Status:           &completed,
			FailedRecipients: []models.FailedRecipient{},
		}); err != nil {
			log.Printf("ERROR (RetryService): Failed to complete empty item %s: %v", item.ID, err)
		}
		return outcomeSkipped
	}

	emails := make([]string, len(item.FailedRecipients))
	for i, fr := range item.FailedRecipients {
		emails[i] = fr.Email
	}

	artifact := ArtifactRef{
		MeetingID:       item.MeetingID,
		PDFGenerationID: item.PDFGenerationID,
	}
	if owner, err := s.meetings.GetMeetingOwner(ctx, item.MeetingID); err == nil {
		artifact.MeetingTitle = owner.Title
	}

	stillFailed, deliveredEmails, transportErr := s.attemptRedelivery(ctx, item, artifact, emails)

	if len(deliveredEmails) > 0 {
		if err := s.reconcileLedger(ctx, item.DistributionID, deliveredEmails, now); err != nil {
			// Forward progress of the queue wins over perfect ledger
			// consistency: log and let the item transition anyway.
			log.Printf("ERROR (RetryService): Ledger reconcile failed for distribution %s: %v",
				item.DistributionID, err)
		}
	}

	return s.transitionItem(ctx, item, stillFailed, transportErr, now)
}

// attemptRedelivery invokes the transport and partitions the outcome.
// A transport-level error counts as every recipient still failed.
func (s *RetryService) attemptRedelivery(
	ctx context.Context,
	item *models.RetryQueueItem,
	artifact ArtifactRef,
	emails []string,
) (stillFailed []models.FailedRecipient, delivered []string, transportErr string) {
	results, err := s.transport.Deliver(ctx, artifact, emails)
	if err != nil {
		log.Printf("ERROR (RetryService): Transport failed for item %s: %v", item.ID, err)
		transportErr = err.Error()
		for _, fr := range item.FailedRecipients {
			stillFailed = append(stillFailed, models.FailedRecipient{Email: fr.Email, LastError: transportErr})
		}
		return stillFailed, nil, transportErr
	}

	resultByEmail := make(map[string]RecipientResult, len(results))
	for _, res := range results {
		resultByEmail[res.Email] = res
	}

	for _, fr := range item.FailedRecipients {
		res, ok := resultByEmail[fr.Email]
		if !ok {
			stillFailed = append(stillFailed, models.FailedRecipient{
				Email:     fr.Email,
				LastError: "no result returned by transport",
			})
			continue
		}
		if res.Status == models.RecipientStatusSent {
			delivered = append(delivered, fr.Email)
			continue
		}
		stillFailed = append(stillFailed, models.FailedRecipient{Email: fr.Email, LastError: res.Error})
	}

	return stillFailed, delivered, ""
}

// reconcileLedger flips now-delivered recipients to sent on the history
// entry, in place, and recomputes the aggregate counts and derived
// status from the recipient list.
func (s *RetryService) reconcileLedger(ctx context.Context, distributionID string, delivered []string, at time.Time) error {
	dist, err := s.ledger.GetDistributionByID(ctx, distributionID)
	if err != nil {
		return fmt.Errorf("failed to load distribution %s: %w", distributionID, err)
	}

	deliveredSet := make(map[string]bool, len(delivered))
	for _, email := range delivered {
		deliveredSet[email] = true
	}

	for i := range dist.Recipients {
		rd := &dist.Recipients[i]
		if deliveredSet[rd.Email] && rd.Status != models.RecipientStatusSent {
			rd.Status = models.RecipientStatusSent
			rd.Error = ""
			rd.Retried = true
			sentAt := at
			rd.SentAt = &sentAt
		}
	}

	successful, failed := 0, 0
	for _, rd := range dist.Recipients {
		if rd.Status == models.RecipientStatusSent {
			successful++
		} else {
			failed++
		}
	}

	status := models.DeriveDistributionStatus(successful, failed)
	if err := s.ledger.UpdateDistributionOutcome(ctx, dist.ID, successful, failed, status, dist.Recipients); err != nil {
		return fmt.Errorf("failed to update distribution %s: %w", dist.ID, err)
	}
	return nil
}

// transitionItem applies the per-attempt state machine and persists it.
func (s *RetryService) transitionItem(
	ctx context.Context,
	item *models.RetryQueueItem,
	stillFailed []models.FailedRecipient,
	transportErr string,
	now time.Time,
) itemOutcome {
	newCount := item.RetryCount + 1
	update := models.RetryQueueUpdate{RetryCount: &newCount}

	var outcome itemOutcome
	switch {
	case len(stillFailed) == 0:
		status := models.RetryStatusCompleted
		update.Status = &status
		update.FailedRecipients = []models.FailedRecipient{}
		outcome = outcomeCompleted

	case newCount >= item.MaxRetries:
		status := models.RetryStatusFailed
		update.Status = &status
		update.FailedRecipients = stillFailed
		lastError := transportErr
		if lastError == "" {
			lastError = fmt.Sprintf("%d recipient(s) still failing after %d attempt(s)", len(stillFailed), newCount)
		}
		update.LastError = &lastError
		outcome = outcomeFailed

	default:
		status := models.RetryStatusPending
		update.Status = &status
		update.FailedRecipients = stillFailed
		nextRetryAt := now.Add(Backoff(newCount))
		update.NextRetryAt = &nextRetryAt
		if transportErr != "" {
			update.LastError = &transportErr
		}
		outcome = outcomeRescheduled
	}

	if err := s.queue.UpdateItem(ctx, item.ID, update); err != nil {
		log.Printf("ERROR (RetryService): Failed to persist transition for item %s: %v", item.ID, err)
	}

	if outcome == outcomeFailed {
		s.notifyTerminalFailure(ctx, item, len(stillFailed))
	}

	return outcome
}

// notifyTerminalFailure tells the meeting owner their distribution
// permanently failed. Best-effort: by the time this runs the failed
// status is already final.
func (s *RetryService) notifyTerminalFailure(ctx context.Context, item *models.RetryQueueItem, failedCount int) {
	owner, err := s.meetings.GetMeetingOwner(ctx, item.MeetingID)
	if err != nil {
		log.Printf("ERROR (RetryService): Failed to resolve owner of meeting %s for failure notification: %v",
			item.MeetingID, err)
		return
	}

	s.notifier.Notify(ctx, owner.OwnerUserID,
		models.NotificationTypeDistributionFailed,
		"Minutes distribution failed",
		fmt.Sprintf("Could not deliver minutes for %q to %d recipient(s) after %d attempts.",
			owner.Title, failedCount, item.MaxRetries),
		map[string]any{
			"meeting_id":             item.MeetingID,
			"meeting_title":          owner.Title,
			"failed_recipient_count": failedCount,
			"max_retries":            item.MaxRetries,
		},
	)
}
