package distribution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coreybb/quorum/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeQueue struct {
	items       []models.RetryQueueItem
	selectErr   error
	claimErr    error
	claimDenied map[string]bool
	updateErr   error

	claims  []string
	updates map[string][]models.RetryQueueUpdate
}

func (q *fakeQueue) SelectDue(_ context.Context, limit int, _ time.Time) ([]models.RetryQueueItem, error) {
	if q.selectErr != nil {
		return nil, q.selectErr
	}
	if len(q.items) > limit {
		return q.items[:limit], nil
	}
	return q.items, nil
}

func (q *fakeQueue) ClaimForRetry(_ context.Context, itemID string, _ time.Time) (bool, error) {
	if q.claimErr != nil {
		return false, q.claimErr
	}
	q.claims = append(q.claims, itemID)
	return !q.claimDenied[itemID], nil
}

func (q *fakeQueue) UpdateItem(_ context.Context, itemID string, update models.RetryQueueUpdate) error {
	if q.updates == nil {
		q.updates = make(map[string][]models.RetryQueueUpdate)
	}
	q.updates[itemID] = append(q.updates[itemID], update)
	return q.updateErr
}

func (q *fakeQueue) lastUpdate(t *testing.T, itemID string) models.RetryQueueUpdate {
	t.Helper()
	updates := q.updates[itemID]
	require.NotEmpty(t, updates, "expected an update for item %s", itemID)
	return updates[len(updates)-1]
}

type fakeLedger struct {
	entries   map[string]*models.Distribution
	getErr    error
	updateErr error

	updated map[string]*models.Distribution
}

func (l *fakeLedger) GetDistributionByID(_ context.Context, id string) (*models.Distribution, error) {
	if l.getErr != nil {
		return nil, l.getErr
	}
	entry, ok := l.entries[id]
	if !ok {
		return nil, errors.New("distribution not found")
	}
	cp := *entry
	cp.Recipients = append([]models.RecipientDetail(nil), entry.Recipients...)
	return &cp, nil
}

func (l *fakeLedger) UpdateDistributionOutcome(_ context.Context, id string, successful, failed int, status models.DistributionStatus, recipients []models.RecipientDetail) error {
	if l.updateErr != nil {
		return l.updateErr
	}
	if l.updated == nil {
		l.updated = make(map[string]*models.Distribution)
	}
	l.updated[id] = &models.Distribution{
		ID:              id,
		SuccessfulCount: successful,
		FailedCount:     failed,
		Status:          status,
		Recipients:      recipients,
	}
	return nil
}

type fakeDirectory struct {
	owner *models.MeetingOwner
	err   error
}

func (d *fakeDirectory) GetMeetingOwner(_ context.Context, _ string) (*models.MeetingOwner, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.owner, nil
}

type sinkCall struct {
	userID  string
	ntype   models.NotificationType
	title   string
	message string
	data    map[string]any
}

type fakeSink struct {
	calls []sinkCall
}

func (s *fakeSink) Notify(_ context.Context, userID string, ntype models.NotificationType, title, message string, data map[string]any) {
	s.calls = append(s.calls, sinkCall{userID: userID, ntype: ntype, title: title, message: message, data: data})
}

type fakeTransport struct {
	respond  func(artifact ArtifactRef, emails []string) ([]RecipientResult, error)
	called   int
	lastSent []string
}

func (t *fakeTransport) Deliver(_ context.Context, artifact ArtifactRef, emails []string) ([]RecipientResult, error) {
	t.called++
	t.lastSent = emails
	if t.respond == nil {
		return nil, errors.New("no transport behavior configured")
	}
	return t.respond(artifact, emails)
}

func sentResult(email string) RecipientResult {
	return RecipientResult{Email: email, Status: models.RecipientStatusSent}
}

func failedResult(email, errMsg string) RecipientResult {
	return RecipientResult{Email: email, Status: models.RecipientStatusFailed, Error: errMsg}
}

func queueItem(id string, retryCount int, recipients ...string) models.RetryQueueItem {
	failed := make([]models.FailedRecipient, len(recipients))
	for i, email := range recipients {
		failed[i] = models.FailedRecipient{Email: email, LastError: "mailbox unavailable"}
	}
	return models.RetryQueueItem{
		ID:               id,
		DistributionID:   "7b0a24f1-9c3e-4f2a-8f61-b7f1c2d3e4a5",
		MeetingID:        "1f2e3d4c-5b6a-4978-8695-a4b3c2d1e0f9",
		PDFGenerationID:  "pdf-gen-42",
		FailedRecipients: failed,
		RetryCount:       retryCount,
		MaxRetries:       MaxRetries,
		Status:           models.RetryStatusPending,
		NextRetryAt:      testNow.Add(-time.Minute),
	}
}

func ledgerFor(item models.RetryQueueItem, sentEmails ...string) *fakeLedger {
	var recipients []models.RecipientDetail
	successful := 0
	for _, email := range sentEmails {
		recipients = append(recipients, models.RecipientDetail{Email: email, Status: models.RecipientStatusSent})
		successful++
	}
	for _, fr := range item.FailedRecipients {
		recipients = append(recipients, models.RecipientDetail{
			Email:  fr.Email,
			Status: models.RecipientStatusFailed,
			Error:  fr.LastError,
		})
	}
	return &fakeLedger{entries: map[string]*models.Distribution{
		item.DistributionID: {
			ID:              item.DistributionID,
			MeetingID:       item.MeetingID,
			TotalRecipients: len(recipients),
			SuccessfulCount: successful,
			FailedCount:     len(item.FailedRecipients),
			Status:          models.DeriveDistributionStatus(successful, len(item.FailedRecipients)),
			Recipients:      recipients,
		},
	}}
}

func newTestService(queue *fakeQueue, ledger *fakeLedger, transport *fakeTransport, sink *fakeSink) *RetryService {
	directory := &fakeDirectory{owner: &models.MeetingOwner{
		MeetingID:   "1f2e3d4c-5b6a-4978-8695-a4b3c2d1e0f9",
		Title:       "Q3 Board Meeting",
		OwnerUserID: "owner-user-1",
	}}
	return NewRetryService(queue, ledger, directory, sink, transport, nil).
		WithClock(func() time.Time { return testNow })
}

func TestProcessDueRetriesEmptyBacklog(t *testing.T) {
	queue := &fakeQueue{}
	svc := newTestService(queue, &fakeLedger{}, &fakeTransport{}, &fakeSink{})

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProcessed)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Empty(t, queue.updates)
}

func TestProcessDueRetriesSelectionFailure(t *testing.T) {
	queue := &fakeQueue{selectErr: errors.New("connection refused")}
	svc := newTestService(queue, &fakeLedger{}, &fakeTransport{}, &fakeSink{})

	result, err := svc.ProcessDueRetries(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, queue.updates)
}

func TestRetryPartialSuccessReschedules(t *testing.T) {
	item := queueItem("item-1", 0, "a@x.com", "b@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	ledger := ledgerFor(item)
	transport := &fakeTransport{respond: func(_ ArtifactRef, _ []string) ([]RecipientResult, error) {
		return []RecipientResult{sentResult("a@x.com"), failedResult("b@x.com", "mailbox full")}, nil
	}}
	sink := &fakeSink{}
	svc := newTestService(queue, ledger, transport, sink)

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, 0, result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, transport.lastSent)

	update := queue.lastUpdate(t, "item-1")
	require.NotNil(t, update.RetryCount)
	assert.Equal(t, 1, *update.RetryCount)
	require.NotNil(t, update.Status)
	assert.Equal(t, models.RetryStatusPending, *update.Status)
	require.Len(t, update.FailedRecipients, 1)
	assert.Equal(t, "b@x.com", update.FailedRecipients[0].Email)
	assert.Equal(t, "mailbox full", update.FailedRecipients[0].LastError)
	require.NotNil(t, update.NextRetryAt)
	assert.Equal(t, testNow.Add(2*time.Minute), *update.NextRetryAt)

	reconciled := ledger.updated[item.DistributionID]
	require.NotNil(t, reconciled)
	assert.Equal(t, 1, reconciled.SuccessfulCount)
	assert.Equal(t, 1, reconciled.FailedCount)
	assert.Equal(t, models.DistributionStatusPartial, reconciled.Status)

	assert.Empty(t, sink.calls)
}

func TestRetryExhaustionFailsAndNotifies(t *testing.T) {
	item := queueItem("item-1", 2, "b@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	transport := &fakeTransport{respond: func(_ ArtifactRef, _ []string) ([]RecipientResult, error) {
		return []RecipientResult{failedResult("b@x.com", "mailbox full")}, nil
	}}
	sink := &fakeSink{}
	svc := newTestService(queue, ledgerFor(item, "a@x.com"), transport, sink)

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, 1, result.FailedCount)

	update := queue.lastUpdate(t, "item-1")
	require.NotNil(t, update.RetryCount)
	assert.Equal(t, MaxRetries, *update.RetryCount)
	require.NotNil(t, update.Status)
	assert.Equal(t, models.RetryStatusFailed, *update.Status)
	assert.NotEmpty(t, update.FailedRecipients)
	require.NotNil(t, update.LastError)
	assert.NotEmpty(t, *update.LastError)
	assert.Nil(t, update.NextRetryAt)

	require.Len(t, sink.calls, 1)
	call := sink.calls[0]
	assert.Equal(t, "owner-user-1", call.userID)
	assert.Equal(t, models.NotificationTypeDistributionFailed, call.ntype)
	assert.Equal(t, "Q3 Board Meeting", call.data["meeting_title"])
	assert.Equal(t, 1, call.data["failed_recipient_count"])
	assert.Equal(t, MaxRetries, call.data["max_retries"])
}

func TestRetryCompletionResolvesLedger(t *testing.T) {
	item := queueItem("item-1", 1, "c@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	ledger := ledgerFor(item, "a@x.com", "b@x.com")
	transport := &fakeTransport{respond: func(_ ArtifactRef, _ []string) ([]RecipientResult, error) {
		return []RecipientResult{sentResult("c@x.com")}, nil
	}}
	sink := &fakeSink{}
	svc := newTestService(queue, ledger, transport, sink)

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalProcessed)
	assert.Equal(t, 1, result.SuccessCount)

	update := queue.lastUpdate(t, "item-1")
	require.NotNil(t, update.Status)
	assert.Equal(t, models.RetryStatusCompleted, *update.Status)
	require.NotNil(t, update.FailedRecipients)
	assert.Empty(t, update.FailedRecipients)
	require.NotNil(t, update.RetryCount)
	assert.Equal(t, 2, *update.RetryCount)

	reconciled := ledger.updated[item.DistributionID]
	require.NotNil(t, reconciled)
	assert.Equal(t, 3, reconciled.SuccessfulCount)
	assert.Equal(t, 0, reconciled.FailedCount)
	assert.Equal(t, models.DistributionStatusSuccess, reconciled.Status)

	var retried *models.RecipientDetail
	for i := range reconciled.Recipients {
		if reconciled.Recipients[i].Email == "c@x.com" {
			retried = &reconciled.Recipients[i]
		}
	}
	require.NotNil(t, retried)
	assert.Equal(t, models.RecipientStatusSent, retried.Status)
	assert.True(t, retried.Retried)
	assert.Empty(t, retried.Error)

	assert.Empty(t, sink.calls)
}

func TestTransportErrorCountsAsFailedAttempt(t *testing.T) {
	item := queueItem("item-1", 1, "a@x.com", "b@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	ledger := ledgerFor(item)
	transport := &fakeTransport{respond: func(_ ArtifactRef, _ []string) ([]RecipientResult, error) {
		return nil, errors.New("dial tcp: connection timed out")
	}}
	svc := newTestService(queue, ledger, transport, &fakeSink{})

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err, "a transport failure must not abort the run")
	assert.Equal(t, 1, result.TotalProcessed)

	update := queue.lastUpdate(t, "item-1")
	require.NotNil(t, update.RetryCount)
	assert.Equal(t, 2, *update.RetryCount)
	require.NotNil(t, update.Status)
	assert.Equal(t, models.RetryStatusPending, *update.Status)
	require.Len(t, update.FailedRecipients, 2)
	require.NotNil(t, update.LastError)
	assert.Contains(t, *update.LastError, "connection timed out")
	require.NotNil(t, update.NextRetryAt)
	assert.Equal(t, testNow.Add(4*time.Minute), *update.NextRetryAt)

	// No recipient succeeded, so the ledger is untouched.
	assert.Empty(t, ledger.updated)
}

func TestExhaustedItemExcludedDefensively(t *testing.T) {
	item := queueItem("item-1", MaxRetries, "a@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	transport := &fakeTransport{}
	svc := newTestService(queue, &fakeLedger{}, transport, &fakeSink{})

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProcessed)
	assert.Zero(t, transport.called)
	assert.Empty(t, queue.claims)
	assert.Empty(t, queue.updates)
}

func TestLostClaimSkipsItem(t *testing.T) {
	item := queueItem("item-1", 0, "a@x.com")
	queue := &fakeQueue{
		items:       []models.RetryQueueItem{item},
		claimDenied: map[string]bool{"item-1": true},
	}
	transport := &fakeTransport{}
	svc := newTestService(queue, &fakeLedger{}, transport, &fakeSink{})

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProcessed)
	assert.Zero(t, transport.called)
	assert.Empty(t, queue.updates)
}

func TestEmptyRecipientListCompletesWithoutAttempt(t *testing.T) {
	item := queueItem("item-1", 1)
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	transport := &fakeTransport{}
	svc := newTestService(queue, &fakeLedger{}, transport, &fakeSink{})

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProcessed, "defensive completion is not a processed retry")
	assert.Zero(t, transport.called)

	update := queue.lastUpdate(t, "item-1")
	require.NotNil(t, update.Status)
	assert.Equal(t, models.RetryStatusCompleted, *update.Status)
	assert.Nil(t, update.RetryCount, "no attempt was made, so the count must not advance")
}

func TestLedgerFailureDoesNotBlockTransition(t *testing.T) {
	item := queueItem("item-1", 0, "a@x.com", "b@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	ledger := &fakeLedger{getErr: errors.New("ledger unavailable")}
	transport := &fakeTransport{respond: func(_ ArtifactRef, _ []string) ([]RecipientResult, error) {
		return []RecipientResult{sentResult("a@x.com"), failedResult("b@x.com", "bounced")}, nil
	}}
	svc := newTestService(queue, ledger, transport, &fakeSink{})

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalProcessed)

	update := queue.lastUpdate(t, "item-1")
	require.NotNil(t, update.RetryCount)
	assert.Equal(t, 1, *update.RetryCount, "retry count advances even when the ledger write fails")
}

func TestMissingTransportResultTreatedAsFailed(t *testing.T) {
	item := queueItem("item-1", 0, "a@x.com", "b@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	transport := &fakeTransport{respond: func(_ ArtifactRef, _ []string) ([]RecipientResult, error) {
		return []RecipientResult{sentResult("a@x.com")}, nil
	}}
	svc := newTestService(queue, ledgerFor(item), transport, &fakeSink{})

	_, err := svc.ProcessDueRetries(context.Background())
	require.NoError(t, err)

	update := queue.lastUpdate(t, "item-1")
	require.Len(t, update.FailedRecipients, 1)
	assert.Equal(t, "b@x.com", update.FailedRecipients[0].Email)
	assert.Equal(t, "no result returned by transport", update.FailedRecipients[0].LastError)
}

func TestLedgerConservation(t *testing.T) {
	item := queueItem("item-1", 0, "b@x.com", "c@x.com")
	ledger := ledgerFor(item, "a@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{item}}
	transport := &fakeTransport{respond: func(_ ArtifactRef, _ []string) ([]RecipientResult, error) {
		return []RecipientResult{sentResult("b@x.com"), sentResult("c@x.com")}, nil
	}}
	svc := newTestService(queue, ledger, transport, &fakeSink{})

	_, err := svc.ProcessDueRetries(context.Background())
	require.NoError(t, err)

	reconciled := ledger.updated[item.DistributionID]
	require.NotNil(t, reconciled)
	total := ledger.entries[item.DistributionID].TotalRecipients
	assert.LessOrEqual(t, reconciled.SuccessfulCount+reconciled.FailedCount, total)
	assert.Equal(t, 3, reconciled.SuccessfulCount)
	assert.Equal(t, 0, reconciled.FailedCount)
}

func TestMultipleItemsProcessedSequentially(t *testing.T) {
	completing := queueItem("item-1", 0, "a@x.com")
	exhausting := queueItem("item-2", 2, "b@x.com")
	queue := &fakeQueue{items: []models.RetryQueueItem{completing, exhausting}}
	transport := &fakeTransport{respond: func(_ ArtifactRef, emails []string) ([]RecipientResult, error) {
		if emails[0] == "a@x.com" {
			return []RecipientResult{sentResult("a@x.com")}, nil
		}
		return []RecipientResult{failedResult("b@x.com", "bounced")}, nil
	}}
	sink := &fakeSink{}
	svc := newTestService(queue, ledgerFor(completing), transport, sink)

	result, err := svc.ProcessDueRetries(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.Equal(t, []string{"item-1", "item-2"}, queue.claims)
	assert.Len(t, sink.calls, 1)
}
