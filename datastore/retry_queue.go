package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coreybb/quorum/models"
	"github.com/google/uuid"
)

type RetryQueueRepository struct {
	db *sql.DB
}

func NewRetryQueueRepository(db *sql.DB) *RetryQueueRepository {
	return &RetryQueueRepository{db: db}
}

func (r *RetryQueueRepository) CreateItem(ctx context.Context, item *models.RetryQueueItem) error {
	if _, err := uuid.Parse(item.ID); err != nil {
		return fmt.Errorf("invalid retry queue item ID format: %w", err)
	}
	if _, err := uuid.Parse(item.DistributionID); err != nil {
		return fmt.Errorf("invalid distribution ID format: %w", err)
	}
	if _, err := uuid.Parse(item.MeetingID); err != nil {
		return fmt.Errorf("invalid meeting ID format: %w", err)
	}

	recipientsJSON, err := json.Marshal(item.FailedRecipients)
	if err != nil {
		return fmt.Errorf("failed to marshal failed recipients: %w", err)
	}

	query := `
		INSERT INTO distribution_retry_queue (
			id, distribution_id, meeting_id, pdf_generation_id,
			failed_recipients, retry_count, max_retries, status,
			next_retry_at, last_retry_at, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.ExecContext(ctx, query,
		item.ID, item.DistributionID, item.MeetingID, item.PDFGenerationID,
		recipientsJSON, item.RetryCount, item.MaxRetries, string(item.Status),
		item.NextRetryAt, item.LastRetryAt, item.LastError, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert retry queue item: %w", err)
	}
	return nil
}

// SelectDue returns items eligible for a retry attempt: non-terminal,
// past their next_retry_at, and with attempts remaining. Oldest due
// first, capped at limit.
func (r *RetryQueueRepository) SelectDue(ctx context.Context, limit int, now time.Time) ([]models.RetryQueueItem, error) {
	query := `
		SELECT id, distribution_id, meeting_id, pdf_generation_id,
		       failed_recipients, retry_count, max_retries, status,
		       next_retry_at, last_retry_at, last_error, created_at, updated_at
		FROM distribution_retry_queue
		WHERE status IN ('pending', 'retrying')
		  AND next_retry_at <= $1
		  AND retry_count < max_retries
		ORDER BY next_retry_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due retry queue items: %w", err)
	}
	defer rows.Close()

	var items []models.RetryQueueItem
	for rows.Next() {
		item, err := scanRetryQueueItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry queue row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retry queue rows: %w", err)
	}

	return items, nil
}

// ClaimForRetry atomically transitions an item to retrying and stamps
// last_retry_at. The conditional WHERE clause means an overlapping run
// (or a row that went terminal since selection) loses the claim and
// reports false.
func (r *RetryQueueRepository) ClaimForRetry(ctx context.Context, itemID string, now time.Time) (bool, error) {
	if _, err := uuid.Parse(itemID); err != nil {
		return false, fmt.Errorf("invalid retry queue item ID format: %w", err)
	}

	query := `
		UPDATE distribution_retry_queue
		SET status = 'retrying', last_retry_at = $2, updated_at = $2
		WHERE id = $1
		  AND status IN ('pending', 'retrying')
		  AND retry_count < max_retries
		  AND (last_retry_at IS NULL OR last_retry_at < $2)
	`
	result, err := r.db.ExecContext(ctx, query, itemID, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim retry queue item %s: %w", itemID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for item %s: %w", itemID, err)
	}
	return rowsAffected == 1, nil
}

// UpdateItem applies the post-attempt transition. Nil fields are left
// unchanged; a non-nil empty FailedRecipients slice clears the list.
func (r *RetryQueueRepository) UpdateItem(ctx context.Context, itemID string, update models.RetryQueueUpdate) error {
	if _, err := uuid.Parse(itemID); err != nil {
		return fmt.Errorf("invalid retry queue item ID format: %w", err)
	}

	var statusStr *string
	if update.Status != nil {
		s := string(*update.Status)
		statusStr = &s
	}

	var recipientsJSON []byte
	if update.FailedRecipients != nil {
		var err error
		recipientsJSON, err = json.Marshal(update.FailedRecipients)
		if err != nil {
			return fmt.Errorf("failed to marshal failed recipients: %w", err)
		}
	}

	query := `
		UPDATE distribution_retry_queue
		SET status = COALESCE($2, status),
		    failed_recipients = COALESCE($3, failed_recipients),
		    retry_count = COALESCE($4, retry_count),
		    next_retry_at = COALESCE($5, next_retry_at),
		    last_error = COALESCE($6, last_error),
		    updated_at = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		itemID, statusStr, recipientsJSON, update.RetryCount,
		update.NextRetryAt, update.LastError, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update retry queue item %s: %w", itemID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected == 0 {
		return fmt.Errorf("retry queue item not found for update: %w", sql.ErrNoRows)
	}

	return nil
}

func (r *RetryQueueRepository) GetItemByID(ctx context.Context, itemID string) (*models.RetryQueueItem, error) {
	if _, err := uuid.Parse(itemID); err != nil {
		return nil, fmt.Errorf("invalid retry queue item ID format: %w", err)
	}

	query := `
		SELECT id, distribution_id, meeting_id, pdf_generation_id,
		       failed_recipients, retry_count, max_retries, status,
		       next_retry_at, last_retry_at, last_error, created_at, updated_at
		FROM distribution_retry_queue
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, itemID)
	item, err := scanRetryQueueItem(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("retry queue item not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get retry queue item by ID: %w", err)
	}
	return item, nil
}

func (r *RetryQueueRepository) GetItemsByDistributionID(ctx context.Context, distributionID string) ([]models.RetryQueueItem, error) {
	if _, err := uuid.Parse(distributionID); err != nil {
		return nil, fmt.Errorf("invalid distribution ID format: %w", err)
	}

	query := `
		SELECT id, distribution_id, meeting_id, pdf_generation_id,
		       failed_recipients, retry_count, max_retries, status,
		       next_retry_at, last_retry_at, last_error, created_at, updated_at
		FROM distribution_retry_queue
		WHERE distribution_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query retry queue items for distribution %s: %w", distributionID, err)
	}
	defer rows.Close()

	var items []models.RetryQueueItem
	for rows.Next() {
		item, err := scanRetryQueueItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan retry queue row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating retry queue rows: %w", err)
	}

	return items, nil
}

func scanRetryQueueItem(scan func(dest ...any) error) (*models.RetryQueueItem, error) {
	var item models.RetryQueueItem
	var statusStr string
	var recipientsJSON []byte

	err := scan(
		&item.ID, &item.DistributionID, &item.MeetingID, &item.PDFGenerationID,
		&recipientsJSON, &item.RetryCount, &item.MaxRetries, &statusStr,
		&item.NextRetryAt, &item.LastRetryAt, &item.LastError, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = models.RetryStatus(statusStr)
	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &item.FailedRecipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed recipients: %w", err)
		}
	}
	return &item, nil
}
