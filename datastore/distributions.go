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

type DistributionRepository struct {
	db *sql.DB
}

func NewDistributionRepository(db *sql.DB) *DistributionRepository {
	return &DistributionRepository{db: db}
}

func (r *DistributionRepository) CreateDistribution(ctx context.Context, dist *models.Distribution) error {
	if _, err := uuid.Parse(dist.ID); err != nil {
		return fmt.Errorf("invalid distribution ID format: %w", err)
	}
	if _, err := uuid.Parse(dist.MeetingID); err != nil {
		return fmt.Errorf("invalid meeting ID format: %w", err)
	}

	recipientsJSON, err := json.Marshal(dist.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipient details: %w", err)
	}

	query := `
		INSERT INTO distributions (
			id, meeting_id, pdf_generation_id, total_recipients,
			successful_count, failed_count, status, recipient_details,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		dist.ID, dist.MeetingID, dist.PDFGenerationID, dist.TotalRecipients,
		dist.SuccessfulCount, dist.FailedCount, string(dist.Status), recipientsJSON,
		dist.CreatedAt, dist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert distribution: %w", err)
	}
	return nil
}

func (r *DistributionRepository) GetDistributionByID(ctx context.Context, distributionID string) (*models.Distribution, error) {
	if _, err := uuid.Parse(distributionID); err != nil {
		return nil, fmt.Errorf("invalid distribution ID format: %w", err)
	}

	query := `
		SELECT id, meeting_id, pdf_generation_id, total_recipients,
		       successful_count, failed_count, status, recipient_details,
		       created_at, updated_at
		FROM distributions
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, distributionID)
	dist, err := scanDistribution(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("distribution not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get distribution by ID: %w", err)
	}
	return dist, nil
}

func (r *DistributionRepository) GetDistributionsByMeetingID(ctx context.Context, meetingID string) ([]models.Distribution, error) {
	if _, err := uuid.Parse(meetingID); err != nil {
		return nil, fmt.Errorf("invalid meeting ID format: %w", err)
	}

	query := `
		SELECT id, meeting_id, pdf_generation_id, total_recipients,
		       successful_count, failed_count, status, recipient_details,
		       created_at, updated_at
		FROM distributions
		WHERE meeting_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distributions for meeting %s: %w", meetingID, err)
	}
	defer rows.Close()

	var distributions []models.Distribution
	for rows.Next() {
		dist, err := scanDistribution(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		distributions = append(distributions, *dist)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distribution rows: %w", err)
	}

	return distributions, nil
}

// UpdateDistributionOutcome overwrites the aggregate counts, derived
// status, and recipient details after a reconciliation.
func (r *DistributionRepository) UpdateDistributionOutcome(
	ctx context.Context,
	distributionID string,
	successfulCount, failedCount int,
	status models.DistributionStatus,
	recipients []models.RecipientDetail,
) error {
	if _, err := uuid.Parse(distributionID); err != nil {
		return fmt.Errorf("invalid distribution ID format: %w", err)
	}

	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipient details: %w", err)
	}

	query := `
		UPDATE distributions
		SET successful_count = $2, failed_count = $3, status = $4,
		    recipient_details = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		distributionID, successfulCount, failedCount, string(status),
		recipientsJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update distribution outcome for ID %s: %w", distributionID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected == 0 {
		return fmt.Errorf("distribution not found for outcome update: %w", sql.ErrNoRows)
	}

	return nil
}

func scanDistribution(scan func(dest ...any) error) (*models.Distribution, error) {
	var dist models.Distribution
	var statusStr string
	var recipientsJSON []byte

	err := scan(
		&dist.ID, &dist.MeetingID, &dist.PDFGenerationID, &dist.TotalRecipients,
		&dist.SuccessfulCount, &dist.FailedCount, &statusStr, &recipientsJSON,
		&dist.CreatedAt, &dist.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	dist.Status = models.DistributionStatus(statusStr)
	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &dist.Recipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipient details: %w", err)
		}
	}
	return &dist, nil
}
