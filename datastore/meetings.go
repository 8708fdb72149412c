package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/coreybb/quorum/models"
	"github.com/google/uuid"
)

type MeetingRepository struct {
	db *sql.DB
}

func NewMeetingRepository(db *sql.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

func (r *MeetingRepository) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	if _, err := uuid.Parse(meeting.ID); err != nil {
		return fmt.Errorf("invalid meeting ID format: %w", err)
	}
	if _, err := uuid.Parse(meeting.UserID); err != nil {
		return fmt.Errorf("invalid user ID format: %w", err)
	}

	query := `
		INSERT INTO meetings (id, user_id, title, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		meeting.ID, meeting.UserID, meeting.Title, meeting.ScheduledAt, meeting.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert meeting: %w", err)
	}
	return nil
}

func (r *MeetingRepository) GetMeetingByID(ctx context.Context, meetingID string) (*models.Meeting, error) {
	if _, err := uuid.Parse(meetingID); err != nil {
		return nil, fmt.Errorf("invalid meeting ID format: %w", err)
	}

	query := `
		SELECT id, user_id, title, scheduled_at, created_at
		FROM meetings
		WHERE id = $1
	`
	var meeting models.Meeting
	row := r.db.QueryRowContext(ctx, query, meetingID)
	err := row.Scan(&meeting.ID, &meeting.UserID, &meeting.Title, &meeting.ScheduledAt, &meeting.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("meeting not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get meeting by ID: %w", err)
	}

	return &meeting, nil
}

// GetMeetingOwner returns the title and owner of a meeting. Used to
// address the terminal-failure notification.
func (r *MeetingRepository) GetMeetingOwner(ctx context.Context, meetingID string) (*models.MeetingOwner, error) {
	if _, err := uuid.Parse(meetingID); err != nil {
		return nil, fmt.Errorf("invalid meeting ID format: %w", err)
	}

	query := `
		SELECT id, title, user_id
		FROM meetings
		WHERE id = $1
	`
	var owner models.MeetingOwner
	row := r.db.QueryRowContext(ctx, query, meetingID)
	err := row.Scan(&owner.MeetingID, &owner.Title, &owner.OwnerUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("meeting not found: %w", err)
		}
		return nil, fmt.Errorf("failed to get meeting owner: %w", err)
	}

	return &owner, nil
}
