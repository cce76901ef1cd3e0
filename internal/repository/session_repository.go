package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gw-dg/palanam-latency/internal/models"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession inserts a new session row
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, video_path, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.VideoPath,
		session.Status,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateSessionStatus updates the status of a session
func (r *SessionRepository) UpdateSessionStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE sessions
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return nil
}

// DeleteSession deletes a session row and its detections
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// InsertDetection records one classification outcome for audit
func (r *SessionRepository) InsertDetection(ctx context.Context, d models.Detection) error {
	query := `
		INSERT INTO detections (session_id, ts, frame_index, label, confidence, flagged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(
		ctx,
		query,
		d.SessionID,
		d.Timestamp,
		d.FrameIndex,
		d.Label,
		d.Confidence,
		d.Flagged,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// ListDetectionsBySession retrieves all detections for a session, oldest first
func (r *SessionRepository) ListDetectionsBySession(ctx context.Context, sessionID string) ([]models.Detection, error) {
	query := `
		SELECT session_id, ts, frame_index, label, confidence, flagged
		FROM detections
		WHERE session_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}
	defer rows.Close()

	var detections []models.Detection
	for rows.Next() {
		var d models.Detection
		err := rows.Scan(
			&d.SessionID,
			&d.Timestamp,
			&d.FrameIndex,
			&d.Label,
			&d.Confidence,
			&d.Flagged,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}
