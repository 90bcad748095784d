package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/achievement-api/internal/models"
)

// VerificationRepository persists verification signals. Rows are append-only; the newest row
// per submission is authoritative.
type VerificationRepository struct {
	db *sqlx.DB
}

// NewVerificationRepository constructs the repository.
func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// InsertIfOpen stores the signal only while the submission is pending or under review, returning
// ErrStatusMismatch otherwise. The submission row is share-locked so a concurrent decision update
// waits for the insert, or the insert sees the decided status.
func (r *VerificationRepository) InsertIfOpen(ctx context.Context, signal *models.VerificationSignal) error {
	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}
	if signal.Warnings == nil {
		signal.Warnings = pq.StringArray{}
	}
	const query = `INSERT INTO verification_data
	(id, submission_id, plagiarism_risk, ai_content_risk, document_authenticity, cross_reference, status, manual_review_only, warnings, created_at)
	SELECT :id, :submission_id, :plagiarism_risk, :ai_content_risk, :document_authenticity, :cross_reference, :status, :manual_review_only, :warnings, :created_at
	WHERE EXISTS (SELECT 1 FROM submissions WHERE id = :submission_id AND status IN ('pending', 'under_review') FOR SHARE)`
	result, err := r.db.NamedExecContext(ctx, query, signal)
	if err != nil {
		return fmt.Errorf("insert verification signal: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check verification insert rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusMismatch
	}
	return nil
}

// Latest returns the newest signal for the submission or sql.ErrNoRows.
func (r *VerificationRepository) Latest(ctx context.Context, submissionID string) (*models.VerificationSignal, error) {
	const query = `SELECT id, submission_id, plagiarism_risk, ai_content_risk, document_authenticity, cross_reference, status,
       manual_review_only, warnings, created_at
	FROM verification_data WHERE submission_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	var signal models.VerificationSignal
	if err := r.db.GetContext(ctx, &signal, query, submissionID); err != nil {
		return nil, err
	}
	return &signal, nil
}
