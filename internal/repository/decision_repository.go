package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/pkg/database"
)

// LedgerAppendFunc appends the approval's ledger record using the transaction-bound store.
type LedgerAppendFunc func(ctx context.Context, ledger LedgerAppendStore) (*models.LedgerRecord, error)

// DecisionRepository commits terminal decisions.
type DecisionRepository struct {
	db *sqlx.DB
}

// NewDecisionRepository constructs the repository.
func NewDecisionRepository(db *sqlx.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// CommitDecision writes the terminal status, the ledger record and the approval in a single
// transaction. The status write is a compare-and-set against the open states: when the
// submission was already finalised ErrStatusMismatch is returned and nothing is written.
func (r *DecisionRepository) CommitDecision(ctx context.Context, approval *models.Approval, appendLedger LedgerAppendFunc) (*models.LedgerRecord, error) {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.ApprovedAt.IsZero() {
		approval.ApprovedAt = time.Now().UTC()
	}

	var record *models.LedgerRecord
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const cas = `UPDATE submissions SET status = $1, updated_at = $2
	WHERE id = $3 AND status IN ('pending', 'under_review')`
		result, err := tx.ExecContext(ctx, cas, approval.Status.SubmissionStatus(), approval.ApprovedAt, approval.SubmissionID)
		if err != nil {
			return fmt.Errorf("update submission status: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check submission update rows: %w", err)
		}
		if rows == 0 {
			return ErrStatusMismatch
		}

		record, err = appendLedger(ctx, &LedgerTx{tx: tx})
		if err != nil {
			return err
		}
		approval.DigitalSignature = record.Signature
		approval.BlockchainHash = record.ThisHash

		const insert = `INSERT INTO approvals
	(id, submission_id, faculty_id, status, marks, feedback, policy_override, override_reason, digital_signature, blockchain_hash, approved_at)
	VALUES (:id, :submission_id, :faculty_id, :status, :marks, :feedback, :policy_override, :override_reason, :digital_signature, :blockchain_hash, :approved_at)`
		if _, err := tx.NamedExecContext(ctx, insert, approval); err != nil {
			return fmt.Errorf("insert approval: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetBySubmission returns the approval for a submission or sql.ErrNoRows.
func (r *DecisionRepository) GetBySubmission(ctx context.Context, submissionID string) (*models.Approval, error) {
	const query = `SELECT id, submission_id, faculty_id, status, marks, feedback, policy_override, override_reason,
       digital_signature, blockchain_hash, approved_at
	FROM approvals WHERE submission_id = $1`
	var approval models.Approval
	if err := r.db.GetContext(ctx, &approval, query, submissionID); err != nil {
		return nil, err
	}
	return &approval, nil
}
