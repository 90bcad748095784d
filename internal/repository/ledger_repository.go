package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/achievement-api/internal/models"
)

const ledgerColumns = `sequence, approval_id, submission_id, payload_hash, previous_hash, this_hash, signature, key_id, hash_algorithm, created_at`

// LedgerAppendStore is the conditional-append surface of the ledger.
type LedgerAppendStore interface {
	// Tail returns the last record, or nil for an empty ledger.
	Tail(ctx context.Context) (*models.LedgerRecord, error)
	// AppendIfTail inserts record only if the tail sequence is still expectedSequence
	// (-1 for an empty ledger); otherwise ErrLedgerTailMoved.
	AppendIfTail(ctx context.Context, expectedSequence int64, record *models.LedgerRecord) error
}

// LedgerRepository reads committed ledger records.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Tail returns the last committed record, or nil when the ledger is empty.
func (r *LedgerRepository) Tail(ctx context.Context) (*models.LedgerRecord, error) {
	return tail(ctx, r.db)
}

// Range returns up to limit records with sequence greater than afterSequence, in order.
func (r *LedgerRepository) Range(ctx context.Context, afterSequence int64, limit int) ([]models.LedgerRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT ` + ledgerColumns + ` FROM ledger_records WHERE sequence > $1 ORDER BY sequence ASC LIMIT $2`
	var records []models.LedgerRecord
	if err := r.db.SelectContext(ctx, &records, query, afterSequence, limit); err != nil {
		return nil, fmt.Errorf("list ledger records: %w", err)
	}
	return records, nil
}

// LedgerTx is the ledger bound to an open decision transaction. Every append attempt runs
// inside its own savepoint so a lost race does not abort the surrounding transaction.
type LedgerTx struct {
	tx *sqlx.Tx
}

// Tail returns the last committed record visible to the transaction.
func (l *LedgerTx) Tail(ctx context.Context) (*models.LedgerRecord, error) {
	return tail(ctx, l.tx)
}

// AppendIfTail inserts the record unless another writer has already claimed its position.
func (l *LedgerTx) AppendIfTail(ctx context.Context, expectedSequence int64, record *models.LedgerRecord) error {
	if record.Sequence != expectedSequence+1 {
		return fmt.Errorf("ledger record sequence %d does not follow %d", record.Sequence, expectedSequence)
	}
	if _, err := l.tx.ExecContext(ctx, `SAVEPOINT ledger_append`); err != nil {
		return fmt.Errorf("ledger savepoint: %w", err)
	}
	const insert = `INSERT INTO ledger_records (` + ledgerColumns + `)
	VALUES (:sequence, :approval_id, :submission_id, :payload_hash, :previous_hash, :this_hash, :signature, :key_id, :hash_algorithm, :created_at)`
	if _, err := l.tx.NamedExecContext(ctx, insert, record); err != nil {
		if _, rbErr := l.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT ledger_append`); rbErr != nil {
			return fmt.Errorf("ledger rollback to savepoint: %w", rbErr)
		}
		if isUniqueViolation(err) {
			return ErrLedgerTailMoved
		}
		return fmt.Errorf("append ledger record: %w", err)
	}
	if _, err := l.tx.ExecContext(ctx, `RELEASE SAVEPOINT ledger_append`); err != nil {
		return fmt.Errorf("ledger release savepoint: %w", err)
	}
	return nil
}

func tail(ctx context.Context, q sqlx.QueryerContext) (*models.LedgerRecord, error) {
	const query = `SELECT ` + ledgerColumns + ` FROM ledger_records ORDER BY sequence DESC LIMIT 1`
	var record models.LedgerRecord
	if err := sqlx.GetContext(ctx, q, &record, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	return &record, nil
}
