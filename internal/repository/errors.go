package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrStatusMismatch is returned when a conditional write finds the row in another state.
	ErrStatusMismatch = errors.New("row status does not match expected state")
	// ErrDuplicate is returned when an equivalent active submission already exists.
	ErrDuplicate = errors.New("duplicate active submission")
	// ErrLedgerTailMoved is returned when another writer appended since the tail was read.
	ErrLedgerTailMoved = errors.New("ledger tail moved")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
