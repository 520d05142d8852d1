package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// SQLSTATE class 23 (integrity constraint violation) codes reported by
// Postgres through lib/pq. Classification keys off these codes, never off
// the human-readable message.
const (
	codeNotNullViolation    = pq.ErrorCode("23502")
	codeForeignKeyViolation = pq.ErrorCode("23503")
	codeUniqueViolation     = pq.ErrorCode("23505")
	codeCheckViolation      = pq.ErrorCode("23514")
)

var (
	// ErrNotFound indicates no row matched the given identifier.
	ErrNotFound = errors.New("no matching row")
	// ErrDuplicate indicates a unique constraint rejected the write.
	ErrDuplicate = errors.New("duplicate key")
	// ErrForeignKey indicates a referenced row does not exist, or a
	// referencing row blocks a delete.
	ErrForeignKey = errors.New("referenced row missing")
	// ErrCheckViolation indicates a check or not-null constraint rejected
	// a column value.
	ErrCheckViolation = errors.New("constraint check failed")
)

// ClassifyError maps a store error onto the sentinel taxonomy above. It is
// independent of the entity being written: only the structured error code
// and constraint name are consulted. Errors outside the taxonomy (driver
// failures, connectivity) pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrForeignKey, pqErr.Constraint)
	case codeCheckViolation, codeNotNullViolation:
		return fmt.Errorf("%w: %s", ErrCheckViolation, constraintOrColumn(pqErr))
	}

	return err
}

func constraintOrColumn(pqErr *pq.Error) string {
	if pqErr.Constraint != "" {
		return pqErr.Constraint
	}
	return pqErr.Column
}
