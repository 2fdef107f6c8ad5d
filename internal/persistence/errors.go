package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrForeignKeyViolation is returned when a write references a missing row.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConstraintViolation covers check and not-null constraint failures.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrTransient marks failures that may succeed when retried, such as lock contention.
	ErrTransient = errors.New("persistence: transient failure")
)

// DuplicateError identifies the column whose uniqueness was violated.
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("persistence: duplicate %s: %v", e.Field, e.Err)
	}
	return "persistence: duplicate " + e.Field
}

// Is reports ErrDuplicate so callers can match without unwrapping.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

func (e *DuplicateError) Unwrap() error {
	return e.Err
}

// DuplicateField returns the violated column when err is a duplicate error.
func DuplicateField(err error) (string, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Field, true
	}
	return "", false
}
