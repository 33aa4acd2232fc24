package gamification

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a Store when the account has no gamification state.
	ErrNotFound = errors.New("gamification: account not found")
	// ErrBadgeNotFound is returned by a Store when a badge name is not in the catalog table.
	ErrBadgeNotFound = errors.New("gamification: badge not found")
	// ErrDuplicate is returned by a Store when a unique constraint rejects an insert.
	// The engine converts it into an "already exists" outcome and never surfaces it.
	ErrDuplicate = errors.New("gamification: duplicate record")

	ErrInvalidAccount  = errors.New("gamification: account id is required")
	ErrInvalidKind     = errors.New("gamification: invalid point kind")
	ErrInvalidCategory = errors.New("gamification: invalid badge category")
	ErrNegativePoints  = errors.New("gamification: point total must not be negative")
)

// NotFoundError reports a missing account. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	AccountID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gamification: account %q not found", e.AccountID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceError wraps a failed transaction. Nothing of the attempted operation
// was committed, so the caller may retry the whole call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("gamification: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable is always true: a failed unit of work leaves no partial state.
func (e *PersistenceError) Retryable() bool {
	return true
}

// IsValidation reports whether err was caused by bad input rather than storage.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidCategory) ||
		errors.Is(err, ErrNegativePoints)
}

// classify maps an error coming out of a unit of work onto the public taxonomy.
func classify(op, accountID string, err error) error {
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf
	}
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{AccountID: accountID}
	}
	if IsValidation(err) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe
	}
	return &PersistenceError{Op: op, Err: err}
}

// errorClass is the metrics label for a classified error.
func errorClass(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case IsValidation(err):
		return "validation"
	default:
		return "persistence"
	}
}
