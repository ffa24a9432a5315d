package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/crudkit/internal/schema"
	"github.com/roach88/crudkit/internal/store"
)

// Error is the single error type procedures return to callers.
//
// Every failure is one of four codes:
//   - VALIDATION_ERROR: input failed the entity schema; Details lists every violation
//   - NOT_FOUND: unknown procedure or missing row
//   - CONSTRAINT_VIOLATION: missing parent, duplicate unique value, restricted delete
//   - STORAGE_ERROR: anything else from the database; never retried
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains structured context (violations, entity, id, field).
	Details map[string]any

	// Err is the underlying error, if any.
	Err error
}

// ErrorCode categorizes procedure errors.
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConstraint ErrorCode = "CONSTRAINT_VIOLATION"
	ErrCodeStorage    ErrorCode = "STORAGE_ERROR"
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewNotFound creates a NOT_FOUND error.
func NewNotFound(format string, args ...any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Classify maps any error to *Error. Schema and store errors get their
// matching code; everything unrecognised is a STORAGE_ERROR that keeps the
// original error reachable through Unwrap.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		return &Error{
			Code:    ErrCodeValidation,
			Message: ve.Error(),
			Details: map[string]any{"entity": ve.Entity, "violations": ve.Violations},
			Err:     err,
		}
	}

	var nf *store.NotFoundError
	if errors.As(err, &nf) {
		return &Error{
			Code:    ErrCodeNotFound,
			Message: nf.Error(),
			Details: map[string]any{"entity": nf.Entity, "id": nf.ID},
			Err:     err,
		}
	}

	var ce *store.ConstraintError
	if errors.As(err, &ce) {
		details := map[string]any{"entity": ce.Entity, "kind": ce.Kind}
		if ce.Field != "" {
			details["field"] = ce.Field
		}
		return &Error{Code: ErrCodeConstraint, Message: ce.Error(), Details: details, Err: err}
	}

	return &Error{Code: ErrCodeStorage, Message: err.Error(), Err: err}
}

// AsError returns the *Error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return Classify(err).Code == code
}

// IsValidation reports whether err classifies as VALIDATION_ERROR.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsNotFound reports whether err classifies as NOT_FOUND.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsConstraint reports whether err classifies as CONSTRAINT_VIOLATION.
func IsConstraint(err error) bool { return hasCode(err, ErrCodeConstraint) }

// IsStorage reports whether err classifies as STORAGE_ERROR.
func IsStorage(err error) bool { return hasCode(err, ErrCodeStorage) }
