package store

import (
	"errors"
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
	moderncsqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a missing row.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Constraint kinds.
const (
	ConstraintForeignKey = "foreign_key"
	ConstraintUnique     = "unique"
	ConstraintNotNull    = "not_null"
	ConstraintCheck      = "check"
	ConstraintOther      = "constraint"
)

// ConstraintError reports a write rejected by an integrity rule: a missing
// parent, a duplicate unique value, or a parent still referenced by
// restricting children.
type ConstraintError struct {
	Entity  string
	Kind    string
	Field   string // offending column when known
	Message string
	Err     error // driver error, nil for pre-checks
}

func (e *ConstraintError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// StorageError wraps any other driver failure. It is never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// classify turns a driver error into *ConstraintError or *StorageError.
// Errors that are already typed pass through unchanged.
func classify(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var (
		nf *NotFoundError
		ce *ConstraintError
		se *StorageError
	)
	if errors.As(err, &nf) || errors.As(err, &ce) || errors.As(err, &se) {
		return err
	}

	if kind, ok := constraintKind(err); ok {
		return &ConstraintError{
			Entity:  entity,
			Kind:    kind,
			Field:   constraintColumn(err.Error()),
			Message: constraintMessage(kind),
			Err:     err,
		}
	}
	return &StorageError{Op: op, Err: err}
}

// constraintKind recognises constraint failures from either driver.
func constraintKind(err error) (string, bool) {
	var me sqlite3.Error
	if errors.As(err, &me) {
		if me.Code != sqlite3.ErrConstraint {
			return "", false
		}
		switch me.ExtendedCode {
		case sqlite3.ErrConstraintForeignKey:
			return ConstraintForeignKey, true
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ConstraintUnique, true
		case sqlite3.ErrConstraintNotNull:
			return ConstraintNotNull, true
		case sqlite3.ErrConstraintCheck:
			return ConstraintCheck, true
		}
		return ConstraintOther, true
	}

	var pe *moderncsqlite.Error
	if errors.As(err, &pe) {
		switch pe.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ConstraintForeignKey, true
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ConstraintUnique, true
		case sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			return ConstraintNotNull, true
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return ConstraintCheck, true
		}
		if pe.Code()&0xff == sqlite3lib.SQLITE_CONSTRAINT {
			return ConstraintOther, true
		}
	}

	// Fall back to the message text, which both drivers share.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ConstraintForeignKey, true
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ConstraintUnique, true
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return ConstraintNotNull, true
	case strings.Contains(msg, "CHECK constraint failed"):
		return ConstraintCheck, true
	}
	return "", false
}

// constraintColumn extracts the column from messages like
// "UNIQUE constraint failed: products.sku". Multi-column failures keep the
// whole list.
func constraintColumn(msg string) string {
	_, rest, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return ""
	}
	// modernc appends " (2067)" to the message.
	if i := strings.Index(rest, " ("); i >= 0 {
		rest = rest[:i]
	}
	var cols []string
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if _, col, ok := strings.Cut(part, "."); ok {
			part = col
		}
		cols = append(cols, part)
	}
	return strings.Join(cols, ",")
}

func constraintMessage(kind string) string {
	switch kind {
	case ConstraintForeignKey:
		return "violates a foreign key: the referenced row is missing or still referenced"
	case ConstraintUnique:
		return "value already exists"
	case ConstraintNotNull:
		return "cannot be null"
	case ConstraintCheck:
		return "value is not allowed"
	}
	return "constraint failed"
}
