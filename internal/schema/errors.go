package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Violation codes.
const (
	CodeRequired = "required" // missing required field
	CodeType     = "type"     // wrong JSON type or unparseable literal
	CodeRange    = "range"    // numeric bound or positive-id check failed
	CodeLength   = "length"   // string length outside min_length/max_length
	CodePattern  = "pattern"  // string does not match pattern
	CodeEnum     = "enum"     // value not among declared enum values
	CodeUnknown  = "unknown"  // key not declared on the entity
	CodeReadonly = "readonly" // id/created_at/updated_at supplied by caller
	CodeNull     = "null"     // null given for a non-nullable field
)

// Violation describes one failed constraint on one field.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError lists every violated field of one request.
// Violations are sorted by field, then code.
type ValidationError struct {
	Entity     string      `json:"entity"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return fmt.Sprintf("invalid %s input: %s", e.Entity, strings.Join(parts, "; "))
}

// Fields returns the distinct violated field names in order.
func (e *ValidationError) Fields() []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range e.Violations {
		if !seen[v.Field] {
			seen[v.Field] = true
			out = append(out, v.Field)
		}
	}
	return out
}

// NewValidationError is newValidationError for custom procedures that
// collect their own violations.
func NewValidationError(entity string, vs []Violation) error {
	return newValidationError(entity, vs)
}

// newValidationError sorts violations and wraps them; returns nil when
// there are none.
func newValidationError(entity string, vs []Violation) error {
	if len(vs) == 0 {
		return nil
	}
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Field != vs[j].Field {
			return vs[i].Field < vs[j].Field
		}
		return vs[i].Code < vs[j].Code
	})
	return &ValidationError{Entity: entity, Violations: vs}
}
