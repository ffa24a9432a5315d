package queryir

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// identifierRe matches a single SQL identifier. Qualified names
// ("table.column") are checked part by part.
var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is a plain or table-qualified
// identifier that is safe to splice into SQL.
func ValidIdentifier(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return false
	}
	for _, p := range parts {
		if !identifierRe.MatchString(p) {
			return false
		}
	}
	return true
}

// ValidationResult lists structural problems found in a query tree.
type ValidationResult struct {
	// IsValid is true when Errors is empty.
	IsValid bool

	// Errors describes each malformed node.
	Errors []string
}

// Err returns the problems as a single error, or nil when valid.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return errors.New("invalid query: " + strings.Join(r.Errors, "; "))
}

// Validate checks a query tree for malformed nodes: empty table names,
// unsafe identifiers, empty And/Or, unknown operators, negative limits and
// offsets, and writes with nothing to set.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		IsValid: len(v.errors) == 0,
		Errors:  v.errors,
	}
}

// validator accumulates errors during traversal.
type validator struct {
	errors []string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	if q == nil {
		v.addError("nil query")
		return
	}

	switch query := q.(type) {
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Join:
		v.validateJoin(query)
	case *Join:
		v.validateJoin(*query)
	case Count:
		v.validateTable(query.From)
		v.validatePredicate(query.Filter)
	case *Count:
		v.validateTable(query.From)
		v.validatePredicate(query.Filter)
	case Insert:
		v.validateWrite(query.Table, query.Set)
	case *Insert:
		v.validateWrite(query.Table, query.Set)
	case Update:
		v.validateWrite(query.Table, query.Set)
		v.validatePredicate(query.Filter)
	case *Update:
		v.validateWrite(query.Table, query.Set)
		v.validatePredicate(query.Filter)
	case Delete:
		v.validateTable(query.Table)
		v.validatePredicate(query.Filter)
	case *Delete:
		v.validateTable(query.Table)
		v.validatePredicate(query.Filter)
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validateTable(table string) {
	if table == "" {
		v.addError("empty table name")
		return
	}
	if !identifierRe.MatchString(table) {
		v.addError("invalid table name %q", table)
	}
}

func (v *validator) validateField(field string) {
	if !ValidIdentifier(field) {
		v.addError("invalid field name %q", field)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.validateTable(sel.From)
	for _, c := range sel.Columns {
		v.validateField(c)
	}
	for _, o := range sel.OrderBy {
		v.validateField(o.Field)
	}
	if sel.Limit < 0 {
		v.addError("negative limit %d", sel.Limit)
	}
	if sel.Offset < 0 {
		v.addError("negative offset %d", sel.Offset)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validateJoin(join Join) {
	sides := []struct {
		name  string
		query Query
	}{{"left", join.Left}, {"right", join.Right}}
	for _, side := range sides {
		switch side.query.(type) {
		case Select, *Select:
			v.validateQuery(side.query)
		default:
			v.addError("join %s must be a Select, got %T", side.name, side.query)
		}
	}
	if join.On == nil {
		v.addError("join requires an ON predicate")
		return
	}
	v.validatePredicate(join.On)
}

func (v *validator) validateWrite(table string, set []Assignment) {
	v.validateTable(table)
	if len(set) == 0 {
		v.addError("%s: no columns to set", table)
	}
	seen := make(map[string]bool, len(set))
	for _, a := range set {
		v.validateField(a.Column)
		if seen[a.Column] {
			v.addError("%s: column %q set twice", table, a.Column)
		}
		seen[a.Column] = true
	}
}

func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return // nil predicates are valid (no filter)
	}

	switch pred := p.(type) {
	case Equals:
		v.validateField(pred.Field)
	case *Equals:
		v.validateField(pred.Field)
	case NotEquals:
		v.validateField(pred.Field)
	case *NotEquals:
		v.validateField(pred.Field)
	case Compare:
		v.validateCompare(pred)
	case *Compare:
		v.validateCompare(*pred)
	case In:
		v.validateField(pred.Field)
	case *In:
		v.validateField(pred.Field)
	case IsNull:
		v.validateField(pred.Field)
	case *IsNull:
		v.validateField(pred.Field)
	case FieldEquals:
		v.validateField(pred.Left)
		v.validateField(pred.Right)
	case *FieldEquals:
		v.validateField(pred.Left)
		v.validateField(pred.Right)
	case FieldCompare:
		v.validateField(pred.Left)
		v.validateField(pred.Right)
		if !ValidOps[pred.Op] {
			v.addError("unknown comparison operator %q", pred.Op)
		}
	case And:
		v.validateList("And", pred.Predicates)
	case *And:
		v.validateList("And", pred.Predicates)
	case Or:
		v.validateList("Or", pred.Predicates)
	case *Or:
		v.validateList("Or", pred.Predicates)
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateCompare(c Compare) {
	v.validateField(c.Field)
	if !ValidOps[c.Op] {
		v.addError("unknown comparison operator %q", c.Op)
	}
}

func (v *validator) validateList(kind string, preds []Predicate) {
	if len(preds) == 0 {
		v.addError("empty %s", kind)
		return
	}
	for _, sub := range preds {
		if sub == nil {
			v.addError("nil predicate inside %s", kind)
			continue
		}
		v.validatePredicate(sub)
	}
}
