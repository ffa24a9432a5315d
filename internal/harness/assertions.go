package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/schema"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // assertion type
	Expected string       // expected outcome
	Actual   string       // actual outcome
	Trace    []TraceEvent // trace for context (trace assertions only)
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Seq, ev.Procedure, formatGo(ir.ToGo(ev.Args)), ev.Status)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(ctx context.Context, e *engine.Engine, result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(ctx, e, a)
		case AssertRowCount:
			err = assertRowCount(ctx, e, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertTraceContains passes if some call to the procedure had args
// matching the expected subset.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Procedure != a.Procedure {
			continue
		}
		if len(subsetDiff("args", a.Args, ir.ToGo(ev.Args))) == 0 {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("%s with args %s", a.Procedure, formatGo(a.Args)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first call of each procedure appears in
// the given order. Other calls may appear in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for _, ev := range trace {
		if _, seen := positions[ev.Procedure]; !seen {
			positions[ev.Procedure] = ev.Seq
		}
	}

	for _, p := range a.Procedures {
		if _, ok := positions[p]; !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all procedures present: %v", a.Procedures),
				Actual:   fmt.Sprintf("missing procedure: %s", p),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Procedures); i++ {
		prev, curr := a.Procedures[i-1], a.Procedures[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("procedures in order: %v", a.Procedures),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Procedure == a.Procedure {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d calls of %s", a.Count, a.Procedure),
			Actual:   fmt.Sprintf("%d calls", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState requires exactly one matching row and compares the
// expected fields against the decoded record.
func assertFinalState(ctx context.Context, e *engine.Engine, a Assertion) error {
	spec, q, err := whereQuery(e, a)
	if err != nil {
		return err
	}
	q.Limit = 2
	rows, err := e.Store().SelectMany(ctx, spec, q)
	if err != nil {
		return fmt.Errorf("final_state query %s: %w", spec.Name, err)
	}

	where := formatGo(a.Where)
	switch len(rows) {
	case 0:
		return &AssertionError{Type: AssertFinalState, Expected: fmt.Sprintf("a %s where %s", spec.Name, where), Actual: "row not found"}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one %s where %s", spec.Name, where),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	rec, err := e.Record(ctx, spec, rows[0])
	if err != nil {
		return err
	}
	if diffs := subsetDiff(spec.Name, a.Expect, ir.ToGo(rec)); len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s where %s to have %s", spec.Name, where, formatGo(a.Expect)),
			Actual:   strings.Join(diffs, "; "),
		}
	}
	return nil
}

func assertRowCount(ctx context.Context, e *engine.Engine, a Assertion) error {
	spec, q, err := whereQuery(e, a)
	if err != nil {
		return err
	}
	n, err := e.Store().Count(ctx, spec, q.Conditions)
	if err != nil {
		return fmt.Errorf("row_count query %s: %w", spec.Name, err)
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d %s rows where %s", a.Count, spec.Name, formatGo(a.Where)),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// whereQuery turns an assertion's where map into a typed list query using
// the same filter rules as the list procedures.
func whereQuery(e *engine.Engine, a Assertion) (*ir.EntitySpec, ir.ListQuery, error) {
	spec, ok := e.Spec(a.Entity)
	if !ok {
		return nil, ir.ListQuery{}, fmt.Errorf("unknown entity %q", a.Entity)
	}
	where, err := toIRObject(a.Where)
	if err != nil {
		return nil, ir.ListQuery{}, fmt.Errorf("where: %w", err)
	}
	q, err := schema.ValidateQuery(spec, ir.IRObject{schema.KeyFilter: where})
	if err != nil {
		return nil, ir.ListQuery{}, fmt.Errorf("where: %w", err)
	}
	return spec, q, nil
}

// subsetDiff compares expected (YAML-decoded) against actual (ir.ToGo
// output). Maps match when every expected key matches; extra actual keys are
// ignored. Numbers compare by value regardless of Go type.
func subsetDiff(path string, expected, actual any) []string {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("%s: expected object, got %s", path, formatGo(actual))}
		}
		keys := make([]string, 0, len(exp))
		for k := range exp {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var diffs []string
		for _, k := range keys {
			av, present := act[k]
			if !present {
				diffs = append(diffs, fmt.Sprintf("%s.%s: missing", path, k))
				continue
			}
			diffs = append(diffs, subsetDiff(path+"."+k, exp[k], av)...)
		}
		return diffs
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return []string{fmt.Sprintf("%s: expected %s, got %s", path, formatGo(expected), formatGo(actual))}
		}
		var diffs []string
		for i := range exp {
			diffs = append(diffs, subsetDiff(fmt.Sprintf("%s[%d]", path, i), exp[i], act[i])...)
		}
		return diffs
	default:
		if !scalarEqual(expected, actual) {
			return []string{fmt.Sprintf("%s: expected %s, got %s", path, formatGo(expected), formatGo(actual))}
		}
		return nil
	}
}

func scalarEqual(expected, actual any) bool {
	if en, ok := asInt(expected); ok {
		an, ok := asInt(actual)
		return ok && en == an
	}
	if ef, ok := expected.(float64); ok {
		af, ok := actual.(float64)
		return ok && ef == af
	}
	return reflect.DeepEqual(expected, actual)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// formatGo renders a value deterministically for messages.
func formatGo(v any) string {
	irv, err := ir.FromGo(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	b, err := ir.MarshalCanonical(irv)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
