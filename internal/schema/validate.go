// Package schema validates inbound request objects against entity specs.
//
// Validation is pure: it never touches storage. It returns a canonical copy
// of the input (strings normalized, numbers typed, dates parsed, defaults
// filled) or a *ValidationError listing every violated field.
package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/crudkit/internal/ir"
)

// Mode selects create or partial-update semantics.
type Mode int

const (
	// Create requires every required field and fills defaults.
	Create Mode = iota
	// Patch validates only the fields present.
	Patch
)

func (m Mode) String() string {
	if m == Patch {
		return "patch"
	}
	return "create"
}

// Validate checks input against the entity's declared fields and links.
//
// Link id lists (e.g. "tag_ids") are accepted and returned as sorted,
// de-duplicated IRArrays of IRInt.
func Validate(spec *ir.EntitySpec, input ir.IRObject, mode Mode) (ir.IRObject, error) {
	return ValidateFields(spec.Name, spec.Fields, spec.Links, input, mode)
}

// ValidateFields is Validate over an explicit field list. Custom procedures
// use it to validate their arguments with the same rules as entities.
func ValidateFields(entity string, fields []ir.FieldSpec, links []ir.LinkSpec, input ir.IRObject, mode Mode) (ir.IRObject, error) {
	byName := make(map[string]ir.FieldSpec, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	byArg := make(map[string]ir.LinkSpec, len(links))
	for _, l := range links {
		byArg[l.LinkArg()] = l
	}

	out := make(ir.IRObject, len(input))
	var vs []Violation

	for _, key := range input.SortedKeys() {
		val := input[key]

		if ir.ReservedFields[key] {
			vs = append(vs, Violation{Field: key, Code: CodeReadonly, Message: "is assigned by the server and cannot be set"})
			continue
		}
		if _, ok := byArg[key]; ok {
			ids, v := coerceIDList(key, val)
			if v != nil {
				vs = append(vs, *v)
				continue
			}
			out[key] = ids
			continue
		}
		f, ok := byName[key]
		if !ok {
			vs = append(vs, Violation{Field: key, Code: CodeUnknown, Message: "is not a known field"})
			continue
		}

		cv, fieldVs := coerceField(f, val)
		if len(fieldVs) > 0 {
			vs = append(vs, fieldVs...)
			continue
		}
		out[key] = cv
	}

	if mode == Create {
		for _, f := range fields {
			if input.Has(f.Name) {
				continue
			}
			switch {
			case f.Default != nil:
				dv, fieldVs := coerceField(f, f.Default)
				if len(fieldVs) > 0 {
					vs = append(vs, fieldVs...)
					continue
				}
				out[f.Name] = dv
			case f.Required || !f.Nullable:
				vs = append(vs, Violation{Field: f.Name, Code: CodeRequired, Message: "is required"})
			default:
				out[f.Name] = ir.IRNull{}
			}
		}
	}

	if err := newValidationError(entity, vs); err != nil {
		return nil, err
	}
	return out, nil
}

// coerceField parses a value for a field and checks every constraint.
// All violations for the field are returned.
func coerceField(f ir.FieldSpec, val ir.IRValue) (ir.IRValue, []Violation) {
	if _, isNull := val.(ir.IRNull); isNull || val == nil {
		switch {
		case f.Required:
			return nil, []Violation{{Field: f.Name, Code: CodeRequired, Message: "is required"}}
		case !f.Nullable:
			return nil, []Violation{{Field: f.Name, Code: CodeNull, Message: "cannot be null"}}
		}
		return ir.IRNull{}, nil
	}

	cv, v := parseValue(f, val)
	if v != nil {
		return nil, []Violation{*v}
	}

	var vs []Violation
	switch typed := cv.(type) {
	case ir.IRString:
		vs = append(vs, checkString(f, string(typed))...)
		if f.Type == ir.TypeEnum && !contains(f.Values, string(typed)) {
			vs = append(vs, Violation{Field: f.Name, Code: CodeEnum, Message: fmt.Sprintf("must be one of %s", strings.Join(f.Values, ", "))})
		}
	case ir.IRInt:
		if f.References != "" && typed <= 0 {
			vs = append(vs, Violation{Field: f.Name, Code: CodeRange, Message: "must be a positive id"})
		}
		vs = append(vs, checkRange(f, float64(typed))...)
	case ir.IRFloat:
		vs = append(vs, checkRange(f, float64(typed))...)
	case ir.IRDecimal:
		vs = append(vs, checkDecimalRange(f, typed)...)
	}
	if len(vs) > 0 {
		return nil, vs
	}
	return cv, nil
}

// parseValue converts a JSON-decoded value to the field's canonical IR type
// without checking bounds. Filters use it directly.
func parseValue(f ir.FieldSpec, val ir.IRValue) (ir.IRValue, *Violation) {
	typeErr := func(want string) *Violation {
		return &Violation{Field: f.Name, Code: CodeType, Message: fmt.Sprintf("must be %s, got %s", want, ir.TypeName(val))}
	}

	switch f.Type {
	case ir.TypeString, ir.TypeText, ir.TypeEnum:
		s, ok := val.(ir.IRString)
		if !ok {
			return nil, typeErr("a string")
		}
		return ir.IRString(strings.TrimSpace(norm.NFC.String(string(s)))), nil

	case ir.TypeInt:
		switch n := val.(type) {
		case ir.IRInt:
			return n, nil
		case ir.IRNumber:
			// Accept integral literals written with a fraction, e.g. 5.0
			var d apd.Decimal
			if _, _, err := d.SetString(string(n)); err == nil {
				var integral apd.Decimal
				if _, err := apd.BaseContext.WithPrecision(34).RoundToIntegralExact(&integral, &d); err == nil && integral.Cmp(&d) == 0 {
					if i, err := integral.Int64(); err == nil {
						return ir.IRInt(i), nil
					}
				}
			}
			return nil, &Violation{Field: f.Name, Code: CodeType, Message: "must be an integer"}
		}
		return nil, typeErr("an integer")

	case ir.TypeFloat:
		switch n := val.(type) {
		case ir.IRInt:
			return ir.IRFloat(float64(n)), nil
		case ir.IRFloat:
			return n, nil
		case ir.IRNumber:
			fv, err := strconv.ParseFloat(string(n), 64)
			if err != nil {
				return nil, typeErr("a number")
			}
			return ir.IRFloat(fv), nil
		}
		return nil, typeErr("a number")

	case ir.TypeDecimal:
		switch n := val.(type) {
		case ir.IRDecimal:
			return n, nil
		case ir.IRInt:
			var d ir.IRDecimal
			d.D.SetInt64(int64(n))
			return d, nil
		case ir.IRNumber:
			d, err := ir.ParseIRDecimal(string(n))
			if err != nil {
				return nil, typeErr("a decimal")
			}
			return d, nil
		case ir.IRString:
			d, err := ir.ParseIRDecimal(string(n))
			if err != nil {
				return nil, &Violation{Field: f.Name, Code: CodeType, Message: fmt.Sprintf("%q is not a decimal number", string(n))}
			}
			return d, nil
		}
		return nil, typeErr("a decimal")

	case ir.TypeBool:
		b, ok := val.(ir.IRBool)
		if !ok {
			return nil, typeErr("a boolean")
		}
		return b, nil

	case ir.TypeDate:
		switch t := val.(type) {
		case ir.IRTime:
			return ir.NewIRDate(t.Time()), nil
		case ir.IRString:
			d, err := ParseDate(string(t))
			if err != nil {
				return nil, &Violation{Field: f.Name, Code: CodeType, Message: fmt.Sprintf("%q is not a date (YYYY-MM-DD)", string(t))}
			}
			return d, nil
		}
		return nil, typeErr("a date string")

	case ir.TypeTimestamp:
		switch t := val.(type) {
		case ir.IRTime:
			return ir.NewIRTime(t.Time()), nil
		case ir.IRString:
			ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(t)))
			if err != nil {
				return nil, &Violation{Field: f.Name, Code: CodeType, Message: fmt.Sprintf("%q is not an RFC3339 timestamp", string(t))}
			}
			return ir.NewIRTime(ts), nil
		}
		return nil, typeErr("a timestamp string")
	}

	return nil, &Violation{Field: f.Name, Code: CodeType, Message: fmt.Sprintf("unsupported field type %q", f.Type)}
}

// ParseDate accepts YYYY-MM-DD or an RFC3339 timestamp and returns the
// calendar day it names (in the timestamp's own offset).
func ParseDate(s string) (ir.IRTime, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return ir.NewIRDate(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return ir.IRTime{}, err
	}
	return ir.IRTime(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)), nil
}

func checkString(f ir.FieldSpec, s string) []Violation {
	var vs []Violation
	n := utf8.RuneCountInString(s)
	if f.MinLength != nil && n < *f.MinLength {
		vs = append(vs, Violation{Field: f.Name, Code: CodeLength, Message: fmt.Sprintf("must be at least %d characters", *f.MinLength)})
	}
	if f.MaxLength != nil && n > *f.MaxLength {
		vs = append(vs, Violation{Field: f.Name, Code: CodeLength, Message: fmt.Sprintf("must be at most %d characters", *f.MaxLength)})
	}
	if f.Pattern != "" {
		re, err := compilePattern(f.Pattern)
		if err != nil || !re.MatchString(s) {
			vs = append(vs, Violation{Field: f.Name, Code: CodePattern, Message: fmt.Sprintf("must match %s", f.Pattern)})
		}
	}
	return vs
}

func checkRange(f ir.FieldSpec, n float64) []Violation {
	if f.Min != nil && n < *f.Min {
		return []Violation{{Field: f.Name, Code: CodeRange, Message: fmt.Sprintf("must be >= %s", formatBound(*f.Min))}}
	}
	if f.Max != nil && n > *f.Max {
		return []Violation{{Field: f.Name, Code: CodeRange, Message: fmt.Sprintf("must be <= %s", formatBound(*f.Max))}}
	}
	return nil
}

// checkDecimalRange compares in decimal arithmetic so 0.1 + 0.2 style float
// artefacts never decide a bound.
func checkDecimalRange(f ir.FieldSpec, d ir.IRDecimal) []Violation {
	if f.Min != nil {
		var bound apd.Decimal
		if _, err := bound.SetFloat64(*f.Min); err == nil && d.D.Cmp(&bound) < 0 {
			return []Violation{{Field: f.Name, Code: CodeRange, Message: fmt.Sprintf("must be >= %s", formatBound(*f.Min))}}
		}
	}
	if f.Max != nil {
		var bound apd.Decimal
		if _, err := bound.SetFloat64(*f.Max); err == nil && d.D.Cmp(&bound) > 0 {
			return []Violation{{Field: f.Name, Code: CodeRange, Message: fmt.Sprintf("must be <= %s", formatBound(*f.Max))}}
		}
	}
	return nil
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// coerceIDList validates a link id list.
func coerceIDList(key string, val ir.IRValue) (ir.IRArray, *Violation) {
	arr, ok := val.(ir.IRArray)
	if !ok {
		return nil, &Violation{Field: key, Code: CodeType, Message: fmt.Sprintf("must be an array of ids, got %s", ir.TypeName(val))}
	}
	seen := make(map[int64]bool, len(arr))
	ids := make([]int64, 0, len(arr))
	for _, elem := range arr {
		n, ok := elem.(ir.IRInt)
		if !ok {
			return nil, &Violation{Field: key, Code: CodeType, Message: fmt.Sprintf("must contain only integer ids, got %s", ir.TypeName(elem))}
		}
		if n <= 0 {
			return nil, &Violation{Field: key, Code: CodeRange, Message: "ids must be positive"}
		}
		if !seen[int64(n)] {
			seen[int64(n)] = true
			ids = append(ids, int64(n))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make(ir.IRArray, len(ids))
	for i, id := range ids {
		out[i] = ir.IRInt(id)
	}
	return out, nil
}

var patternCache sync.Map // pattern string → *regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
