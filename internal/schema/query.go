package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/crudkit/internal/ir"
)

// List request keys.
const (
	KeyFilter  = "filter"
	KeyOrderBy = "order_by"
	KeyLimit   = "limit"
	KeyOffset  = "offset"
)

// ValidateQuery checks list parameters and returns a ListQuery.
//
// Accepted input:
//
//	{
//	  "filter":   {"product_id": 3, "stock_level": {"lte": 5}, "notes": null},
//	  "order_by": "-created_at",   // leading "-" sorts descending
//	  "limit":    50,              // 1..500, default 50
//	  "offset":   0
//	}
//
// A bare filter value means equality and null means IS NULL. Range
// operators are only accepted on numeric, decimal, date and timestamp fields.
// Conditions are returned sorted by field.
func ValidateQuery(spec *ir.EntitySpec, input ir.IRObject) (ir.ListQuery, error) {
	q := ir.ListQuery{
		Order: spec.DefaultOrder,
		Limit: ir.DefaultLimit,
	}
	var vs []Violation

	for _, key := range input.SortedKeys() {
		val := input[key]
		switch key {
		case KeyFilter:
			conds, fvs := parseFilter(spec, val)
			q.Conditions = conds
			vs = append(vs, fvs...)
		case KeyOrderBy:
			order, v := parseOrder(spec, val)
			if v != nil {
				vs = append(vs, *v)
				continue
			}
			q.Order = order
		case KeyLimit:
			n, ok := val.(ir.IRInt)
			switch {
			case !ok:
				vs = append(vs, Violation{Field: key, Code: CodeType, Message: "must be an integer"})
			case n < 1 || n > ir.MaxLimit:
				vs = append(vs, Violation{Field: key, Code: CodeRange, Message: fmt.Sprintf("must be between 1 and %d", ir.MaxLimit)})
			default:
				q.Limit = int(n)
			}
		case KeyOffset:
			n, ok := val.(ir.IRInt)
			switch {
			case !ok:
				vs = append(vs, Violation{Field: key, Code: CodeType, Message: "must be an integer"})
			case n < 0:
				vs = append(vs, Violation{Field: key, Code: CodeRange, Message: "must be >= 0"})
			default:
				q.Offset = int(n)
			}
		default:
			vs = append(vs, Violation{Field: key, Code: CodeUnknown, Message: "is not a list parameter"})
		}
	}

	if err := newValidationError(spec.Name, vs); err != nil {
		return ir.ListQuery{}, err
	}
	return q, nil
}

func parseFilter(spec *ir.EntitySpec, val ir.IRValue) ([]ir.Condition, []Violation) {
	obj, ok := val.(ir.IRObject)
	if !ok {
		return nil, []Violation{{Field: KeyFilter, Code: CodeType, Message: "must be an object"}}
	}

	var conds []ir.Condition
	var vs []Violation
	for _, name := range obj.SortedKeys() {
		path := KeyFilter + "." + name
		f, ok := spec.Field(name)
		if !ok {
			vs = append(vs, Violation{Field: path, Code: CodeUnknown, Message: "is not a known field"})
			continue
		}
		// Filter values are parsed, not range-checked.
		f.Name = path

		switch term := obj[name].(type) {
		case ir.IRNull:
			conds = append(conds, ir.Condition{Field: name, Op: ir.OpIsNull, Value: ir.IRBool(true)})
		case ir.IRObject:
			for _, opName := range term.SortedKeys() {
				cond, v := parseOperator(f, name, ir.FilterOp(opName), term[opName])
				if v != nil {
					vs = append(vs, *v)
					continue
				}
				conds = append(conds, cond)
			}
		default:
			cv, v := parseValue(f, term)
			if v != nil {
				vs = append(vs, *v)
				continue
			}
			conds = append(conds, ir.Condition{Field: name, Op: ir.OpEq, Value: cv})
		}
	}
	return conds, vs
}

func parseOperator(f ir.FieldSpec, column string, op ir.FilterOp, val ir.IRValue) (ir.Condition, *Violation) {
	cond := ir.Condition{Field: column, Op: op}

	if !ir.FilterOps[op] {
		return cond, &Violation{Field: f.Name, Code: CodeUnknown, Message: fmt.Sprintf("unknown operator %q", op)}
	}
	if op.IsRange() && !f.Type.IsOrdered() {
		return cond, &Violation{Field: f.Name, Code: CodeType, Message: fmt.Sprintf("operator %s needs a numeric, decimal, date or timestamp field", op)}
	}

	switch op {
	case ir.OpIsNull:
		b, ok := val.(ir.IRBool)
		if !ok {
			return cond, &Violation{Field: f.Name, Code: CodeType, Message: "is_null must be a boolean"}
		}
		cond.Value = b
	case ir.OpIn:
		arr, ok := val.(ir.IRArray)
		if !ok {
			return cond, &Violation{Field: f.Name, Code: CodeType, Message: "in must be an array"}
		}
		cond.Values = make([]ir.IRValue, 0, len(arr))
		for _, elem := range arr {
			cv, v := parseValue(f, elem)
			if v != nil {
				return cond, v
			}
			cond.Values = append(cond.Values, cv)
		}
	default:
		if _, isNull := val.(ir.IRNull); isNull {
			return cond, &Violation{Field: f.Name, Code: CodeNull, Message: fmt.Sprintf("%s cannot compare with null; use is_null", op)}
		}
		cv, v := parseValue(f, val)
		if v != nil {
			return cond, v
		}
		cond.Value = cv
	}
	return cond, nil
}

func parseOrder(spec *ir.EntitySpec, val ir.IRValue) (ir.Order, *Violation) {
	s, ok := val.(ir.IRString)
	if !ok {
		return ir.Order{}, &Violation{Field: KeyOrderBy, Code: CodeType, Message: "must be a field name, optionally prefixed with -"}
	}
	name := string(s)
	desc := strings.HasPrefix(name, "-")
	name = strings.TrimPrefix(name, "-")
	if _, ok := spec.Field(name); !ok {
		return ir.Order{}, &Violation{Field: KeyOrderBy, Code: CodeUnknown, Message: fmt.Sprintf("%q is not a known field", name)}
	}
	return ir.Order{Field: name, Desc: desc}, nil
}

// ValidateID extracts a positive "id" from input.
func ValidateID(entity string, input ir.IRObject) (int64, error) {
	return ValidateIDField(entity, input, ir.FieldID)
}

// ValidateIDField extracts a positive integer id stored under key.
func ValidateIDField(entity string, input ir.IRObject, key string) (int64, error) {
	val, ok := input[key]
	if !ok {
		return 0, newValidationError(entity, []Violation{{Field: key, Code: CodeRequired, Message: "is required"}})
	}
	n, ok := val.(ir.IRInt)
	if !ok {
		return 0, newValidationError(entity, []Violation{{Field: key, Code: CodeType, Message: fmt.Sprintf("must be an integer, got %s", ir.TypeName(val))}})
	}
	if n <= 0 {
		return 0, newValidationError(entity, []Violation{{Field: key, Code: CodeRange, Message: "must be a positive id"}})
	}
	return int64(n), nil
}
