// Package coerce converts between logical IR values and the scalar
// encodings SQLite stores.
//
// Storage encodings:
//
//	decimal    TEXT     exact literal, e.g. "12.50"
//	date       TEXT     "2024-03-01"
//	timestamp  TEXT     RFC3339 UTC with fixed-width nanoseconds
//	bool       INTEGER  0 or 1
//	float      REAL
//	int        INTEGER
//	string     TEXT     (also text, enum)
//
// Both directions are pure functions.
package coerce

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/crudkit/internal/ir"
)

// Encode converts a canonical IR value to its storage-native form.
func Encode(f ir.FieldSpec, v ir.IRValue) (any, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.(ir.IRNull); ok {
		return nil, nil
	}

	mismatch := func() error {
		return fmt.Errorf("coerce: cannot encode %s as %s for field %q", ir.TypeName(v), f.Type, f.Name)
	}

	switch f.Type {
	case ir.TypeString, ir.TypeText, ir.TypeEnum:
		if s, ok := v.(ir.IRString); ok {
			return string(s), nil
		}
	case ir.TypeInt:
		if n, ok := v.(ir.IRInt); ok {
			return int64(n), nil
		}
	case ir.TypeFloat:
		switch n := v.(type) {
		case ir.IRFloat:
			return float64(n), nil
		case ir.IRInt:
			return float64(n), nil
		}
	case ir.TypeDecimal:
		if d, ok := v.(ir.IRDecimal); ok {
			return d.String(), nil
		}
	case ir.TypeBool:
		if b, ok := v.(ir.IRBool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case ir.TypeDate:
		if t, ok := v.(ir.IRTime); ok {
			return t.Time().UTC().Format(time.DateOnly), nil
		}
	case ir.TypeTimestamp:
		if t, ok := v.(ir.IRTime); ok {
			return ir.FormatStorageTime(t.Time()), nil
		}
	}
	return nil, mismatch()
}

// Decode converts a value scanned from the driver back to the field's
// logical type. It accepts the shapes both SQLite drivers produce:
// nil, int64, float64, string, []byte, bool and time.Time.
func Decode(f ir.FieldSpec, raw any) (ir.IRValue, error) {
	if raw == nil {
		return ir.IRNull{}, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	mismatch := func(err error) error {
		if err != nil {
			return fmt.Errorf("coerce: decode %q (%T) as %s: %w", f.Name, raw, f.Type, err)
		}
		return fmt.Errorf("coerce: decode %q: unexpected %T for %s", f.Name, raw, f.Type)
	}

	switch f.Type {
	case ir.TypeString, ir.TypeText, ir.TypeEnum:
		switch v := raw.(type) {
		case string:
			return ir.IRString(v), nil
		case int64:
			return ir.IRString(strconv.FormatInt(v, 10)), nil
		}

	case ir.TypeInt:
		switch v := raw.(type) {
		case int64:
			return ir.IRInt(v), nil
		case float64:
			if v == float64(int64(v)) {
				return ir.IRInt(int64(v)), nil
			}
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, mismatch(err)
			}
			return ir.IRInt(n), nil
		case bool:
			if v {
				return ir.IRInt(1), nil
			}
			return ir.IRInt(0), nil
		}

	case ir.TypeFloat:
		switch v := raw.(type) {
		case float64:
			return ir.IRFloat(v), nil
		case int64:
			return ir.IRFloat(float64(v)), nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, mismatch(err)
			}
			return ir.IRFloat(n), nil
		}

	case ir.TypeDecimal:
		switch v := raw.(type) {
		case string:
			d, err := ir.ParseIRDecimal(v)
			if err != nil {
				return nil, mismatch(err)
			}
			return d, nil
		case int64:
			var d ir.IRDecimal
			d.D.SetInt64(v)
			return d, nil
		case float64:
			// Only reachable for rows written outside crudkit; decimals are
			// stored as TEXT.
			d, err := ir.ParseIRDecimal(strconv.FormatFloat(v, 'f', -1, 64))
			if err != nil {
				return nil, mismatch(err)
			}
			return d, nil
		}

	case ir.TypeBool:
		switch v := raw.(type) {
		case int64:
			return ir.IRBool(v != 0), nil
		case bool:
			return ir.IRBool(v), nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, mismatch(err)
			}
			return ir.IRBool(b), nil
		}

	case ir.TypeDate:
		switch v := raw.(type) {
		case string:
			t, err := time.Parse(time.DateOnly, v)
			if err != nil {
				if t, err = time.Parse(time.RFC3339Nano, v); err != nil {
					return nil, mismatch(err)
				}
			}
			return ir.NewIRDate(t), nil
		case time.Time:
			return ir.NewIRDate(v), nil
		}

	case ir.TypeTimestamp:
		switch v := raw.(type) {
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, mismatch(err)
			}
			return ir.NewIRTime(t), nil
		case time.Time:
			return ir.NewIRTime(v), nil
		}
	}

	return nil, mismatch(nil)
}

// Row decodes every column of a scanned row using the entity's field specs.
// Columns the entity does not declare are dropped.
func Row(spec *ir.EntitySpec, raw map[string]any) (ir.IRObject, error) {
	out := make(ir.IRObject, len(raw))
	for col, val := range raw {
		f, ok := spec.Field(col)
		if !ok {
			continue
		}
		v, err := Decode(f, val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec.Name, err)
		}
		out[col] = v
	}
	return out, nil
}

// Rows applies Row to every element. The result is never nil.
func Rows[R ~map[string]any](spec *ir.EntitySpec, raws []R) ([]ir.IRObject, error) {
	out := make([]ir.IRObject, 0, len(raws))
	for _, raw := range raws {
		obj, err := Row(spec, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
