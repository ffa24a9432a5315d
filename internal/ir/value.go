package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/cockroachdb/apd/v3"
)

// IRValue is a sealed interface representing the logical value types a
// procedure can receive or return.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a JSON null value.
// Using an explicit type ensures all IRValues satisfy the sealed interface.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRFloat represents an approximate numeric value (durations, scores, ratings).
// Money never uses IRFloat; see IRDecimal.
type IRFloat float64

func (IRFloat) irValue() {}

// IRDecimal represents an exact fixed-point value.
// The zero value is 0.
type IRDecimal struct {
	D apd.Decimal
}

func (IRDecimal) irValue() {}

// IRTime represents an instant. Dates are IRTime truncated to UTC midnight.
type IRTime time.Time

func (IRTime) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// NewIRString creates an IRString value.
func NewIRString(s string) IRString {
	return IRString(s)
}

// NewIRInt creates an IRInt value.
func NewIRInt(n int64) IRInt {
	return IRInt(n)
}

// NewIRBool creates an IRBool value.
func NewIRBool(b bool) IRBool {
	return IRBool(b)
}

// NewIRArray creates an IRArray from values.
func NewIRArray(vals ...IRValue) IRArray {
	return IRArray(vals)
}

// NewIRTime creates an IRTime normalised to UTC.
func NewIRTime(t time.Time) IRTime {
	return IRTime(t.UTC())
}

// NewIRDate creates an IRTime truncated to the calendar day in UTC.
func NewIRDate(t time.Time) IRTime {
	u := t.UTC()
	return IRTime(time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC))
}

// ParseIRDecimal parses an exact decimal literal such as "12.50".
func ParseIRDecimal(s string) (IRDecimal, error) {
	var d IRDecimal
	if _, _, err := d.D.SetString(strings.TrimSpace(s)); err != nil {
		return IRDecimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.D.Form != apd.Finite {
		return IRDecimal{}, fmt.Errorf("invalid decimal %q: not finite", s)
	}
	return d, nil
}

// MustDecimal parses a decimal literal and panics on failure. Intended for
// constants and tests.
func MustDecimal(s string) IRDecimal {
	d, err := ParseIRDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the plain (non-exponent) text form of the decimal.
func (d IRDecimal) String() string {
	return d.D.Text('f')
}

// Time returns the underlying time.Time.
func (t IRTime) Time() time.Time {
	return time.Time(t)
}

// IsDate reports whether the instant sits exactly on UTC midnight.
func (t IRTime) IsDate() bool {
	u := time.Time(t).UTC()
	return u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0
}

// IRPair represents a key-value pair for typed IRObject construction.
type IRPair struct {
	Key   string
	Value IRValue
}

// NewIRObjectFromMap creates an IRObject from an existing map.
func NewIRObjectFromMap(m map[string]IRValue) IRObject {
	return IRObject(m)
}

// NewIRObjectFromPairs creates an IRObject from typed key-value pairs.
// Example: NewIRObjectFromPairs(O("name", NewIRString("widget")), O("stock", NewIRInt(5)))
func NewIRObjectFromPairs(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// O is a shorthand for IRPair for ergonomic construction.
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for astral characters.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Has reports whether key is present (including explicit null).
func (obj IRObject) Has(key string) bool {
	_, ok := obj[key]
	return ok
}

// Clone returns a shallow copy of the object.
func (obj IRObject) Clone() IRObject {
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
// Numbers are kept as IRInt when integral; otherwise they become IRNumber
// literals so the field type can decide between float and decimal.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", TypeName(v))
	}
	*obj = o
	return nil
}

// IRNumber is a non-integral JSON number literal that has not yet been given
// a type. The schema validator turns it into IRFloat or IRDecimal.
type IRNumber string

func (IRNumber) irValue() {}

// UnmarshalIRValue decodes JSON into an IRValue.
// Integral numbers become IRInt, other numbers IRNumber (exact literal text),
// null becomes IRNull.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON (or YAML) Go values into an IRValue.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		return IRInt(int64(val)), nil
	case float64:
		if val == float64(int64(val)) {
			return IRInt(int64(val)), nil
		}
		return IRNumber(strconv.FormatFloat(val, 'f', -1, 64)), nil
	case json.Number:
		s := string(val)
		if !strings.ContainsAny(s, ".eE") {
			n, err := val.Int64()
			if err != nil {
				return nil, fmt.Errorf("number out of int64 range: %s", s)
			}
			return IRInt(n), nil
		}
		return IRNumber(s), nil
	case time.Time:
		return NewIRTime(val), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// NOTE: This is NOT canonical marshaling (HTML escaping, no NFC). Use
// MarshalCanonical for digests and golden files.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler for IRArray.
func (arr IRArray) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalIRValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
// Decimals are emitted as JSON strings so clients never round them through
// a binary float.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRFloat:
		return json.Marshal(float64(val))
	case IRNumber:
		return []byte(val), nil
	case IRDecimal:
		return json.Marshal(val.String())
	case IRTime:
		return json.Marshal(FormatTime(val))
	case IRArray:
		return val.MarshalJSON()
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// StorageTimeLayout is RFC3339 with fixed-width nanoseconds. Stored
// timestamps use it so that TEXT comparison matches chronological order.
const StorageTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatStorageTime renders an instant in StorageTimeLayout (UTC).
func FormatStorageTime(t time.Time) string {
	return t.UTC().Format(StorageTimeLayout)
}

// FormatTime renders dates as YYYY-MM-DD and instants as RFC3339Nano UTC.
func FormatTime(t IRTime) string {
	if t.IsDate() {
		return t.Time().UTC().Format(time.DateOnly)
	}
	return t.Time().UTC().Format(time.RFC3339Nano)
}

// ToGo converts an IRValue into plain Go values (for YAML/JSON comparison in
// tests and scenario assertions). Decimals and times become strings.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRFloat:
		return float64(val)
	case IRNumber:
		return string(val)
	case IRDecimal:
		return val.String()
	case IRTime:
		return FormatTime(val)
	case IRArray:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToGo(e)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToGo(e)
		}
		return out
	default:
		return nil
	}
}

// TypeName returns a short human name for the dynamic type of v.
func TypeName(v IRValue) string {
	switch v.(type) {
	case nil, IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt:
		return "int"
	case IRBool:
		return "bool"
	case IRFloat:
		return "float"
	case IRNumber:
		return "number"
	case IRDecimal:
		return "decimal"
	case IRTime:
		return "time"
	case IRArray:
		return "array"
	case IRObject:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// MarshalJSON renders the decimal as a JSON string.
func (d IRDecimal) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// MarshalJSON renders the instant via FormatTime.
func (t IRTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatTime(t))
}

// MarshalJSON emits the literal as written.
func (n IRNumber) MarshalJSON() ([]byte, error) {
	return []byte(n), nil
}
