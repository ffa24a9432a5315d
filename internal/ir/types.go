package ir

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// FieldType names a logical field type declared in an entity spec.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeText      FieldType = "text"
	TypeInt       FieldType = "int"
	TypeFloat     FieldType = "float"
	TypeDecimal   FieldType = "decimal"
	TypeBool      FieldType = "bool"
	TypeEnum      FieldType = "enum"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
)

// ValidTypes defines the allowed field type strings.
var ValidTypes = map[FieldType]bool{
	TypeString:    true,
	TypeText:      true,
	TypeInt:       true,
	TypeFloat:     true,
	TypeDecimal:   true,
	TypeBool:      true,
	TypeEnum:      true,
	TypeDate:      true,
	TypeTimestamp: true,
}

// Implicit column names present on every entity table.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// ReservedFields cannot be declared in a spec or written by a caller.
var ReservedFields = map[string]bool{
	FieldID:        true,
	FieldCreatedAt: true,
	FieldUpdatedAt: true,
}

// OnDelete actions for foreign keys.
const (
	OnDeleteCascade  = "cascade"
	OnDeleteRestrict = "restrict"
	OnDeleteSetNull  = "set_null"
)

// EntitySpec represents a compiled entity definition.
type EntitySpec struct {
	Name         string      `json:"name"`
	Table        string      `json:"table"`
	Purpose      string      `json:"purpose,omitempty"`
	Fields       []FieldSpec `json:"fields"`
	Links        []LinkSpec  `json:"links,omitempty"`
	Uniques      [][]string  `json:"uniques,omitempty"` // composite unique constraints
	DefaultOrder Order       `json:"default_order"`
}

// FieldSpec declares one column and its constraints.
type FieldSpec struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required,omitempty"`
	Nullable   bool      `json:"nullable,omitempty"`
	Default    IRValue   `json:"default,omitempty"`
	Min        *float64  `json:"min,omitempty"`
	Max        *float64  `json:"max,omitempty"`
	MinLength  *int      `json:"min_length,omitempty"`
	MaxLength  *int      `json:"max_length,omitempty"`
	Pattern    string    `json:"pattern,omitempty"`
	Values     []string  `json:"values,omitempty"`     // enum members
	References string    `json:"references,omitempty"` // parent entity name
	OnDelete   string    `json:"on_delete,omitempty"`
	Unique     bool      `json:"unique,omitempty"`
	Indexed    bool      `json:"indexed,omitempty"`
}

// UnmarshalJSON decodes a field spec written by json.Marshal, such as
// compiled IR. The default is decoded the same way spec defaults are, so the
// field round-trips.
func (f *FieldSpec) UnmarshalJSON(data []byte) error {
	type plain FieldSpec
	aux := struct {
		*plain
		Default json.RawMessage `json:"default,omitempty"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.Default = nil
	if len(aux.Default) == 0 {
		return nil
	}
	def, err := UnmarshalIRValue(aux.Default)
	if err != nil {
		return fmt.Errorf("field %s default: %w", f.Name, err)
	}
	f.Default = def
	return nil
}

// LinkSpec declares a many-to-many association table owned by an entity.
type LinkSpec struct {
	Name   string `json:"name"`   // e.g. "tags"
	Target string `json:"target"` // target entity name, e.g. "Tag"
	Table  string `json:"table"`  // association table, e.g. "bookmark_tags"
}

// Order is a sort key.
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// Field returns the declared field with the given name. Implicit columns are
// synthesized so callers can treat id/created_at/updated_at uniformly.
func (e *EntitySpec) Field(name string) (FieldSpec, bool) {
	switch name {
	case FieldID:
		return FieldSpec{Name: FieldID, Type: TypeInt, Indexed: true}, true
	case FieldCreatedAt, FieldUpdatedAt:
		return FieldSpec{Name: name, Type: TypeTimestamp, Indexed: true}, true
	}
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Columns returns every column name in table order: id, declared fields,
// created_at, updated_at.
func (e *EntitySpec) Columns() []string {
	cols := make([]string, 0, len(e.Fields)+3)
	cols = append(cols, FieldID)
	for _, f := range e.Fields {
		cols = append(cols, f.Name)
	}
	return append(cols, FieldCreatedAt, FieldUpdatedAt)
}

// AllFields returns FieldSpecs for every column, including implicit ones.
func (e *EntitySpec) AllFields() []FieldSpec {
	out := make([]FieldSpec, 0, len(e.Fields)+3)
	for _, c := range e.Columns() {
		f, _ := e.Field(c)
		out = append(out, f)
	}
	return out
}

// Link returns the link with the given name.
func (e *EntitySpec) Link(name string) (LinkSpec, bool) {
	for _, l := range e.Links {
		if l.Name == name {
			return l, true
		}
	}
	return LinkSpec{}, false
}

// LinkArg is the request/response key carrying a link's target ids,
// e.g. "tag_ids" for link "tags".
func (l LinkSpec) LinkArg() string {
	return singular(l.Name) + "_ids"
}

// OwnerColumn is the association column pointing at the owning entity.
func (l LinkSpec) OwnerColumn(owner *EntitySpec) string {
	return SnakeName(owner.Name) + "_id"
}

// TargetColumn is the association column pointing at the linked entity.
func (l LinkSpec) TargetColumn() string {
	return SnakeName(l.Target) + "_id"
}

// ProcedurePrefix is the lower_snake_case name used in procedure names,
// e.g. "stock_movement" for entity StockMovement.
func (e *EntitySpec) ProcedurePrefix() string {
	return SnakeName(e.Name)
}

// IsNumeric reports whether values of this type support range comparison.
func (t FieldType) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat || t == TypeDecimal
}

// IsOrdered reports whether values of this type have a meaningful order for
// range filters.
func (t FieldType) IsOrdered() bool {
	return t.IsNumeric() || t == TypeDate || t == TypeTimestamp
}

// SnakeName converts CamelCase to lower_snake_case.
func SnakeName(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// singular strips a trailing plural "s" ("tags" → "tag", "categories" → "category").
func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}
