package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/crudkit/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrMissingTable      = "E101" // table is required
	ErrNoFields          = "E102" // at least one field required
	ErrInvalidIdentifier = "E103" // table/field name not a safe SQL identifier
	ErrInvalidFieldType  = "E104" // invalid type string
	ErrDuplicateName     = "E105" // duplicate entity/table/field/link name
	ErrReservedField     = "E106" // id/created_at/updated_at declared explicitly
	ErrEnumNoValues      = "E107" // enum field without values
	ErrUnknownReference  = "E108" // references/link target not in catalog
	ErrInvalidBound      = "E109" // min > max, negative lengths, bounds on wrong type
	ErrInvalidDefault    = "E110" // default does not match the field type
	ErrInvalidPattern    = "E111" // pattern does not compile
	ErrInvalidOnDelete   = "E112" // unknown on_delete action
	ErrInvalidOrder      = "E113" // order_by names unknown field
	ErrInvalidUnique     = "E114" // composite unique names unknown field
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a set of compiled entity specs together, so references
// and link targets can be resolved across the catalog.
// Returns all errors found (does not fail-fast).
func Validate(specs []ir.EntitySpec) []ValidationError {
	var errs []ValidationError

	names := make(map[string]bool, len(specs))
	tables := make(map[string]bool, len(specs))
	for i, spec := range specs {
		prefix := entityPrefix(spec, i)
		if names[spec.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix,
				Message: fmt.Sprintf("duplicate entity name: %q", spec.Name),
				Code:    ErrDuplicateName,
			})
		}
		names[spec.Name] = true

		if spec.Table != "" && tables[spec.Table] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".table",
				Message: fmt.Sprintf("duplicate table name: %q", spec.Table),
				Code:    ErrDuplicateName,
			})
		}
		tables[spec.Table] = true
	}

	for i := range specs {
		errs = append(errs, validateEntity(&specs[i], i, names, tables)...)
	}

	return errs
}

// validateEntity validates a single entity against catalog-wide name sets.
func validateEntity(spec *ir.EntitySpec, idx int, entities, tables map[string]bool) []ValidationError {
	var errs []ValidationError
	prefix := entityPrefix(*spec, idx)

	// E101: table is required
	if strings.TrimSpace(spec.Table) == "" {
		errs = append(errs, ValidationError{
			Field:   prefix + ".table",
			Message: "table is required and must be non-empty",
			Code:    ErrMissingTable,
		})
	} else if !identifierRe.MatchString(spec.Table) {
		errs = append(errs, ValidationError{
			Field:   prefix + ".table",
			Message: fmt.Sprintf("table name %q must match %s", spec.Table, identifierRe),
			Code:    ErrInvalidIdentifier,
		})
	}

	// E102: at least one field required
	if len(spec.Fields) == 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".fields",
			Message: "at least one field is required",
			Code:    ErrNoFields,
		})
	}

	seen := make(map[string]bool)
	for j, f := range spec.Fields {
		fieldPath := fmt.Sprintf("%s.fields.%s", prefix, f.Name)
		if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.fields[%d]", prefix, j),
				Message: fmt.Sprintf("duplicate field name: %q", f.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[f.Name] = true
		errs = append(errs, validateField(f, fieldPath, entities)...)
	}

	for j, l := range spec.Links {
		linkPath := fmt.Sprintf("%s.links.%s", prefix, l.Name)
		if seen[l.LinkArg()] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.links[%d]", prefix, j),
				Message: fmt.Sprintf("link argument %q collides with a field", l.LinkArg()),
				Code:    ErrDuplicateName,
			})
		}
		if !entities[l.Target] {
			errs = append(errs, ValidationError{
				Field:   linkPath + ".target",
				Message: fmt.Sprintf("unknown link target entity %q", l.Target),
				Code:    ErrUnknownReference,
			})
		}
		if !identifierRe.MatchString(l.Table) {
			errs = append(errs, ValidationError{
				Field:   linkPath + ".table",
				Message: fmt.Sprintf("link table %q must match %s", l.Table, identifierRe),
				Code:    ErrInvalidIdentifier,
			})
		} else if tables[l.Table] {
			errs = append(errs, ValidationError{
				Field:   linkPath + ".table",
				Message: fmt.Sprintf("link table %q collides with an entity table", l.Table),
				Code:    ErrDuplicateName,
			})
		}
	}

	if _, ok := spec.Field(spec.DefaultOrder.Field); !ok {
		errs = append(errs, ValidationError{
			Field:   prefix + ".order_by.field",
			Message: fmt.Sprintf("unknown order field %q", spec.DefaultOrder.Field),
			Code:    ErrInvalidOrder,
		})
	}

	for j, cols := range spec.Uniques {
		if len(cols) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.uniques[%d]", prefix, j),
				Message: "composite unique must name at least one field",
				Code:    ErrInvalidUnique,
			})
		}
		for _, c := range cols {
			if _, ok := spec.Field(c); !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.uniques[%d]", prefix, j),
					Message: fmt.Sprintf("unknown field %q", c),
					Code:    ErrInvalidUnique,
				})
			}
		}
	}

	return errs
}

// validateField validates a single field declaration.
func validateField(f ir.FieldSpec, path string, entities map[string]bool) []ValidationError {
	var errs []ValidationError

	if ir.ReservedFields[f.Name] {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("%q is an implicit column and cannot be declared", f.Name),
			Code:    ErrReservedField,
		})
	}
	if !identifierRe.MatchString(f.Name) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("field name %q must match %s", f.Name, identifierRe),
			Code:    ErrInvalidIdentifier,
		})
	}

	if !ir.ValidTypes[f.Type] {
		errs = append(errs, ValidationError{
			Field:   path + ".type",
			Message: fmt.Sprintf("invalid type %q, must be one of: string, text, int, float, decimal, bool, enum, date, timestamp", f.Type),
			Code:    ErrInvalidFieldType,
		})
		return errs
	}

	if f.Type == ir.TypeEnum && len(f.Values) == 0 {
		errs = append(errs, ValidationError{
			Field:   path + ".values",
			Message: "enum field requires at least one value",
			Code:    ErrEnumNoValues,
		})
	}

	if f.References != "" {
		if f.Type != ir.TypeInt {
			errs = append(errs, ValidationError{
				Field:   path + ".references",
				Message: "reference fields must have type int",
				Code:    ErrInvalidFieldType,
			})
		}
		if !entities[f.References] {
			errs = append(errs, ValidationError{
				Field:   path + ".references",
				Message: fmt.Sprintf("unknown referenced entity %q", f.References),
				Code:    ErrUnknownReference,
			})
		}
		switch f.OnDelete {
		case ir.OnDeleteCascade, ir.OnDeleteRestrict:
		case ir.OnDeleteSetNull:
			if !f.Nullable {
				errs = append(errs, ValidationError{
					Field:   path + ".on_delete",
					Message: "on_delete set_null requires a nullable field",
					Code:    ErrInvalidOnDelete,
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   path + ".on_delete",
				Message: fmt.Sprintf("invalid on_delete %q, must be cascade, restrict or set_null", f.OnDelete),
				Code:    ErrInvalidOnDelete,
			})
		}
	}

	if (f.Min != nil || f.Max != nil) && !f.Type.IsNumeric() {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "min/max only apply to int, float and decimal fields",
			Code:    ErrInvalidBound,
		})
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("min %v is greater than max %v", *f.Min, *f.Max),
			Code:    ErrInvalidBound,
		})
	}
	if (f.MinLength != nil || f.MaxLength != nil) && f.Type != ir.TypeString && f.Type != ir.TypeText {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "min_length/max_length only apply to string and text fields",
			Code:    ErrInvalidBound,
		})
	}
	if (f.MinLength != nil && *f.MinLength < 0) || (f.MaxLength != nil && *f.MaxLength < 0) ||
		(f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "length bounds must be non-negative and min_length <= max_length",
			Code:    ErrInvalidBound,
		})
	}

	if f.Pattern != "" {
		if _, err := regexp.Compile(f.Pattern); err != nil {
			errs = append(errs, ValidationError{
				Field:   path + ".pattern",
				Message: fmt.Sprintf("invalid pattern: %v", err),
				Code:    ErrInvalidPattern,
			})
		}
	}

	if f.Default != nil {
		if msg := checkDefault(f); msg != "" {
			errs = append(errs, ValidationError{
				Field:   path + ".default",
				Message: msg,
				Code:    ErrInvalidDefault,
			})
		}
	}

	return errs
}

// checkDefault returns a message when the default cannot serve the field.
func checkDefault(f ir.FieldSpec) string {
	switch d := f.Default.(type) {
	case ir.IRNull:
		if !f.Nullable {
			return "null default on a non-nullable field"
		}
	case ir.IRString:
		switch f.Type {
		case ir.TypeString, ir.TypeText, ir.TypeDecimal, ir.TypeDate, ir.TypeTimestamp:
		case ir.TypeEnum:
			for _, v := range f.Values {
				if v == string(d) {
					return ""
				}
			}
			return fmt.Sprintf("default %q is not one of %v", string(d), f.Values)
		default:
			return fmt.Sprintf("string default on %s field", f.Type)
		}
	case ir.IRInt:
		if !f.Type.IsNumeric() {
			return fmt.Sprintf("numeric default on %s field", f.Type)
		}
	case ir.IRNumber:
		if f.Type != ir.TypeFloat && f.Type != ir.TypeDecimal {
			return fmt.Sprintf("fractional default on %s field", f.Type)
		}
	case ir.IRBool:
		if f.Type != ir.TypeBool {
			return fmt.Sprintf("bool default on %s field", f.Type)
		}
	default:
		return fmt.Sprintf("unsupported default of type %s", ir.TypeName(f.Default))
	}
	return ""
}

func entityPrefix(spec ir.EntitySpec, idx int) string {
	if spec.Name != "" {
		return "entity." + spec.Name
	}
	return fmt.Sprintf("entity[%d]", idx)
}
