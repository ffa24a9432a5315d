package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/crudkit/internal/ir"
)

// CompileEntity parses a CUE value into an EntitySpec.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: Product: { table: "products", fields: {...} }`)
//	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.Product")))
func CompileEntity(v cue.Value) (*ir.EntitySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.EntitySpec{
		DefaultOrder: ir.Order{Field: ir.FieldCreatedAt, Desc: true},
	}

	// Entity name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	table, err := lookupString(v, "table")
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, &CompileError{
			Field:   "table",
			Message: "table is required",
			Pos:     v.Pos(),
		}
	}
	spec.Table = table

	if spec.Purpose, err = lookupString(v, "purpose"); err != nil {
		return nil, err
	}

	spec.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}

	spec.Links, err = parseLinks(v)
	if err != nil {
		return nil, err
	}

	spec.Uniques, err = parseUniques(v)
	if err != nil {
		return nil, err
	}

	orderVal := v.LookupPath(cue.ParsePath("order_by"))
	if orderVal.Exists() {
		field, err := lookupString(orderVal, "field")
		if err != nil {
			return nil, err
		}
		desc, err := lookupBool(orderVal, "desc")
		if err != nil {
			return nil, err
		}
		spec.DefaultOrder = ir.Order{Field: field, Desc: desc}
	}

	return spec, nil
}

// parseFields extracts field definitions in declaration order.
func parseFields(v cue.Value) ([]ir.FieldSpec, error) {
	var fields []ir.FieldSpec

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return fields, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		f, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	return fields, nil
}

// parseField parses one field declaration:
//
//	name: {type: "string", required: true, max_length: 200}
func parseField(name string, v cue.Value) (ir.FieldSpec, error) {
	f := ir.FieldSpec{Name: name}

	typeName, err := lookupString(v, "type")
	if err != nil {
		return f, err
	}
	if typeName == "" {
		return f, &CompileError{
			Field:   "fields." + name + ".type",
			Message: "type is required",
			Pos:     v.Pos(),
		}
	}
	f.Type = ir.FieldType(typeName)

	if f.Required, err = lookupBool(v, "required"); err != nil {
		return f, err
	}
	if f.Nullable, err = lookupBool(v, "nullable"); err != nil {
		return f, err
	}
	if f.Unique, err = lookupBool(v, "unique"); err != nil {
		return f, err
	}
	if f.Indexed, err = lookupBool(v, "indexed"); err != nil {
		return f, err
	}
	if f.Pattern, err = lookupString(v, "pattern"); err != nil {
		return f, err
	}
	if f.References, err = lookupString(v, "references"); err != nil {
		return f, err
	}
	if f.OnDelete, err = lookupString(v, "on_delete"); err != nil {
		return f, err
	}
	if f.Min, err = lookupFloat(v, "min"); err != nil {
		return f, err
	}
	if f.Max, err = lookupFloat(v, "max"); err != nil {
		return f, err
	}
	if f.MinLength, err = lookupInt(v, "min_length"); err != nil {
		return f, err
	}
	if f.MaxLength, err = lookupInt(v, "max_length"); err != nil {
		return f, err
	}
	if f.Values, err = lookupStrings(v, "values"); err != nil {
		return f, err
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	if defVal.Exists() {
		// Round-trip through JSON so decimal literals keep their exact text.
		data, err := defVal.MarshalJSON()
		if err != nil {
			return f, formatCUEError(err)
		}
		def, err := ir.UnmarshalIRValue(data)
		if err != nil {
			return f, &CompileError{
				Field:   "fields." + name + ".default",
				Message: err.Error(),
				Pos:     defVal.Pos(),
			}
		}
		f.Default = def
	}

	if f.References != "" && f.OnDelete == "" {
		f.OnDelete = ir.OnDeleteRestrict
	}

	return f, nil
}

// parseLinks extracts many-to-many link declarations:
//
//	links: tags: {target: "Tag", table: "bookmark_tags"}
func parseLinks(v cue.Value) ([]ir.LinkSpec, error) {
	var links []ir.LinkSpec

	linksVal := v.LookupPath(cue.ParsePath("links"))
	if !linksVal.Exists() {
		return links, nil
	}

	iter, err := linksVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		target, err := lookupString(iter.Value(), "target")
		if err != nil {
			return nil, err
		}
		table, err := lookupString(iter.Value(), "table")
		if err != nil {
			return nil, err
		}
		links = append(links, ir.LinkSpec{
			Name:   iter.Label(),
			Target: target,
			Table:  table,
		})
	}

	return links, nil
}

// parseUniques extracts composite unique constraints: uniques: [["habit_id", "day"]]
func parseUniques(v cue.Value) ([][]string, error) {
	uniquesVal := v.LookupPath(cue.ParsePath("uniques"))
	if !uniquesVal.Exists() {
		return nil, nil
	}

	iter, err := uniquesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var uniques [][]string
	for iter.Next() {
		cols, err := listStrings(iter.Value())
		if err != nil {
			return nil, err
		}
		uniques = append(uniques, cols)
	}
	return uniques, nil
}

func lookupString(v cue.Value, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func lookupBool(v cue.Value, path string) (bool, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func lookupFloat(v cue.Value, path string) (*float64, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil, nil
	}
	f, err := val.Float64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &f, nil
}

func lookupInt(v cue.Value, path string) (*int, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil, nil
	}
	n, err := val.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	i := int(n)
	return &i, nil
}

func lookupStrings(v cue.Value, path string) ([]string, error) {
	val := v.LookupPath(cue.ParsePath(path))
	if !val.Exists() {
		return nil, nil
	}
	return listStrings(val)
}

func listStrings(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
