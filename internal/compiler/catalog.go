package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"

	"github.com/roach88/crudkit/internal/ir"
)

// CompileCatalog compiles every entity under the top-level "entity" struct.
// Compile errors are collected rather than returned on the first failure so
// that `crudkit validate` can report them all at once. Entities are returned
// sorted by name.
func CompileCatalog(v cue.Value) ([]ir.EntitySpec, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, []error{&CompileError{
			Field:   "entity",
			Message: "no entities declared",
			Pos:     v.Pos(),
		}}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		specs []ir.EntitySpec
		errs  []error
	)
	for iter.Next() {
		spec, err := CompileEntity(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("entity.%s: %w", iter.Label(), err))
			continue
		}
		specs = append(specs, *spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, errs
}
