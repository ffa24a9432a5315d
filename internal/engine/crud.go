package engine

import (
	"context"
	"fmt"

	"github.com/roach88/crudkit/internal/coerce"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/schema"
	"github.com/roach88/crudkit/internal/store"
)

// RegisterCRUD installs generic procedures for an entity, named
// "<entity>.<kind>" with the entity in lower_snake_case. With no kinds all
// five are registered.
func (e *Engine) RegisterCRUD(entity string, kinds ...Kind) error {
	spec, ok := e.specs[entity]
	if !ok {
		return fmt.Errorf("register CRUD: unknown entity %q", entity)
	}
	if len(kinds) == 0 {
		kinds = CRUDKinds
	}

	for _, kind := range kinds {
		var h Handler
		var doc string
		switch kind {
		case KindCreate:
			h, doc = e.createHandler(spec), "Create a "+spec.Name
		case KindList:
			h, doc = e.listHandler(spec), "List "+spec.Name+" records with filter, order_by, limit and offset"
		case KindGet:
			h, doc = e.getHandler(spec), "Get one "+spec.Name+" by id"
		case KindUpdate:
			h, doc = e.updateHandler(spec), "Update the given fields of a "+spec.Name
		case KindDelete:
			h, doc = e.deleteHandler(spec), "Delete a "+spec.Name+" by id"
		default:
			return fmt.Errorf("register CRUD %s: %q is not a CRUD kind", spec.Name, kind)
		}
		if err := e.Register(Procedure{
			Name:    spec.ProcedurePrefix() + "." + string(kind),
			Entity:  spec.Name,
			Kind:    kind,
			Doc:     doc,
			Handler: h,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) createHandler(spec *ir.EntitySpec) Handler {
	return func(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
		values, err := schema.Validate(spec, args, schema.Create)
		if err != nil {
			return nil, err
		}
		fields, links := SplitLinks(spec, values)

		var row store.Row
		err = e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			if row, err = tx.Insert(ctx, spec, fields); err != nil {
				return err
			}
			return setLinks(ctx, tx, spec, row, links)
		})
		if err != nil {
			return nil, err
		}
		return e.Record(ctx, spec, row)
	}
}

func (e *Engine) listHandler(spec *ir.EntitySpec) Handler {
	return func(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
		q, err := schema.ValidateQuery(spec, args)
		if err != nil {
			return nil, err
		}
		rows, err := e.store.SelectMany(ctx, spec, q)
		if err != nil {
			return nil, err
		}
		return e.Records(ctx, spec, rows)
	}
}

func (e *Engine) getHandler(spec *ir.EntitySpec) Handler {
	return func(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
		id, err := idOnly(spec, args)
		if err != nil {
			return nil, err
		}
		row, err := e.store.SelectOne(ctx, spec, id)
		if err != nil {
			return nil, err
		}
		return e.Record(ctx, spec, row)
	}
}

func (e *Engine) updateHandler(spec *ir.EntitySpec) Handler {
	return func(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
		id, err := schema.ValidateID(spec.Name, args)
		if err != nil {
			return nil, err
		}
		rest := args.Clone()
		delete(rest, ir.FieldID)
		values, err := schema.Validate(spec, rest, schema.Patch)
		if err != nil {
			return nil, err
		}
		fields, links := SplitLinks(spec, values)

		var row store.Row
		err = e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			if row, err = tx.Update(ctx, spec, id, fields); err != nil {
				return err
			}
			return setLinks(ctx, tx, spec, row, links)
		})
		if err != nil {
			return nil, err
		}
		return e.Record(ctx, spec, row)
	}
}

func (e *Engine) deleteHandler(spec *ir.EntitySpec) Handler {
	return func(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
		id, err := idOnly(spec, args)
		if err != nil {
			return nil, err
		}
		deleted, err := e.store.Delete(ctx, spec, id)
		if err != nil {
			return nil, err
		}
		return ir.IRObject{"deleted": ir.IRBool(deleted)}, nil
	}
}

// idOnly accepts exactly {"id": n}.
func idOnly(spec *ir.EntitySpec, args ir.IRObject) (int64, error) {
	id, err := schema.ValidateID(spec.Name, args)
	if err != nil {
		return 0, err
	}
	var vs []schema.Violation
	for _, key := range args.SortedKeys() {
		if key != ir.FieldID {
			vs = append(vs, schema.Violation{Field: key, Code: schema.CodeUnknown, Message: "is not accepted here"})
		}
	}
	if len(vs) > 0 {
		return 0, &schema.ValidationError{Entity: spec.Name, Violations: vs}
	}
	return id, nil
}

// SplitLinks separates validated link arguments ("tag_ids") from column
// values. Links maps link name to sorted target ids; only links present in
// values appear.
func SplitLinks(spec *ir.EntitySpec, values ir.IRObject) (ir.IRObject, map[string][]int64) {
	if len(spec.Links) == 0 {
		return values, nil
	}
	fields := values.Clone()
	links := make(map[string][]int64)
	for _, l := range spec.Links {
		arr, ok := fields[l.LinkArg()].(ir.IRArray)
		if !ok {
			continue
		}
		delete(fields, l.LinkArg())
		ids := make([]int64, 0, len(arr))
		for _, v := range arr {
			if n, ok := v.(ir.IRInt); ok {
				ids = append(ids, int64(n))
			}
		}
		links[l.Name] = ids
	}
	return fields, links
}

func setLinks(ctx context.Context, tx *store.Tx, spec *ir.EntitySpec, row store.Row, links map[string][]int64) error {
	if len(links) == 0 {
		return nil
	}
	id, ok := row[ir.FieldID].(int64)
	if !ok {
		return fmt.Errorf("%s row has no integer id", spec.Name)
	}
	for _, l := range spec.Links {
		ids, ok := links[l.Name]
		if !ok {
			continue
		}
		if err := tx.SetLinks(ctx, spec, l.Name, id, ids); err != nil {
			return err
		}
	}
	return nil
}

// Record coerces a stored row and attaches its link ids.
func (e *Engine) Record(ctx context.Context, spec *ir.EntitySpec, row store.Row) (ir.IRObject, error) {
	recs, err := e.Records(ctx, spec, []store.Row{row})
	if err != nil {
		return nil, err
	}
	return recs[0].(ir.IRObject), nil
}

// Records coerces rows in order and attaches link ids, reading each link
// table once. The result is never nil.
func (e *Engine) Records(ctx context.Context, spec *ir.EntitySpec, rows []store.Row) (ir.IRArray, error) {
	objs, err := coerce.Rows(spec, rows)
	if err != nil {
		return nil, &store.StorageError{Op: "decode " + spec.Table, Err: err}
	}

	if len(spec.Links) > 0 && len(objs) > 0 {
		ids := make([]int64, len(objs))
		for i, obj := range objs {
			ids[i] = int64(obj[ir.FieldID].(ir.IRInt))
		}
		for _, l := range spec.Links {
			byOwner, err := e.store.LinksFor(ctx, spec, l.Name, ids)
			if err != nil {
				return nil, err
			}
			for i, obj := range objs {
				targets := byOwner[ids[i]]
				arr := make(ir.IRArray, len(targets))
				for j, t := range targets {
					arr[j] = ir.IRInt(t)
				}
				obj[l.LinkArg()] = arr
			}
		}
	}

	out := make(ir.IRArray, len(objs))
	for i, obj := range objs {
		out[i] = obj
	}
	return out, nil
}
