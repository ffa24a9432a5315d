package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/crudkit/internal/coerce"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
)

// Insert stores a new row and returns it as stored. values holds validated
// field values keyed by column; created_at and updated_at come from the
// store clock. A missing parent or duplicate unique value is reported as
// *ConstraintError.
func (s *Store) Insert(ctx context.Context, spec *ir.EntitySpec, values ir.IRObject) (Row, error) {
	var out Row
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Insert(ctx, spec, values)
		return err
	})
	return out, err
}

// Update changes only the columns present in partial and bumps updated_at.
// An empty partial returns the current row unchanged.
func (s *Store) Update(ctx context.Context, spec *ir.EntitySpec, id int64, partial ir.IRObject) (Row, error) {
	var out Row
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Update(ctx, spec, id, partial)
		return err
	})
	return out, err
}

// Delete removes the row and its association rows in one transaction.
// It reports whether a row was deleted; deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, spec *ir.EntitySpec, id int64) (bool, error) {
	var deleted bool
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		deleted, err = tx.Delete(ctx, spec, id)
		return err
	})
	return deleted, err
}

// SetLinks replaces the owner's whole association set for link.
func (s *Store) SetLinks(ctx context.Context, spec *ir.EntitySpec, link string, id int64, targets []int64) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetLinks(ctx, spec, link, id, targets)
	})
}

func (c conn) insert(ctx context.Context, spec *ir.EntitySpec, values ir.IRObject) (Row, error) {
	set, err := assignments(spec, values)
	if err != nil {
		return nil, err
	}
	if err := c.checkParents(ctx, spec, values); err != nil {
		return nil, err
	}

	now := ir.FormatStorageTime(c.s.clock.Now())
	set = append(set,
		queryir.Assignment{Column: ir.FieldCreatedAt, Value: now},
		queryir.Assignment{Column: ir.FieldUpdatedAt, Value: now},
	)

	res, err := c.exec(ctx, spec.Name, queryir.Insert{Table: spec.Table, Set: set})
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, &StorageError{Op: "insert " + spec.Table, Err: err}
	}
	return c.selectOne(ctx, spec, id)
}

func (c conn) update(ctx context.Context, spec *ir.EntitySpec, id int64, partial ir.IRObject) (Row, error) {
	current, err := c.selectOne(ctx, spec, id)
	if err != nil {
		return nil, err
	}
	if len(partial) == 0 {
		return current, nil
	}

	set, err := assignments(spec, partial)
	if err != nil {
		return nil, err
	}
	if err := c.checkParents(ctx, spec, partial); err != nil {
		return nil, err
	}
	set = append(set, queryir.Assignment{Column: ir.FieldUpdatedAt, Value: ir.FormatStorageTime(c.s.clock.Now())})

	if _, err := c.exec(ctx, spec.Name, queryir.Update{
		Table:  spec.Table,
		Set:    set,
		Filter: queryir.Equals{Field: ir.FieldID, Value: id},
	}); err != nil {
		return nil, err
	}
	return c.selectOne(ctx, spec, id)
}

func (c conn) delete(ctx context.Context, spec *ir.EntitySpec, id int64) (bool, error) {
	if err := c.checkChildren(ctx, spec, id); err != nil {
		return false, err
	}
	for _, l := range spec.Links {
		if _, err := c.exec(ctx, spec.Name, queryir.Delete{
			Table:  l.Table,
			Filter: queryir.Equals{Field: l.OwnerColumn(spec), Value: id},
		}); err != nil {
			return false, err
		}
	}

	res, err := c.exec(ctx, spec.Name, queryir.Delete{
		Table:  spec.Table,
		Filter: queryir.Equals{Field: ir.FieldID, Value: id},
	})
	if err != nil {
		// Removing a row can only break a reference, whatever code the
		// driver reports.
		var ce *ConstraintError
		if errors.As(err, &ce) {
			ce.Kind = ConstraintForeignKey
			ce.Field = ""
			ce.Message = fmt.Sprintf("%s %d is still referenced by other rows", spec.Name, id)
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Op: "delete " + spec.Table, Err: err}
	}
	return n > 0, nil
}

func (c conn) setLinks(ctx context.Context, spec *ir.EntitySpec, link string, id int64, targets []int64) error {
	l, ok := spec.Link(link)
	if !ok {
		return fmt.Errorf("%s has no link %q", spec.Name, link)
	}
	target, ok := c.s.entities[l.Target]
	if !ok {
		return fmt.Errorf("link target %q is not migrated", l.Target)
	}
	if _, err := c.selectOne(ctx, spec, id); err != nil {
		return err
	}

	targets = sortedUnique(targets)
	if len(targets) > 0 {
		values := make([]any, len(targets))
		for i, t := range targets {
			values[i] = t
		}
		found, err := c.query(ctx, target.Name, queryir.Select{
			From:    target.Table,
			Columns: []string{ir.FieldID},
			Filter:  queryir.In{Field: ir.FieldID, Values: values},
		})
		if err != nil {
			return err
		}
		if missing := missingIDs(targets, found); len(missing) > 0 {
			return &ConstraintError{
				Entity:  spec.Name,
				Kind:    ConstraintForeignKey,
				Field:   l.LinkArg(),
				Message: fmt.Sprintf("%s %s does not exist", target.Name, joinIDs(missing)),
			}
		}
	}

	ownerCol, targetCol := l.OwnerColumn(spec), l.TargetColumn()
	if _, err := c.exec(ctx, spec.Name, queryir.Delete{
		Table:  l.Table,
		Filter: queryir.Equals{Field: ownerCol, Value: id},
	}); err != nil {
		return err
	}
	for _, t := range targets {
		if _, err := c.exec(ctx, spec.Name, queryir.Insert{
			Table: l.Table,
			Set: []queryir.Assignment{
				{Column: ownerCol, Value: id},
				{Column: targetCol, Value: t},
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

// checkParents verifies that every non-null foreign key in values points at
// an existing row, so the error can name the field and the missing id.
func (c conn) checkParents(ctx context.Context, spec *ir.EntitySpec, values ir.IRObject) error {
	for _, f := range spec.Fields {
		if f.References == "" {
			continue
		}
		ref, ok := values[f.Name].(ir.IRInt)
		if !ok {
			continue
		}
		parent, ok := c.s.entities[f.References]
		if !ok {
			continue
		}
		n, err := c.count(ctx, parent, []ir.Condition{{Field: ir.FieldID, Op: ir.OpEq, Value: ref}})
		if err != nil {
			return err
		}
		if n == 0 {
			return &ConstraintError{
				Entity:  spec.Name,
				Kind:    ConstraintForeignKey,
				Field:   f.Name,
				Message: fmt.Sprintf("%s %d does not exist", parent.Name, int64(ref)),
			}
		}
	}
	return nil
}

// checkChildren rejects deleting a row that restricting children still
// reference, naming the first referencing column in entity name order.
func (c conn) checkChildren(ctx context.Context, spec *ir.EntitySpec, id int64) error {
	names := make([]string, 0, len(c.s.entities))
	for name := range c.s.entities {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		child := c.s.entities[name]
		for _, f := range child.Fields {
			if f.References != spec.Name || f.OnDelete != ir.OnDeleteRestrict {
				continue
			}
			n, err := c.count(ctx, child, []ir.Condition{{Field: f.Name, Op: ir.OpEq, Value: ir.IRInt(id)}})
			if err != nil {
				return err
			}
			if n > 0 {
				return &ConstraintError{
					Entity:  spec.Name,
					Kind:    ConstraintForeignKey,
					Message: fmt.Sprintf("%s %d is still referenced by %s.%s", spec.Name, id, child.Name, f.Name),
				}
			}
		}
	}
	return nil
}

// assignments encodes values in declaration order. Keys that are not
// declared fields are rejected.
func assignments(spec *ir.EntitySpec, values ir.IRObject) ([]queryir.Assignment, error) {
	set := make([]queryir.Assignment, 0, len(values)+2)
	seen := 0
	for _, f := range spec.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		seen++
		enc, err := coerce.Encode(f, v)
		if err != nil {
			return nil, err
		}
		set = append(set, queryir.Assignment{Column: f.Name, Value: enc})
	}
	if seen != len(values) {
		for _, key := range values.SortedKeys() {
			if _, ok := spec.Field(key); !ok || ir.ReservedFields[key] {
				return nil, fmt.Errorf("%s: %q is not a writable column", spec.Name, key)
			}
		}
	}
	return set, nil
}

func (c conn) exec(ctx context.Context, entity string, q queryir.Query) (sql.Result, error) {
	sqlStr, params, err := c.s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", tableOf(q), err)
	}
	res, err := c.q.ExecContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, classify("write "+tableOf(q), entity, err)
	}
	return res, nil
}

func missingIDs(want []int64, found []Row) []int64 {
	have := make(map[int64]bool, len(found))
	for _, r := range found {
		if id, ok := r[ir.FieldID].(int64); ok {
			have[id] = true
		}
	}
	var missing []int64
	for _, id := range want {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
