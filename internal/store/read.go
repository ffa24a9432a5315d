package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/roach88/crudkit/internal/coerce"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
)

// Row is one scanned row in storage-native form, keyed by column name.
// Values are nil, int64, float64, string or []byte; pass rows through
// coerce.Row to get logical values.
type Row map[string]any

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs compiled queries against a querier. Store and Tx share it.
type conn struct {
	q querier
	s *Store
}

func (s *Store) conn() conn {
	return conn{q: s.db, s: s}
}

// SelectMany returns one page of rows matching q. The result is never nil.
func (s *Store) SelectMany(ctx context.Context, spec *ir.EntitySpec, q ir.ListQuery) ([]Row, error) {
	return s.conn().selectMany(ctx, spec, q)
}

// Count returns the number of rows matching conds.
func (s *Store) Count(ctx context.Context, spec *ir.EntitySpec, conds []ir.Condition) (int64, error) {
	return s.conn().count(ctx, spec, conds)
}

// SelectOne returns the row with the given id or a *NotFoundError.
func (s *Store) SelectOne(ctx context.Context, spec *ir.EntitySpec, id int64) (Row, error) {
	return s.conn().selectOne(ctx, spec, id)
}

// Links returns the target ids associated with the owner row, ascending.
func (s *Store) Links(ctx context.Context, spec *ir.EntitySpec, link string, id int64) ([]int64, error) {
	return s.conn().links(ctx, spec, link, id)
}

// LinksFor returns target ids for many owners at once. Every requested owner
// has an entry, empty when it has no associations.
func (s *Store) LinksFor(ctx context.Context, spec *ir.EntitySpec, link string, ids []int64) (map[int64][]int64, error) {
	return s.conn().linksFor(ctx, spec, link, ids)
}

// Query runs an arbitrary read query (Select or Join). The result is never nil.
func (s *Store) Query(ctx context.Context, q queryir.Query) ([]Row, error) {
	return s.conn().query(ctx, tableOf(q), q)
}

func (c conn) selectMany(ctx context.Context, spec *ir.EntitySpec, q ir.ListQuery) ([]Row, error) {
	filter, err := conditionsPredicate(spec, q.Conditions)
	if err != nil {
		return nil, err
	}
	sel := queryir.Select{
		From:   spec.Table,
		Filter: filter,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.Order.Field != "" {
		sel.OrderBy = []queryir.Order{orderKey(spec, q.Order)}
	}
	return c.query(ctx, spec.Name, sel)
}

func (c conn) count(ctx context.Context, spec *ir.EntitySpec, conds []ir.Condition) (int64, error) {
	filter, err := conditionsPredicate(spec, conds)
	if err != nil {
		return 0, err
	}
	sqlStr, params, err := c.s.compiler.Compile(queryir.Count{From: spec.Table, Filter: filter})
	if err != nil {
		return 0, fmt.Errorf("compile count: %w", err)
	}
	var n int64
	if err := c.q.QueryRowContext(ctx, sqlStr, params...).Scan(&n); err != nil {
		return 0, classify("count "+spec.Table, spec.Name, err)
	}
	return n, nil
}

func (c conn) selectOne(ctx context.Context, spec *ir.EntitySpec, id int64) (Row, error) {
	rows, err := c.query(ctx, spec.Name, queryir.Select{
		From:   spec.Table,
		Filter: queryir.Equals{Field: ir.FieldID, Value: id},
		Limit:  1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &NotFoundError{Entity: spec.Name, ID: id}
	}
	return rows[0], nil
}

func (c conn) links(ctx context.Context, spec *ir.EntitySpec, link string, id int64) ([]int64, error) {
	byOwner, err := c.linksFor(ctx, spec, link, []int64{id})
	if err != nil {
		return nil, err
	}
	return byOwner[id], nil
}

func (c conn) linksFor(ctx context.Context, spec *ir.EntitySpec, link string, ids []int64) (map[int64][]int64, error) {
	l, ok := spec.Link(link)
	if !ok {
		return nil, fmt.Errorf("%s has no link %q", spec.Name, link)
	}
	ownerCol, targetCol := l.OwnerColumn(spec), l.TargetColumn()

	out := make(map[int64][]int64, len(ids))
	values := make([]any, len(ids))
	for i, id := range ids {
		out[id] = []int64{}
		values[i] = id
	}
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := c.query(ctx, spec.Name, queryir.Select{
		From:    l.Table,
		Columns: []string{ownerCol, targetCol},
		Filter:  queryir.In{Field: ownerCol, Values: values},
		OrderBy: []queryir.Order{{Field: ownerCol}, {Field: targetCol}},
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		owner, ok1 := r[ownerCol].(int64)
		target, ok2 := r[targetCol].(int64)
		if !ok1 || !ok2 {
			return nil, &StorageError{Op: "read " + l.Table, Err: fmt.Errorf("unexpected id types %T, %T", r[ownerCol], r[targetCol])}
		}
		out[owner] = append(out[owner], target)
	}
	return out, nil
}

// query compiles q and scans every row. The result is never nil.
func (c conn) query(ctx context.Context, entity string, q queryir.Query) ([]Row, error) {
	sqlStr, params, err := c.s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	rows, err := c.q.QueryContext(ctx, sqlStr, params...)
	if err != nil {
		return nil, classify("query "+tableOf(q), entity, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, classify("scan "+tableOf(q), entity, err)
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, col := range cols {
			// []byte from the driver is only valid until the next Scan.
			if b, ok := vals[i].([]byte); ok {
				vals[i] = string(b)
			}
			r[col] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// orderKey sorts decimal columns by value rather than by their stored text.
func orderKey(spec *ir.EntitySpec, o ir.Order) queryir.Order {
	key := queryir.Order{Field: o.Field, Desc: o.Desc}
	if f, ok := spec.Field(o.Field); ok && f.Type == ir.TypeDecimal {
		key.Numeric = true
	}
	return key
}

// conditionsPredicate turns validated list conditions into a predicate.
// Decimal columns compare numerically; values are encoded the same way
// they are stored.
func conditionsPredicate(spec *ir.EntitySpec, conds []ir.Condition) (queryir.Predicate, error) {
	preds := make([]queryir.Predicate, 0, len(conds))
	for _, cond := range conds {
		f, ok := spec.Field(cond.Field)
		if !ok {
			return nil, fmt.Errorf("%s has no field %q", spec.Name, cond.Field)
		}
		numeric := f.Type == ir.TypeDecimal

		switch cond.Op {
		case ir.OpIsNull:
			isNull, _ := cond.Value.(ir.IRBool)
			preds = append(preds, queryir.IsNull{Field: f.Name, Negate: !bool(isNull)})
		case ir.OpIn:
			values := make([]any, 0, len(cond.Values))
			for _, v := range cond.Values {
				enc, err := coerce.Encode(f, v)
				if err != nil {
					return nil, err
				}
				values = append(values, enc)
			}
			preds = append(preds, queryir.In{Field: f.Name, Values: values})
		default:
			enc, err := coerce.Encode(f, cond.Value)
			if err != nil {
				return nil, err
			}
			pred, err := comparePredicate(f.Name, cond.Op, enc, numeric)
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
		}
	}
	return queryir.AndOf(preds...), nil
}

func comparePredicate(field string, op ir.FilterOp, value any, numeric bool) (queryir.Predicate, error) {
	switch op {
	case ir.OpEq:
		return queryir.Equals{Field: field, Value: value, Numeric: numeric}, nil
	case ir.OpNe:
		return queryir.NotEquals{Field: field, Value: value, Numeric: numeric}, nil
	case ir.OpLt:
		return queryir.Compare{Field: field, Op: queryir.OpLt, Value: value, Numeric: numeric}, nil
	case ir.OpLte:
		return queryir.Compare{Field: field, Op: queryir.OpLte, Value: value, Numeric: numeric}, nil
	case ir.OpGt:
		return queryir.Compare{Field: field, Op: queryir.OpGt, Value: value, Numeric: numeric}, nil
	case ir.OpGte:
		return queryir.Compare{Field: field, Op: queryir.OpGte, Value: value, Numeric: numeric}, nil
	}
	return nil, fmt.Errorf("unsupported filter operator %q", op)
}

// tableOf names the primary table of a query for error messages.
func tableOf(q queryir.Query) string {
	switch v := q.(type) {
	case queryir.Select:
		return v.From
	case queryir.Join:
		if left, ok := v.Left.(queryir.Select); ok {
			return left.From
		}
	case queryir.Count:
		return v.From
	case queryir.Insert:
		return v.Table
	case queryir.Update:
		return v.Table
	case queryir.Delete:
		return v.Table
	}
	return "query"
}

// sortedUnique returns ids ascending without duplicates.
func sortedUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
