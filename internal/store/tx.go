package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
)

// Tx is a transaction scope for paired writes. It is only valid inside the
// function passed to WithTx.
type Tx struct {
	c conn
}

// WithTx runs fn in one transaction. Any error from fn rolls back and is
// returned unchanged; a successful fn is committed.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer sqlTx.Rollback() // no-op after Commit

	if err := fn(&Tx{c: conn{q: sqlTx, s: s}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit", "", err)
	}
	return nil
}

// Insert stores a row inside the transaction.
func (t *Tx) Insert(ctx context.Context, spec *ir.EntitySpec, values ir.IRObject) (Row, error) {
	return t.c.insert(ctx, spec, values)
}

// SelectOne reads a row inside the transaction.
func (t *Tx) SelectOne(ctx context.Context, spec *ir.EntitySpec, id int64) (Row, error) {
	return t.c.selectOne(ctx, spec, id)
}

// SelectMany reads a page of rows inside the transaction.
func (t *Tx) SelectMany(ctx context.Context, spec *ir.EntitySpec, q ir.ListQuery) ([]Row, error) {
	return t.c.selectMany(ctx, spec, q)
}

// Update applies a partial update inside the transaction.
func (t *Tx) Update(ctx context.Context, spec *ir.EntitySpec, id int64, partial ir.IRObject) (Row, error) {
	return t.c.update(ctx, spec, id, partial)
}

// Delete removes a row and its associations inside the transaction.
func (t *Tx) Delete(ctx context.Context, spec *ir.EntitySpec, id int64) (bool, error) {
	return t.c.delete(ctx, spec, id)
}

// SetLinks replaces an association set inside the transaction.
func (t *Tx) SetLinks(ctx context.Context, spec *ir.EntitySpec, link string, id int64, targets []int64) error {
	return t.c.setLinks(ctx, spec, link, id, targets)
}

// Links reads an association set inside the transaction.
func (t *Tx) Links(ctx context.Context, spec *ir.EntitySpec, link string, id int64) ([]int64, error) {
	return t.c.links(ctx, spec, link, id)
}

// Exec runs an Insert, Update or Delete and returns the number of rows affected.
func (t *Tx) Exec(ctx context.Context, q queryir.Query) (int64, error) {
	switch q.(type) {
	case queryir.Insert, queryir.Update, queryir.Delete:
	default:
		return 0, fmt.Errorf("exec: %T is not a write", q)
	}
	res, err := t.c.exec(ctx, "", q)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "exec " + tableOf(q), Err: err}
	}
	return n, nil
}

// QueryRow runs a read query and returns its first row. ok is false when
// the query matched nothing.
func (t *Tx) QueryRow(ctx context.Context, q queryir.Query) (row Row, ok bool, err error) {
	rows, err := t.c.query(ctx, tableOf(q), q)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// Query runs a read query inside the transaction. The result is never nil.
func (t *Tx) Query(ctx context.Context, q queryir.Query) ([]Row, error) {
	return t.c.query(ctx, tableOf(q), q)
}

var _ querier = (*sql.Tx)(nil)
var _ querier = (*sql.DB)(nil)
