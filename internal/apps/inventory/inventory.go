// Package inventory hosts the stock-tracking procedures: products, stock
// movements that keep products.stock_level in step, and a low-stock report.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
	"github.com/roach88/crudkit/internal/schema"
	"github.com/roach88/crudkit/internal/store"
)

// Entity names used by this package.
const (
	EntityProduct  = "Product"
	EntityMovement = "StockMovement"
)

// Movement types.
const (
	StockIn  = "stock_in"
	StockOut = "stock_out"
)

// Register installs the inventory procedures:
//   - product.create|list|get|update|delete
//   - stock_movement.list|get
//   - stock_movement.record
//   - stock_movement.update (notes only)
//   - product.low_stock
//
// Movements are append-only: they are written through record so the product
// counter always moves with them, and only their notes can change afterwards.
// There is no create or delete for movements; deleting the product removes
// its movements.
func Register(e *engine.Engine) error {
	product, ok := e.Spec(EntityProduct)
	if !ok {
		return fmt.Errorf("inventory: catalog has no %s entity", EntityProduct)
	}
	movement, ok := e.Spec(EntityMovement)
	if !ok {
		return fmt.Errorf("inventory: catalog has no %s entity", EntityMovement)
	}

	if err := e.RegisterCRUD(EntityProduct); err != nil {
		return err
	}
	if err := e.RegisterCRUD(EntityMovement, engine.KindList, engine.KindGet); err != nil {
		return err
	}

	a := &app{e: e, product: product, movement: movement}
	procs := []engine.Procedure{
		{
			Name:    "stock_movement.record",
			Entity:  EntityMovement,
			Doc:     "Record a stock movement and adjust the product's stock level in one transaction; stock_out never takes stock below zero",
			Handler: a.record,
		},
		{
			Name:    "stock_movement.update",
			Entity:  EntityMovement,
			Kind:    engine.KindUpdate,
			Doc:     "Update the notes of a StockMovement; product, type and quantity are fixed once recorded",
			Handler: a.updateNotes,
		},
		{
			Name:    "product.low_stock",
			Entity:  EntityProduct,
			Doc:     "List products whose stock level is at or below their reorder level, lowest stock first",
			Handler: a.lowStock,
		},
	}
	for _, p := range procs {
		if err := e.Register(p); err != nil {
			return err
		}
	}
	return nil
}

type app struct {
	e        *engine.Engine
	product  *ir.EntitySpec
	movement *ir.EntitySpec
}

// Adjust applies a movement to a stock level. stock_out is clamped at zero.
func Adjust(level int64, kind string, quantity int64) int64 {
	switch kind {
	case StockIn:
		return level + quantity
	case StockOut:
		if quantity >= level {
			return 0
		}
		return level - quantity
	default:
		return level
	}
}

func (a *app) record(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.Validate(a.movement, args, schema.Create)
	if err != nil {
		return nil, err
	}
	productID := int64(values["product_id"].(ir.IRInt))
	kind := string(values["type"].(ir.IRString))
	quantity := int64(values["quantity"].(ir.IRInt))

	var movementRow, productRow store.Row
	err = a.e.Store().WithTx(ctx, func(tx *store.Tx) error {
		current, err := tx.SelectOne(ctx, a.product, productID)
		if errors.Is(err, store.ErrNotFound) {
			return &store.ConstraintError{
				Entity:  EntityMovement,
				Kind:    store.ConstraintForeignKey,
				Field:   "product_id",
				Message: fmt.Sprintf("%s %d does not exist", EntityProduct, productID),
			}
		}
		if err != nil {
			return err
		}
		level, ok := current["stock_level"].(int64)
		if !ok {
			return &store.StorageError{Op: "read stock level", Err: fmt.Errorf("unexpected %T", current["stock_level"])}
		}

		if movementRow, err = tx.Insert(ctx, a.movement, values); err != nil {
			return err
		}
		productRow, err = tx.Update(ctx, a.product, productID, ir.IRObject{
			"stock_level": ir.IRInt(Adjust(level, kind, quantity)),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m, err := a.e.Record(ctx, a.movement, movementRow)
	if err != nil {
		return nil, err
	}
	p, err := a.e.Record(ctx, a.product, productRow)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"movement": m, "product": p}, nil
}

// recordedFields are the movement columns that fed the product counter.
var recordedFields = []string{"product_id", "type", "quantity"}

func (a *app) updateNotes(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	id, err := schema.ValidateID(EntityMovement, args)
	if err != nil {
		return nil, err
	}
	rest := args.Clone()
	delete(rest, ir.FieldID)

	var vs []schema.Violation
	for _, name := range recordedFields {
		if rest.Has(name) {
			vs = append(vs, schema.Violation{Field: name, Code: schema.CodeReadonly, Message: "cannot change once the movement is recorded"})
			delete(rest, name)
		}
	}
	notes, _ := a.movement.Field("notes")
	values, err := schema.ValidateFields(EntityMovement, []ir.FieldSpec{notes}, nil, rest, schema.Patch)
	if err != nil {
		var ve *schema.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		vs = append(vs, ve.Violations...)
	}
	if err := schema.NewValidationError(EntityMovement, vs); err != nil {
		return nil, err
	}

	row, err := a.e.Store().Update(ctx, a.movement, id, values)
	if err != nil {
		return nil, err
	}
	return a.e.Record(ctx, a.movement, row)
}

var lowStockArgs = []ir.FieldSpec{
	{Name: "limit", Type: ir.TypeInt, Nullable: true, Min: ptr(1), Max: ptr(ir.MaxLimit)},
}

func (a *app) lowStock(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.ValidateFields(EntityProduct, lowStockArgs, nil, args, schema.Create)
	if err != nil {
		return nil, err
	}
	limit := ir.DefaultLimit
	if n, ok := values["limit"].(ir.IRInt); ok {
		limit = int(n)
	}

	rows, err := a.e.Store().Query(ctx, queryir.Select{
		From:    a.product.Table,
		Filter:  queryir.FieldCompare{Left: "stock_level", Op: queryir.OpLte, Right: "reorder_level"},
		OrderBy: []queryir.Order{{Field: "stock_level"}},
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	return a.e.Records(ctx, a.product, rows)
}

func ptr(n float64) *float64 { return &n }
