// Package expenses hosts the expense tracker procedures. Money is exact
// end to end: amounts are apd decimals from request to storage and back,
// and conversion rounds half-even to cents.
package expenses

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/crudkit/internal/coerce"
	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/queryir"
	"github.com/roach88/crudkit/internal/schema"
)

const (
	EntityCategory = "Category"
	EntityExpense  = "Expense"

	// BudgetCurrency is the currency monthly budgets are kept in.
	BudgetCurrency = "USD"
)

// Register installs generic CRUD for Category and Expense plus
// expense.summary and currency.convert.
func Register(e *engine.Engine) error {
	return RegisterWithConverter(e, NewConverter())
}

// RegisterWithConverter is Register with a caller-supplied rate table.
func RegisterWithConverter(e *engine.Engine, conv *Converter) error {
	category, ok := e.Spec(EntityCategory)
	if !ok {
		return fmt.Errorf("expenses: catalog has no %s entity", EntityCategory)
	}
	expense, ok := e.Spec(EntityExpense)
	if !ok {
		return fmt.Errorf("expenses: catalog has no %s entity", EntityExpense)
	}
	for _, name := range []string{EntityCategory, EntityExpense} {
		if err := e.RegisterCRUD(name); err != nil {
			return err
		}
	}

	a := &app{e: e, conv: conv, category: category, expense: expense}
	procs := []engine.Procedure{
		{
			Name:    "expense.summary",
			Entity:  EntityExpense,
			Doc:     "Total expenses per category in one currency over an optional date range, with budget remaining",
			Handler: a.summary,
		},
		{
			Name:    "currency.convert",
			Doc:     "Convert an amount between currencies using the fixed rate table",
			Handler: a.convert,
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
	conv     *Converter
	category *ir.EntitySpec
	expense  *ir.EntitySpec
}

var summaryArgs = []ir.FieldSpec{
	{Name: "from", Type: ir.TypeDate, Nullable: true},
	{Name: "to", Type: ir.TypeDate, Nullable: true},
	{Name: "currency", Type: ir.TypeEnum, Values: Currencies, Default: ir.IRString(BudgetCurrency)},
}

// categoryTotal accumulates one summary row.
type categoryTotal struct {
	id      int64
	name    string
	budget  ir.IRValue
	count   int64
	amounts []ir.IRDecimal
}

func (a *app) summary(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.ValidateFields(EntityExpense, summaryArgs, nil, args, schema.Create)
	if err != nil {
		return nil, err
	}
	from, hasFrom := values["from"].(ir.IRTime)
	to, hasTo := values["to"].(ir.IRTime)
	if hasFrom && hasTo && to.Time().Before(from.Time()) {
		return nil, &schema.ValidationError{Entity: EntityExpense, Violations: []schema.Violation{
			{Field: "to", Code: schema.CodeRange, Message: "must not be before from"},
		}}
	}
	currency := string(values["currency"].(ir.IRString))

	spentOn, _ := a.expense.Field("spent_on")
	var preds []queryir.Predicate
	if hasFrom {
		enc, err := coerce.Encode(spentOn, from)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.Compare{Field: "spent_on", Op: queryir.OpGte, Value: enc})
	}
	if hasTo {
		enc, err := coerce.Encode(spentOn, to)
		if err != nil {
			return nil, err
		}
		preds = append(preds, queryir.Compare{Field: "spent_on", Op: queryir.OpLte, Value: enc})
	}

	catRows, err := a.e.Store().Query(ctx, queryir.Select{From: a.category.Table})
	if err != nil {
		return nil, err
	}
	categories, err := coerce.Rows(a.category, catRows)
	if err != nil {
		return nil, err
	}
	totals := make(map[int64]*categoryTotal, len(categories))
	for _, c := range categories {
		id := int64(c["id"].(ir.IRInt))
		totals[id] = &categoryTotal{id: id, name: string(c["name"].(ir.IRString)), budget: c["monthly_budget"]}
	}

	expRows, err := a.e.Store().Query(ctx, queryir.Select{From: a.expense.Table, Filter: queryir.AndOf(preds...)})
	if err != nil {
		return nil, err
	}
	expenses, err := coerce.Rows(a.expense, expRows)
	if err != nil {
		return nil, err
	}
	for _, x := range expenses {
		ct, ok := totals[int64(x["category_id"].(ir.IRInt))]
		if !ok {
			continue
		}
		converted, err := a.conv.Convert(x["amount"].(ir.IRDecimal), string(x["currency"].(ir.IRString)), currency)
		if err != nil {
			return nil, err
		}
		ct.count++
		ct.amounts = append(ct.amounts, converted)
	}

	ordered := make([]*categoryTotal, 0, len(totals))
	for _, ct := range totals {
		ordered = append(ordered, ct)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].name != ordered[j].name {
			return ordered[i].name < ordered[j].name
		}
		return ordered[i].id < ordered[j].id
	})

	rows := make(ir.IRArray, 0, len(ordered))
	var grand []ir.IRDecimal
	for _, ct := range ordered {
		total, err := Sum(ct.amounts...)
		if err != nil {
			return nil, err
		}
		grand = append(grand, total)

		row := ir.IRObject{
			"category_id": ir.IRInt(ct.id),
			"category":    ir.IRString(ct.name),
			"count":       ir.IRInt(ct.count),
			"total":       total,
			"budget":      ir.IRNull{},
			"remaining":   ir.IRNull{},
		}
		if b, ok := ct.budget.(ir.IRDecimal); ok {
			budget, err := a.conv.Convert(b, BudgetCurrency, currency)
			if err != nil {
				return nil, err
			}
			remaining, err := Sub(budget, total)
			if err != nil {
				return nil, err
			}
			row["budget"], row["remaining"] = budget, remaining
		}
		rows = append(rows, row)
	}

	sum, err := Sum(grand...)
	if err != nil {
		return nil, err
	}
	out := ir.IRObject{
		"currency":   ir.IRString(currency),
		"from":       values["from"],
		"to":         values["to"],
		"categories": rows,
		"total":      sum,
	}
	return out, nil
}

var convertArgs = []ir.FieldSpec{
	{Name: "amount", Type: ir.TypeDecimal, Required: true},
	{Name: "from", Type: ir.TypeEnum, Required: true, Values: Currencies},
	{Name: "to", Type: ir.TypeEnum, Required: true, Values: Currencies},
}

func (a *app) convert(ctx context.Context, args ir.IRObject) (ir.IRValue, error) {
	values, err := schema.ValidateFields("currency", convertArgs, nil, args, schema.Create)
	if err != nil {
		return nil, err
	}
	from, to := string(values["from"].(ir.IRString)), string(values["to"].(ir.IRString))
	amount := values["amount"].(ir.IRDecimal)

	converted, err := a.conv.Convert(amount, from, to)
	if err != nil {
		return nil, err
	}
	rate, err := a.conv.CrossRate(from, to)
	if err != nil {
		return nil, err
	}

	return ir.IRObject{
		"amount":    amount,
		"from":      ir.IRString(from),
		"to":        ir.IRString(to),
		"rate":      rate,
		"converted": converted,
	}, nil
}
