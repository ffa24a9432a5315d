package expenses

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/crudkit/internal/ir"
)

// Currencies accepted by Expense.currency, in declaration order.
var Currencies = []string{"USD", "EUR", "GBP", "JPY"}

// usdRates is units of each currency per one US dollar. Rates are fixed so
// summaries are reproducible.
var usdRates = map[string]string{
	"USD": "1",
	"EUR": "0.92",
	"GBP": "0.79",
	"JPY": "149.50",
}

// decimalCtx carries enough precision that conversion is exact before the
// final rounding step.
var decimalCtx = apd.BaseContext.WithPrecision(34)

// Scale is the number of fractional digits in converted amounts.
const Scale = 2

// Converter converts amounts between currencies with a fixed rate table.
type Converter struct {
	rates map[string]*apd.Decimal
}

// NewConverter returns a Converter over the built-in rate table.
func NewConverter() *Converter {
	c, err := NewConverterFromRates(usdRates)
	if err != nil {
		panic(err)
	}
	return c
}

// NewConverterFromRates builds a Converter from units-per-USD rates.
func NewConverterFromRates(rates map[string]string) (*Converter, error) {
	c := &Converter{rates: make(map[string]*apd.Decimal, len(rates))}
	for code, s := range rates {
		d, _, err := apd.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", code, err)
		}
		if d.Sign() <= 0 {
			return nil, fmt.Errorf("rate %s: must be positive", code)
		}
		c.rates[code] = d
	}
	return c, nil
}

// Convert changes amount from one currency to another and rounds half-even
// to Scale places. Converting to the same currency only rounds.
func (c *Converter) Convert(amount ir.IRDecimal, from, to string) (ir.IRDecimal, error) {
	fromRate, ok := c.rates[from]
	if !ok {
		return ir.IRDecimal{}, fmt.Errorf("unknown currency %q", from)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return ir.IRDecimal{}, fmt.Errorf("unknown currency %q", to)
	}

	var out apd.Decimal
	out.Set(&amount.D)
	if from != to {
		if _, err := decimalCtx.Mul(&out, &out, toRate); err != nil {
			return ir.IRDecimal{}, err
		}
		if _, err := decimalCtx.Quo(&out, &out, fromRate); err != nil {
			return ir.IRDecimal{}, err
		}
	}
	return round(&out)
}

// Sum adds decimals exactly.
func Sum(values ...ir.IRDecimal) (ir.IRDecimal, error) {
	var total apd.Decimal
	for i := range values {
		if _, err := decimalCtx.Add(&total, &total, &values[i].D); err != nil {
			return ir.IRDecimal{}, err
		}
	}
	return round(&total)
}

// Sub returns a - b rounded to Scale places.
func Sub(a, b ir.IRDecimal) (ir.IRDecimal, error) {
	var out apd.Decimal
	if _, err := decimalCtx.Sub(&out, &a.D, &b.D); err != nil {
		return ir.IRDecimal{}, err
	}
	return round(&out)
}

func round(d *apd.Decimal) (ir.IRDecimal, error) {
	return roundTo(d, Scale)
}

// roundTo rounds half-even to the given number of fractional digits.
func roundTo(d *apd.Decimal, places int32) (ir.IRDecimal, error) {
	rc := decimalCtx.WithPrecision(decimalCtx.Precision)
	rc.Rounding = apd.RoundHalfEven

	var out ir.IRDecimal
	if _, err := rc.Quantize(&out.D, d, -places); err != nil {
		return ir.IRDecimal{}, err
	}
	return out, nil
}

// CrossRate returns units of to per unit of from, to six places.
func (c *Converter) CrossRate(from, to string) (ir.IRDecimal, error) {
	fromRate, ok := c.rates[from]
	if !ok {
		return ir.IRDecimal{}, fmt.Errorf("unknown currency %q", from)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return ir.IRDecimal{}, fmt.Errorf("unknown currency %q", to)
	}
	var q apd.Decimal
	if _, err := decimalCtx.Quo(&q, toRate, fromRate); err != nil {
		return ir.IRDecimal{}, err
	}
	out, err := roundTo(&q, 6)
	if err != nil {
		return ir.IRDecimal{}, err
	}
	out.D.Reduce(&out.D)
	return out, nil
}
