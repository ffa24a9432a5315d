package expenses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crudkit/internal/apps/apptest"
	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
)

type summaryRow struct {
	category  string
	count     int64
	total     string
	remaining string // "" when there is no budget
}

func rowsOf(t *testing.T, summary ir.IRObject) []summaryRow {
	t.Helper()
	var out []summaryRow
	for _, v := range summary["categories"].(ir.IRArray) {
		obj := v.(ir.IRObject)
		row := summaryRow{
			category: string(obj["category"].(ir.IRString)),
			count:    int64(obj["count"].(ir.IRInt)),
			total:    obj["total"].(ir.IRDecimal).String(),
		}
		if d, ok := obj["remaining"].(ir.IRDecimal); ok {
			row.remaining = d.String()
		}
		out = append(out, row)
	}
	return out
}

// seed creates three categories and four expenses across two months and
// three currencies.
func seed(env *apptest.Env) {
	food := env.MustObject("category.create", ir.IRObject{
		"name":           ir.IRString("Food"),
		"monthly_budget": ir.IRNumber("200.00"),
	})["id"]
	env.MustObject("category.create", ir.IRObject{"name": ir.IRString("Misc")})
	travel := env.MustObject("category.create", ir.IRObject{"name": ir.IRString("Travel")})["id"]

	for _, x := range []struct {
		amount, currency, day string
		category              ir.IRValue
	}{
		{"12.50", "USD", "2024-01-05", food},
		{"20.00", "EUR", "2024-01-10", food},
		{"100.00", "GBP", "2024-02-01", travel},
		{"5.00", "USD", "2023-12-31", food},
	} {
		env.MustObject("expense.create", ir.IRObject{
			"amount":      ir.IRNumber(x.amount),
			"currency":    ir.IRString(x.currency),
			"description": ir.IRString("item"),
			"category_id": x.category,
			"spent_on":    ir.IRString(x.day),
		})
	}
}

func TestSummary_AllTime(t *testing.T) {
	env := apptest.New(t, Register)
	seed(env)

	out := env.MustObject("expense.summary", ir.IRObject{"currency": ir.IRString("USD")})
	assert.Equal(t, []summaryRow{
		{"Food", 3, "39.24", "160.76"},
		{"Misc", 0, "0.00", ""},
		{"Travel", 1, "126.58", ""},
	}, rowsOf(t, out))
	assert.Equal(t, "165.82", out["total"].(ir.IRDecimal).String())
	assert.Equal(t, ir.IRNull{}, out["from"])
}

func TestSummary_DateRangeAndCurrency(t *testing.T) {
	env := apptest.New(t, Register)
	seed(env)

	out := env.MustObject("expense.summary", ir.IRObject{
		"from":     ir.IRString("2024-01-01"),
		"to":       ir.IRString("2024-01-31"),
		"currency": ir.IRString("EUR"),
	})
	assert.Equal(t, []summaryRow{
		{"Food", 2, "31.50", "152.50"},
		{"Misc", 0, "0.00", ""},
		{"Travel", 0, "0.00", ""},
	}, rowsOf(t, out))
	assert.Equal(t, "31.50", out["total"].(ir.IRDecimal).String())

	food := out["categories"].(ir.IRArray)[0].(ir.IRObject)
	assert.Equal(t, "184.00", food["budget"].(ir.IRDecimal).String(), "budget converted from USD")
}

func TestSummary_Validation(t *testing.T) {
	env := apptest.New(t, Register)

	_, err := env.Invoke("expense.summary", ir.IRObject{"currency": ir.IRString("BTC")})
	assert.True(t, engine.IsValidation(err))

	_, err = env.Invoke("expense.summary", ir.IRObject{
		"from": ir.IRString("2024-02-01"),
		"to":   ir.IRString("2024-01-01"),
	})
	assert.True(t, engine.IsValidation(err))

	out := env.MustObject("expense.summary", nil)
	assert.Equal(t, ir.IRString("USD"), out["currency"], "currency defaults to USD")
	assert.Equal(t, ir.IRArray{}, out["categories"])
}

func TestCurrencyConvert(t *testing.T) {
	env := apptest.New(t, Register)

	out := env.MustObject("currency.convert", ir.IRObject{
		"amount": ir.IRNumber("100"),
		"from":   ir.IRString("EUR"),
		"to":     ir.IRString("USD"),
	})
	assert.Equal(t, "108.70", out["converted"].(ir.IRDecimal).String())
	assert.Equal(t, "1.086957", out["rate"].(ir.IRDecimal).String())

	_, err := env.Invoke("currency.convert", ir.IRObject{"amount": ir.IRString("ten"), "from": ir.IRString("EUR")})
	require.True(t, engine.IsValidation(err))
	ee, _ := engine.AsError(err)
	assert.Contains(t, ee.Message, "amount")
	assert.Contains(t, ee.Message, "to")
}

func TestExpenseDecimalsRoundTrip(t *testing.T) {
	env := apptest.New(t, Register)
	cat := env.MustObject("category.create", ir.IRObject{"name": ir.IRString("Food")})

	x := env.MustObject("expense.create", ir.IRObject{
		"amount":      ir.IRNumber("19.90"),
		"description": ir.IRString("lunch"),
		"category_id": cat["id"],
		"spent_on":    ir.IRString("2024-03-01"),
	})
	assert.Equal(t, "19.90", x["amount"].(ir.IRDecimal).String())
	assert.Equal(t, ir.IRString("USD"), x["currency"])
	assert.True(t, x["spent_on"].(ir.IRTime).IsDate())

	got := env.MustList("expense.list", ir.IRObject{"filter": ir.IRObject{"amount": ir.IRNumber("19.9")}})
	assert.Len(t, got, 1, "decimal filters compare by value")
}

func TestCategoryDeleteIsRestricted(t *testing.T) {
	env := apptest.New(t, Register)
	cat := env.MustObject("category.create", ir.IRObject{"name": ir.IRString("Food")})
	env.MustObject("expense.create", ir.IRObject{
		"amount":      ir.IRNumber("1.00"),
		"description": ir.IRString("gum"),
		"category_id": cat["id"],
		"spent_on":    ir.IRString("2024-03-01"),
	})

	_, err := env.Invoke("category.delete", ir.IRObject{"id": cat["id"]})
	assert.True(t, engine.IsConstraint(err))

	env.MustObject("category.get", ir.IRObject{"id": cat["id"]})
}

func TestExpensesListMostRecentDayFirst(t *testing.T) {
	env := apptest.New(t, Register)
	seed(env)

	got := env.MustList("expense.list", nil)
	var days []string
	for _, v := range apptest.Column(got, "spent_on") {
		days = append(days, v.(ir.IRTime).Time().Format("2006-01-02"))
	}
	assert.Equal(t, []string{"2024-02-01", "2024-01-10", "2024-01-05", "2023-12-31"}, days)
}
