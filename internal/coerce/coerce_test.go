package coerce

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crudkit/internal/ir"
)

var irCmp = cmp.Options{
	cmp.Comparer(func(a, b ir.IRDecimal) bool { return a.String() == b.String() }),
	cmp.Comparer(func(a, b ir.IRTime) bool { return a.Time().Equal(b.Time()) }),
}

func field(name string, t ir.FieldType) ir.FieldSpec {
	return ir.FieldSpec{Name: name, Type: t}
}

func TestEncode(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 5, 0, 120, time.FixedZone("CET", 3600))

	tests := []struct {
		name  string
		field ir.FieldSpec
		value ir.IRValue
		want  any
	}{
		{"null", field("a", ir.TypeString), ir.IRNull{}, nil},
		{"string", field("a", ir.TypeString), ir.IRString("x"), "x"},
		{"enum", field("a", ir.TypeEnum), ir.IRString("stock_in"), "stock_in"},
		{"int", field("a", ir.TypeInt), ir.IRInt(7), int64(7)},
		{"float", field("a", ir.TypeFloat), ir.IRFloat(1.5), 1.5},
		{"float from int", field("a", ir.TypeFloat), ir.IRInt(2), 2.0},
		{"decimal keeps scale", field("a", ir.TypeDecimal), ir.MustDecimal("10.50"), "10.50"},
		{"bool true", field("a", ir.TypeBool), ir.IRBool(true), int64(1)},
		{"bool false", field("a", ir.TypeBool), ir.IRBool(false), int64(0)},
		{"date", field("a", ir.TypeDate), ir.NewIRDate(ts), "2024-03-01"},
		{"timestamp fixed width utc", field("a", ir.TypeTimestamp), ir.NewIRTime(ts), "2024-03-01T08:05:00.000000120Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.field, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeMismatch(t *testing.T) {
	_, err := Encode(field("qty", ir.TypeInt), ir.IRString("ten"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"qty"`)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		field ir.FieldSpec
		raw   any
		want  ir.IRValue
	}{
		{"null", field("a", ir.TypeDecimal), nil, ir.IRNull{}},
		{"string", field("a", ir.TypeText), "hello", ir.IRString("hello")},
		{"bytes as string", field("a", ir.TypeString), []byte("hi"), ir.IRString("hi")},
		{"int", field("a", ir.TypeInt), int64(3), ir.IRInt(3)},
		{"int from integral float", field("a", ir.TypeInt), float64(4), ir.IRInt(4)},
		{"float", field("a", ir.TypeFloat), 2.25, ir.IRFloat(2.25)},
		{"float from int", field("a", ir.TypeFloat), int64(2), ir.IRFloat(2)},
		{"decimal text", field("a", ir.TypeDecimal), "19.90", ir.MustDecimal("19.90")},
		{"decimal bytes", field("a", ir.TypeDecimal), []byte("0.05"), ir.MustDecimal("0.05")},
		{"decimal from int", field("a", ir.TypeDecimal), int64(12), ir.MustDecimal("12")},
		{"bool", field("a", ir.TypeBool), int64(1), ir.IRBool(true)},
		{"bool zero", field("a", ir.TypeBool), int64(0), ir.IRBool(false)},
		{"date", field("a", ir.TypeDate), "2024-02-29", ir.NewIRDate(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))},
		{"date from time", field("a", ir.TypeDate), time.Date(2024, 2, 29, 13, 0, 0, 0, time.UTC), ir.NewIRDate(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))},
		{"timestamp", field("a", ir.TypeTimestamp), "2024-03-01T08:05:00.000000120Z", ir.NewIRTime(time.Date(2024, 3, 1, 8, 5, 0, 120, time.UTC))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.field, tt.raw)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, irCmp); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		field ir.FieldSpec
		raw   any
	}{
		{"bad decimal", field("a", ir.TypeDecimal), "twelve"},
		{"bad date", field("a", ir.TypeDate), "March 1st"},
		{"bad timestamp", field("a", ir.TypeTimestamp), "noon"},
		{"fractional int", field("a", ir.TypeInt), 1.5},
		{"unexpected type", field("a", ir.TypeBool), 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.field, tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodeRoundTripPerType(t *testing.T) {
	values := map[ir.FieldType]ir.IRValue{
		ir.TypeString:    ir.IRString("naïve"),
		ir.TypeInt:       ir.IRInt(-12),
		ir.TypeFloat:     ir.IRFloat(0.1),
		ir.TypeDecimal:   ir.MustDecimal("1234567890.123456789"),
		ir.TypeBool:      ir.IRBool(true),
		ir.TypeDate:      ir.NewIRDate(time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)),
		ir.TypeTimestamp: ir.NewIRTime(time.Date(2030, 1, 2, 3, 4, 5, 6, time.UTC)),
	}
	for typ, v := range values {
		f := field("x", typ)
		raw, err := Encode(f, v)
		require.NoError(t, err, typ)
		back, err := Decode(f, raw)
		require.NoError(t, err, typ)
		if diff := cmp.Diff(v, back, irCmp); diff != "" {
			t.Errorf("%s round trip (-want +got):\n%s", typ, diff)
		}
	}
}

func TestRow(t *testing.T) {
	spec := &ir.EntitySpec{
		Name: "Expense",
		Fields: []ir.FieldSpec{
			{Name: "amount", Type: ir.TypeDecimal},
			{Name: "spent_on", Type: ir.TypeDate},
			{Name: "reimbursed", Type: ir.TypeBool},
		},
	}

	got, err := Row(spec, map[string]any{
		"id":         int64(1),
		"amount":     "42.10",
		"spent_on":   "2024-05-06",
		"reimbursed": int64(0),
		"created_at": "2024-05-06T10:00:00.000000000Z",
		"updated_at": "2024-05-06T10:00:00.000000000Z",
		"rowid_junk": "ignored",
	})
	require.NoError(t, err)

	created := ir.NewIRTime(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))
	want := ir.IRObject{
		"id":         ir.IRInt(1),
		"amount":     ir.MustDecimal("42.10"),
		"spent_on":   ir.NewIRDate(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)),
		"reimbursed": ir.IRBool(false),
		"created_at": created,
		"updated_at": created,
	}
	if diff := cmp.Diff(want, got, irCmp); diff != "" {
		t.Errorf("Row() mismatch (-want +got):\n%s", diff)
	}
}

func TestRowsNeverNil(t *testing.T) {
	spec := &ir.EntitySpec{Name: "Tag", Fields: []ir.FieldSpec{{Name: "name", Type: ir.TypeString}}}
	got, err := Rows(spec, []map[string]any(nil))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
