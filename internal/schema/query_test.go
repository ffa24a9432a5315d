package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crudkit/internal/ir"
)

func TestValidateQueryDefaults(t *testing.T) {
	q, err := ValidateQuery(productSpec(), ir.IRObject{})
	require.NoError(t, err)

	assert.Empty(t, q.Conditions)
	assert.Equal(t, ir.Order{Field: "created_at", Desc: true}, q.Order)
	assert.Equal(t, ir.DefaultLimit, q.Limit)
	assert.Equal(t, 0, q.Offset)
}

func TestValidateQueryFilters(t *testing.T) {
	q, err := ValidateQuery(productSpec(), ir.IRObject{
		"filter": ir.IRObject{
			"kind":        ir.IRString("digital"),
			"stock_level": ir.IRObject{"gte": ir.IRInt(1), "lt": ir.IRInt(10)},
			"description": ir.IRNull{},
			"supplier_id": ir.IRObject{"in": ir.IRArray{ir.IRInt(2), ir.IRInt(1)}},
			"price":       ir.IRObject{"lte": ir.IRString("9.99")},
			"synced_at":   ir.IRObject{"is_null": ir.IRBool(false)},
		},
		"order_by": ir.IRString("-stock_level"),
		"limit":    ir.IRInt(3),
		"offset":   ir.IRInt(6),
	})
	require.NoError(t, err)

	want := ir.ListQuery{
		Conditions: []ir.Condition{
			{Field: "description", Op: ir.OpIsNull, Value: ir.IRBool(true)},
			{Field: "kind", Op: ir.OpEq, Value: ir.IRString("digital")},
			{Field: "price", Op: ir.OpLte, Value: ir.MustDecimal("9.99")},
			{Field: "stock_level", Op: ir.OpGte, Value: ir.IRInt(1)},
			{Field: "stock_level", Op: ir.OpLt, Value: ir.IRInt(10)},
			{Field: "supplier_id", Op: ir.OpIn, Values: []ir.IRValue{ir.IRInt(2), ir.IRInt(1)}},
			{Field: "synced_at", Op: ir.OpIsNull, Value: ir.IRBool(false)},
		},
		Order:  ir.Order{Field: "stock_level", Desc: true},
		Limit:  3,
		Offset: 6,
	}
	if diff := cmp.Diff(want, q, irCmp); diff != "" {
		t.Errorf("ValidateQuery() mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateQueryImplicitColumns(t *testing.T) {
	q, err := ValidateQuery(productSpec(), ir.IRObject{
		"filter":   ir.IRObject{"created_at": ir.IRObject{"gt": ir.IRString("2024-01-01T00:00:00Z")}},
		"order_by": ir.IRString("id"),
	})
	require.NoError(t, err)
	require.Len(t, q.Conditions, 1)
	assert.Equal(t, ir.OpGt, q.Conditions[0].Op)
	assert.Equal(t, ir.Order{Field: "id"}, q.Order)
}

func TestValidateQueryViolations(t *testing.T) {
	tests := []struct {
		name  string
		input ir.IRObject
		field string
		code  string
	}{
		{"limit zero", ir.IRObject{"limit": ir.IRInt(0)}, "limit", CodeRange},
		{"limit too big", ir.IRObject{"limit": ir.IRInt(501)}, "limit", CodeRange},
		{"limit not int", ir.IRObject{"limit": ir.IRString("5")}, "limit", CodeType},
		{"negative offset", ir.IRObject{"offset": ir.IRInt(-1)}, "offset", CodeRange},
		{"unknown order field", ir.IRObject{"order_by": ir.IRString("-colour")}, "order_by", CodeUnknown},
		{"unknown key", ir.IRObject{"page": ir.IRInt(2)}, "page", CodeUnknown},
		{"filter not object", ir.IRObject{"filter": ir.IRString("x")}, "filter", CodeType},
		{"unknown filter field", ir.IRObject{"filter": ir.IRObject{"colour": ir.IRString("red")}}, "filter.colour", CodeUnknown},
		{"range on string", ir.IRObject{"filter": ir.IRObject{"name": ir.IRObject{"gt": ir.IRString("a")}}}, "filter.name", CodeType},
		{"range on bool", ir.IRObject{"filter": ir.IRObject{"active": ir.IRObject{"lt": ir.IRBool(true)}}}, "filter.active", CodeType},
		{"unknown operator", ir.IRObject{"filter": ir.IRObject{"stock_level": ir.IRObject{"between": ir.IRInt(1)}}}, "filter.stock_level", CodeUnknown},
		{"wrong value type", ir.IRObject{"filter": ir.IRObject{"stock_level": ir.IRString("many")}}, "filter.stock_level", CodeType},
		{"compare with null", ir.IRObject{"filter": ir.IRObject{"stock_level": ir.IRObject{"gt": ir.IRNull{}}}}, "filter.stock_level", CodeNull},
		{"in not array", ir.IRObject{"filter": ir.IRObject{"kind": ir.IRObject{"in": ir.IRString("digital")}}}, "filter.kind", CodeType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateQuery(productSpec(), tt.input)
			got := violationsOf(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.field, got[0].Field)
			assert.Equal(t, tt.code, got[0].Code)
		})
	}
}

func TestValidateQueryFilterSkipsBounds(t *testing.T) {
	// stock_level has min 0, but filtering below the bound is still a valid question.
	_, err := ValidateQuery(productSpec(), ir.IRObject{
		"filter": ir.IRObject{"stock_level": ir.IRObject{"gt": ir.IRInt(-1)}},
	})
	assert.NoError(t, err)
}

func TestValidateID(t *testing.T) {
	id, err := ValidateID("Product", ir.IRObject{"id": ir.IRInt(42)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	tests := []struct {
		name  string
		input ir.IRObject
		code  string
	}{
		{"missing", ir.IRObject{}, CodeRequired},
		{"string", ir.IRObject{"id": ir.IRString("42")}, CodeType},
		{"zero", ir.IRObject{"id": ir.IRInt(0)}, CodeRange},
		{"negative", ir.IRObject{"id": ir.IRInt(-3)}, CodeRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateID("Product", tt.input)
			got := violationsOf(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "id", got[0].Field)
			assert.Equal(t, tt.code, got[0].Code)
		})
	}
}

func TestValidateIDField(t *testing.T) {
	id, err := ValidateIDField("Habit", ir.IRObject{"habit_id": ir.IRInt(3)}, "habit_id")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}
