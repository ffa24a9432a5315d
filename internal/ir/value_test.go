package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalIRValueNumbers(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"n":3,"f":1.25,"big":1e3,"s":"x","z":null,"a":[true]}`))
	require.NoError(t, err)

	obj, ok := v.(IRObject)
	require.True(t, ok)
	assert.Equal(t, IRInt(3), obj["n"])
	assert.Equal(t, IRNumber("1.25"), obj["f"], "fractional literals keep their text")
	assert.Equal(t, IRNumber("1e3"), obj["big"])
	assert.Equal(t, IRString("x"), obj["s"])
	assert.Equal(t, IRNull{}, obj["z"])
	assert.Equal(t, IRArray{IRBool(true)}, obj["a"])
}

func TestUnmarshalIRValueErrors(t *testing.T) {
	for _, in := range []string{`{"a":`, `{} {}`, `99999999999999999999`} {
		_, err := UnmarshalIRValue([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestParseIRDecimal(t *testing.T) {
	d, err := ParseIRDecimal(" 0.10 ")
	require.NoError(t, err)
	assert.Equal(t, "0.10", d.String())

	for _, bad := range []string{"", "abc", "NaN", "Infinity"} {
		_, err := ParseIRDecimal(bad)
		assert.Error(t, err, bad)
	}
	assert.Panics(t, func() { MustDecimal("nope") })
}

func TestMarshalIRValueKeepsDecimalsExact(t *testing.T) {
	data, err := MarshalIRValue(IRObject{"amount": MustDecimal("0.30"), "qty": IRInt(2)})
	require.NoError(t, err)
	assert.Equal(t, `{"amount":"0.30","qty":2}`, string(data))
}

func TestIRTimeIsDate(t *testing.T) {
	day := NewIRDate(time.Date(2024, 5, 1, 23, 59, 0, 0, time.FixedZone("x", 3600)))
	assert.True(t, day.IsDate())
	assert.Equal(t, "2024-05-01", FormatTime(day))

	instant := NewIRTime(time.Date(2024, 5, 1, 0, 0, 0, 1, time.UTC))
	assert.False(t, instant.IsDate())
}

func TestFormatStorageTimeSortsAsText(t *testing.T) {
	a := FormatStorageTime(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC))
	b := FormatStorageTime(time.Date(2024, 1, 1, 0, 0, 1, 500, time.UTC))
	assert.Less(t, a, b)
	assert.Len(t, a, len(b))
}

func TestIRObjectCloneIsShallowCopy(t *testing.T) {
	obj := NewIRObjectFromPairs(O("name", NewIRString("go")), O("stock", NewIRInt(5)))
	c := obj.Clone()
	c["name"] = IRString("rust")

	assert.Equal(t, IRString("go"), obj["name"])
	assert.Equal(t, []string{"name", "stock"}, obj.SortedKeys())
	assert.True(t, obj.Has("stock"))
	assert.False(t, obj.Has("missing"))
}

func TestToGo(t *testing.T) {
	v := IRObject{
		"d":   MustDecimal("1.50"),
		"day": NewIRDate(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)),
		"arr": IRArray{IRInt(1), IRNull{}},
	}
	assert.Equal(t, map[string]any{
		"d":   "1.50",
		"day": "2024-02-03",
		"arr": []any{int64(1), nil},
	}, ToGo(v))
}
