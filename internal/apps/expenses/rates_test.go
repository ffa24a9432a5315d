package expenses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crudkit/internal/ir"
)

func TestConvert(t *testing.T) {
	conv := NewConverter()

	tests := []struct {
		amount   string
		from, to string
		want     string
	}{
		{"100", "EUR", "USD", "108.70"},
		{"10.00", "USD", "JPY", "1495.00"},
		{"1", "GBP", "EUR", "1.16"},
		{"0.125", "USD", "USD", "0.12"}, // half-even rounds to the even cent
		{"0.135", "USD", "USD", "0.14"},
		{"0", "JPY", "GBP", "0.00"},
		{"149.50", "JPY", "USD", "1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+tt.from+tt.to, func(t *testing.T) {
			got, err := conv.Convert(ir.MustDecimal(tt.amount), tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := conv.Convert(ir.MustDecimal("1"), "USD", "XYZ")
	assert.Error(t, err)
}

func TestCrossRate(t *testing.T) {
	conv := NewConverter()

	rate, err := conv.CrossRate("USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "0.92", rate.String())

	rate, err = conv.CrossRate("EUR", "USD")
	require.NoError(t, err)
	assert.Equal(t, "1.086957", rate.String())
}

func TestSumIsExact(t *testing.T) {
	total, err := Sum(ir.MustDecimal("0.10"), ir.MustDecimal("0.20"), ir.MustDecimal("0.30"))
	require.NoError(t, err)
	assert.Equal(t, "0.60", total.String())

	total, err = Sum()
	require.NoError(t, err)
	assert.Equal(t, "0.00", total.String())

	diff, err := Sub(ir.MustDecimal("200"), ir.MustDecimal("39.24"))
	require.NoError(t, err)
	assert.Equal(t, "160.76", diff.String())
}

func TestNewConverterFromRates(t *testing.T) {
	_, err := NewConverterFromRates(map[string]string{"USD": "1", "EUR": "0"})
	assert.Error(t, err)
	_, err = NewConverterFromRates(map[string]string{"USD": "one"})
	assert.Error(t, err)
}
