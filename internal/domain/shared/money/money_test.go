package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"50", 5000},
		{"49.90", 4990},
		{" 12.5 ", 1250},
		{"0.015", 2},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			m, err := ParseDecimal(tt.raw, "usd")
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Amount)
			assert.Equal(t, "USD", m.Currency)
		})
	}

	_, err := ParseDecimal("fifty", "USD")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = ParseDecimal("", "USD")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestArithmetic(t *testing.T) {
	a := Must(5000, "USD")
	b := Must(2550, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(7550), sum.Amount)

	diff, err := b.Sub(a)
	require.NoError(t, err)
	assert.Equal(t, int64(-2450), diff.Amount)
	assert.Equal(t, "-24.50 USD", diff.String())

	_, err = a.Add(Must(100, "EUR"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.Equal(t, int64(15000), a.Multiply(3).Amount)
	assert.InDelta(t, 50.0, a.Decimal(), 0.0001)
}
