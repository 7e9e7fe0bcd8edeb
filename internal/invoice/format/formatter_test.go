package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayAmount(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{cents: 0, want: "0"},
		{cents: 8000, want: "80"},
		{cents: 8050, want: "80.5"},
		{cents: 8055, want: "80.55"},
		{cents: 5, want: "0.05"},
		{cents: -2000, want: "-20"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DisplayAmount(tc.cents), "cents=%d", tc.cents)
	}
}

func TestDisplayAmountPtr_NilIsZero(t *testing.T) {
	assert.Equal(t, "0", DisplayAmountPtr(nil))
}

func TestMoney(t *testing.T) {
	got := Money(123450, "usd")
	assert.Contains(t, got, "$")
	assert.Contains(t, got, "1,234.50")

	negative := Money(-2000, "USD")
	assert.True(t, len(negative) > 0 && negative[0] == '-', "got %q", negative)
	assert.Contains(t, negative, "20.00")
}

func TestMoney_KeepsCentsForZeroDecimalCurrencies(t *testing.T) {
	got := Money(12345, "JPY")
	assert.Contains(t, got, "123.45")
	assert.Equal(t, DisplayAmount(12345), "123.45")
}

func TestParseAmount(t *testing.T) {
	cents, err := ParseAmount("80.50")
	require.NoError(t, err)
	assert.Equal(t, int64(8050), cents)

	cents, err = ParseAmount("1,000")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), cents)

	cents, err = ParseAmount("0.125")
	require.NoError(t, err)
	assert.Equal(t, int64(13), cents)

	_, err = ParseAmount("twelve")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
