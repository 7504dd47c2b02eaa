package units

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDecimal_RoundTrip(t *testing.T) {
	cases := []struct {
		raw      string
		decimals uint8
		want     string
	}{
		{"0", 18, "0"},
		{"1", 18, "0.000000000000000001"},
		{"1500000", 6, "1.5"},
		{"123456789012345678901234567890", 18, "123456789012.34567890123456789"},
		{"340282366920938463463374607431768211455", 6, "340282366920938463463374607431768.211455"},
		{"42", 0, "42"},
	}

	for _, tc := range cases {
		raw, ok := new(big.Int).SetString(tc.raw, 10)
		require.True(t, ok)

		d := ToDecimal(raw, tc.decimals)
		assert.Equal(t, tc.want, d.String(), "raw=%s decimals=%d", tc.raw, tc.decimals)

		back := FromDecimal(d, tc.decimals)
		assert.Zero(t, raw.Cmp(back), "round trip %s -> %s", tc.raw, back)
	}
}

func TestToDecimal_Nil(t *testing.T) {
	assert.True(t, ToDecimal(nil, 18).IsZero())
}

func TestFromDecimal_TruncatesBelowPrecision(t *testing.T) {
	got := FromDecimal(decimal.RequireFromString("1.2345678"), 6)
	assert.Equal(t, "1234567", got.String())
}

func TestScaleFloat(t *testing.T) {
	assert.InDelta(t, 2.5, ScaleFloat(2.5e18, 18), 1e-12)
	assert.InDelta(t, 1234.56, ScaleFloat(1234560000, 6), 1e-9)
	assert.InDelta(t, 1.5, ToFloat(big.NewInt(1500000), 6), 1e-12)
}
