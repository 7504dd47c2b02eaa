// Package units converts between raw on-chain integer amounts and human readable quantities.
package units

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDecimal scales a raw token amount down by 10^decimals without losing precision.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromDecimal scales a quantity back up to its raw integer representation.
// Digits below the token's precision are truncated.
func FromDecimal(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}

// ToFloat is ToDecimal for callers that work in float64.
func ToFloat(raw *big.Int, decimals uint8) float64 {
	f, _ := ToDecimal(raw, decimals).Float64()
	return f
}

// ScaleFloat divides an amount that is already a float by 10^decimals.
func ScaleFloat(raw float64, decimals uint8) float64 {
	return raw / math.Pow(10, float64(decimals))
}
