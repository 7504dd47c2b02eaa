// Package uniswap holds the concentrated liquidity maths for Uniswap v3 style pools.
//
// Amounts are computed in raw token units (no decimals applied), using the closed form from the
// Uniswap v3 whitepaper section 6.2.3 and LiquidityAmounts.sol:
// => https://github.com/Uniswap/v3-periphery/blob/main/contracts/libraries/LiquidityAmounts.sol
package uniswap

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// ErrInvalidRange is returned for a tick range a v3 pool cannot hold.
var ErrInvalidRange = errors.New("uniswap: invalid tick range")

// Q96 is 2^96, the fixed point scale of sqrtPriceX96.
var Q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

const (
	// MinTick and MaxTick bound the usable tick range.
	MinTick = -887272
	MaxTick = 887272

	tickBase = 1.0001
)

// SqrtPriceAtTick returns sqrt(1.0001^tick).
func SqrtPriceAtTick(tick int) float64 {
	return math.Pow(tickBase, float64(tick)/2)
}

// SqrtPriceFromX96 converts a Q64.96 fixed point square root price to a float.
func SqrtPriceFromX96(sqrtPriceX96 *big.Int) float64 {
	if sqrtPriceX96 == nil {
		return 0
	}
	f := new(big.Float).SetInt(sqrtPriceX96)
	f.Quo(f, Q96)
	out, _ := f.Float64()
	return out
}

// PriceFromSqrtX96 returns the human price of one token0 expressed in token1,
// i.e. (sqrtPriceX96 / 2^96)^2 * 10^(dec0-dec1).
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) float64 {
	sqrtPrice := SqrtPriceFromX96(sqrtPriceX96)
	return sqrtPrice * sqrtPrice * math.Pow(10, float64(int(decimals0)-int(decimals1)))
}

// AmountsForLiquidity returns the raw token0 and token1 amounts held by liquidity between
// sqrtA and sqrtB at the current sqrtPrice.
//
//   - price at or below the range: everything is token0
//   - price inside the range: both tokens
//   - price at or above the range: everything is token1
func AmountsForLiquidity(liquidity, sqrtPrice, sqrtA, sqrtB float64) (amount0, amount1 float64) {
	if sqrtA > sqrtB {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if liquidity <= 0 || sqrtA <= 0 {
		return 0, 0
	}

	switch {
	case sqrtPrice <= sqrtA:
		amount0 = liquidity * (sqrtB - sqrtA) / (sqrtA * sqrtB)
	case sqrtPrice < sqrtB:
		amount0 = liquidity * (sqrtB - sqrtPrice) / (sqrtPrice * sqrtB)
		amount1 = liquidity * (sqrtPrice - sqrtA)
	default:
		amount1 = liquidity * (sqrtB - sqrtA)
	}

	return amount0, amount1
}

// AmountsForTicks is AmountsForLiquidity with the range given as ticks.
func AmountsForTicks(liquidity *big.Int, sqrtPriceX96 *big.Int, tickLower, tickUpper int) (amount0, amount1 float64) {
	if liquidity == nil {
		return 0, 0
	}
	l, _ := new(big.Float).SetInt(liquidity).Float64()
	return AmountsForLiquidity(l, SqrtPriceFromX96(sqrtPriceX96), SqrtPriceAtTick(tickLower), SqrtPriceAtTick(tickUpper))
}

// InRange reports whether the current tick earns fees for a position spanning [lower, upper).
func InRange(tick, tickLower, tickUpper int) bool {
	return tick >= tickLower && tick < tickUpper
}

// CheckRange rejects ranges outside [MinTick, MaxTick] or with lower >= upper.
func CheckRange(tickLower, tickUpper int) error {
	if tickLower < MinTick || tickUpper > MaxTick || tickLower >= tickUpper {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, tickLower, tickUpper)
	}
	return nil
}
