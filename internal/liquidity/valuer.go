// Package liquidity values a concentrated liquidity position in USD.
package liquidity

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"citadel/internal/chain"
	"citadel/internal/uniswap"
	"citadel/internal/units"
)

// Reader is the subset of chain.Client the valuation needs.
type Reader interface {
	Position(ctx context.Context, tokenID *big.Int) (chain.Position, error)
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	PoolAddress(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, error)
	Slot0(ctx context.Context, pool common.Address) (chain.Slot0, error)
	Token(ctx context.Context, address common.Address) (chain.Token, error)
	SimulateCollect(ctx context.Context, tokenID *big.Int, from common.Address) (chain.Fees, error)
}

// Valuation is the USD breakdown of one position. The stable leg is assumed to trade at 1 USD.
type Valuation struct {
	TokenID uint64
	Pool    common.Address

	Token0 chain.Token
	Token1 chain.Token

	TickLower   int
	TickUpper   int
	CurrentTick int
	InRange     bool

	// Amount0/Amount1 are decimal-scaled quantities of token0/token1.
	Amount0 float64
	Amount1 float64

	VolatileSymbol string
	StableSymbol   string
	VolatileAmount float64
	StableAmount   float64
	// VolatilePrice is the price of the volatile token in the stable token.
	VolatilePrice float64

	VolatileUSD float64
	// PositionUSD excludes unclaimed fees.
	PositionUSD float64
	FeesUSD     float64
	// FeesEstimated is false when the collect simulation failed and FeesUSD was zeroed.
	FeesEstimated bool

	CapturedAt time.Time
}

// TotalUSD is the position value including unclaimed fees.
func (v Valuation) TotalUSD() float64 {
	return v.PositionUSD + v.FeesUSD
}

// Valuer prices positions through a Reader.
type Valuer struct {
	reader   Reader
	volatile map[string]struct{}
	logger   *zap.Logger
	now      func() time.Time
}

// NewValuer creates a Valuer. volatileSymbols lists the symbols treated as the priced leg
// (case-insensitive); the other leg is the USD stable.
func NewValuer(reader Reader, volatileSymbols []string, logger *zap.Logger) *Valuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	volatile := make(map[string]struct{}, len(volatileSymbols))
	for _, s := range volatileSymbols {
		volatile[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	return &Valuer{
		reader:   reader,
		volatile: volatile,
		logger:   logger,
		now:      time.Now,
	}
}

// Value reads the position and its pool and converts everything to USD.
// A failing fee simulation never fails the valuation: fees are reported as zero.
func (v *Valuer) Value(ctx context.Context, tokenID uint64) (Valuation, error) {
	id := new(big.Int).SetUint64(tokenID)

	pos, err := v.reader.Position(ctx, id)
	if err != nil {
		return Valuation{}, fmt.Errorf("liquidity: read position %d: %w", tokenID, err)
	}
	if err := uniswap.CheckRange(pos.TickLower, pos.TickUpper); err != nil {
		return Valuation{}, fmt.Errorf("liquidity: position %d: %w", tokenID, err)
	}

	poolAddr, err := v.reader.PoolAddress(ctx, pos.Token0, pos.Token1, pos.Fee)
	if err != nil {
		return Valuation{}, fmt.Errorf("liquidity: resolve pool for %d: %w", tokenID, err)
	}

	slot, err := v.reader.Slot0(ctx, poolAddr)
	if err != nil {
		return Valuation{}, fmt.Errorf("liquidity: read pool %s: %w", poolAddr.Hex(), err)
	}

	token0, err := v.reader.Token(ctx, pos.Token0)
	if err != nil {
		return Valuation{}, fmt.Errorf("liquidity: token0 metadata: %w", err)
	}
	token1, err := v.reader.Token(ctx, pos.Token1)
	if err != nil {
		return Valuation{}, fmt.Errorf("liquidity: token1 metadata: %w", err)
	}

	raw0, raw1 := uniswap.AmountsForTicks(pos.Liquidity, slot.SqrtPriceX96, pos.TickLower, pos.TickUpper)
	amount0 := units.ScaleFloat(raw0, token0.Decimals)
	amount1 := units.ScaleFloat(raw1, token1.Decimals)

	// token0 priced in token1
	price01 := uniswap.PriceFromSqrtX96(slot.SqrtPriceX96, token0.Decimals, token1.Decimals)

	val := Valuation{
		TokenID:     tokenID,
		Pool:        poolAddr,
		Token0:      token0,
		Token1:      token1,
		TickLower:   pos.TickLower,
		TickUpper:   pos.TickUpper,
		CurrentTick: slot.Tick,
		InRange:     uniswap.InRange(slot.Tick, pos.TickLower, pos.TickUpper),
		Amount0:     amount0,
		Amount1:     amount1,
		CapturedAt:  v.now().UTC(),
	}

	volatileIsToken0 := v.isVolatile(token0.Symbol)
	if volatileIsToken0 {
		val.VolatileSymbol, val.StableSymbol = token0.Symbol, token1.Symbol
		val.VolatileAmount, val.StableAmount = amount0, amount1
		val.VolatilePrice = price01
	} else {
		val.VolatileSymbol, val.StableSymbol = token1.Symbol, token0.Symbol
		val.VolatileAmount, val.StableAmount = amount1, amount0
		if price01 > 0 {
			val.VolatilePrice = 1 / price01
		}
	}

	val.VolatileUSD = val.VolatileAmount * val.VolatilePrice
	val.PositionUSD = val.VolatileUSD + val.StableAmount

	fees, err := v.unclaimedFees(ctx, id)
	if err != nil {
		v.logger.Warn("fee simulation failed, reporting zero fees",
			zap.Uint64("position_id", tokenID),
			zap.Error(err),
		)
		return val, nil
	}

	fees0 := units.ToFloat(fees.Amount0, token0.Decimals)
	fees1 := units.ToFloat(fees.Amount1, token1.Decimals)
	if volatileIsToken0 {
		val.FeesUSD = fees0*val.VolatilePrice + fees1
	} else {
		val.FeesUSD = fees1*val.VolatilePrice + fees0
	}
	val.FeesEstimated = true

	return val, nil
}

func (v *Valuer) unclaimedFees(ctx context.Context, id *big.Int) (chain.Fees, error) {
	owner, err := v.reader.OwnerOf(ctx, id)
	if err != nil {
		return chain.Fees{}, err
	}
	return v.reader.SimulateCollect(ctx, id, owner)
}

func (v *Valuer) isVolatile(symbol string) bool {
	_, ok := v.volatile[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}
