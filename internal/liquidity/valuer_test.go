package liquidity

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadel/internal/chain"
	"citadel/internal/uniswap"
)

var (
	wethAddr = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	usdcAddr = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	poolAddr = common.HexToAddress("0xC6962004f452bE9203591991D15f6b388e09E8D0")
	ownerA   = common.HexToAddress("0x689fEBfd1EA5Af9E70B86d8a29362eC119C289B0")
)

type fakeReader struct {
	position   chain.Position
	slot       chain.Slot0
	tokens     map[common.Address]chain.Token
	fees       chain.Fees
	positionEr error
	collectErr error
	ownerErr   error
}

func (f *fakeReader) Position(context.Context, *big.Int) (chain.Position, error) {
	return f.position, f.positionEr
}

func (f *fakeReader) OwnerOf(context.Context, *big.Int) (common.Address, error) {
	return ownerA, f.ownerErr
}

func (f *fakeReader) PoolAddress(context.Context, common.Address, common.Address, uint32) (common.Address, error) {
	return poolAddr, nil
}

func (f *fakeReader) Slot0(context.Context, common.Address) (chain.Slot0, error) {
	return f.slot, nil
}

func (f *fakeReader) Token(_ context.Context, addr common.Address) (chain.Token, error) {
	return f.tokens[addr], nil
}

func (f *fakeReader) SimulateCollect(_ context.Context, _ *big.Int, from common.Address) (chain.Fees, error) {
	if from != ownerA {
		return chain.Fees{}, errors.New("execution reverted: Not approved")
	}
	return f.fees, f.collectErr
}

func sqrtX96(rawPrice float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(math.Sqrt(rawPrice)), uniswap.Q96)
	out, _ := f.Int(nil)
	return out
}

func tokens() map[common.Address]chain.Token {
	return map[common.Address]chain.Token{
		wethAddr: {Address: wethAddr, Symbol: "WETH", Decimals: 18},
		usdcAddr: {Address: usdcAddr, Symbol: "USDC", Decimals: 6},
	}
}

func wethUsdcReader() *fakeReader {
	liq, _ := new(big.Int).SetString("2000000000000000", 10)
	return &fakeReader{
		position: chain.Position{
			Token0: wethAddr, Token1: usdcAddr, Fee: 500,
			TickLower: -197000, TickUpper: -195000,
			Liquidity: liq,
		},
		slot: chain.Slot0{
			SqrtPriceX96: sqrtX96(3000 * 1e-12),
			Tick:         -196256,
		},
		tokens: tokens(),
		fees: chain.Fees{
			Amount0: big.NewInt(1e16),
			Amount1: big.NewInt(5_000_000),
		},
	}
}

func TestValue_VolatileToken0(t *testing.T) {
	reader := wethUsdcReader()
	valuer := NewValuer(reader, []string{"weth", "ETH"}, nil)

	val, err := valuer.Value(context.Background(), 4931983)
	require.NoError(t, err)

	sqrtP := math.Sqrt(3000 * 1e-12)
	sqrtA, sqrtB := uniswap.SqrtPriceAtTick(-197000), uniswap.SqrtPriceAtTick(-195000)
	l := 2e15
	wantWeth := l * (sqrtB - sqrtP) / (sqrtP * sqrtB) / 1e18
	wantUsdc := l * (sqrtP - sqrtA) / 1e6

	assert.True(t, val.InRange)
	assert.Equal(t, "WETH", val.VolatileSymbol)
	assert.Equal(t, "USDC", val.StableSymbol)
	assert.InEpsilon(t, 3000, val.VolatilePrice, 1e-9)
	assert.InEpsilon(t, wantWeth, val.VolatileAmount, 1e-6)
	assert.InEpsilon(t, wantUsdc, val.StableAmount, 1e-6)
	assert.InEpsilon(t, wantWeth*3000, val.VolatileUSD, 1e-6)
	assert.InEpsilon(t, wantWeth*3000+wantUsdc, val.PositionUSD, 1e-6)

	require.True(t, val.FeesEstimated)
	assert.InEpsilon(t, 0.01*3000+5, val.FeesUSD, 1e-9)
	assert.InEpsilon(t, val.PositionUSD+val.FeesUSD, val.TotalUSD(), 1e-12)
}

func TestValue_VolatileToken1(t *testing.T) {
	reader := wethUsdcReader()
	reader.position.Token0, reader.position.Token1 = usdcAddr, wethAddr
	// one USDC costs 1/3000 WETH
	reader.slot.SqrtPriceX96 = sqrtX96(1e12 / 3000)
	reader.position.TickLower, reader.position.TickUpper = 195000, 197000
	reader.slot.Tick = 196256
	reader.fees = chain.Fees{Amount0: big.NewInt(5_000_000), Amount1: big.NewInt(1e16)}

	val, err := NewValuer(reader, []string{"WETH"}, nil).Value(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "WETH", val.VolatileSymbol)
	assert.InEpsilon(t, 3000, val.VolatilePrice, 1e-9)
	assert.Equal(t, val.Amount1, val.VolatileAmount)
	assert.Equal(t, val.Amount0, val.StableAmount)
	assert.InEpsilon(t, 0.01*3000+5, val.FeesUSD, 1e-9)
}

func TestValue_OutOfRangeHoldsSingleToken(t *testing.T) {
	reader := wethUsdcReader()
	// price above the range: everything sits in token1 (USDC)
	reader.slot.SqrtPriceX96 = sqrtX96(4000 * 1e-12)
	reader.slot.Tick = -193380

	val, err := NewValuer(reader, []string{"WETH"}, nil).Value(context.Background(), 1)
	require.NoError(t, err)

	assert.False(t, val.InRange)
	assert.Zero(t, val.VolatileAmount)
	assert.Greater(t, val.StableAmount, 0.0)
	assert.InEpsilon(t, val.StableAmount, val.PositionUSD, 1e-12)
}

func TestValue_FeeSimulationFailureReportsZero(t *testing.T) {
	reader := wethUsdcReader()
	reader.collectErr = errors.New("execution reverted")

	val, err := NewValuer(reader, []string{"WETH"}, nil).Value(context.Background(), 1)
	require.NoError(t, err)

	assert.False(t, val.FeesEstimated)
	assert.Zero(t, val.FeesUSD)
	assert.Greater(t, val.PositionUSD, 0.0)
	assert.Equal(t, val.PositionUSD, val.TotalUSD())
}

func TestValue_OwnerLookupFailureReportsZero(t *testing.T) {
	reader := wethUsdcReader()
	reader.ownerErr = errors.New("ERC721: invalid token ID")

	val, err := NewValuer(reader, []string{"WETH"}, nil).Value(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, val.FeesUSD)
}

func TestValue_PositionErrorPropagates(t *testing.T) {
	reader := wethUsdcReader()
	reader.positionEr = errors.New("rpc down")

	_, err := NewValuer(reader, []string{"WETH"}, nil).Value(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
}

func TestValue_RejectsTicksOutsidePoolBounds(t *testing.T) {
	reader := wethUsdcReader()
	reader.position.TickLower = uniswap.MinTick - 1

	_, err := NewValuer(reader, []string{"WETH"}, nil).Value(context.Background(), 1)
	require.ErrorIs(t, err, uniswap.ErrInvalidRange)
}
