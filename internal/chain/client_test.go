package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadel/internal/config"
)

var (
	weth  = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	usdc  = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	mkr   = common.HexToAddress("0x2e9a6Df78E42a30712c10a9Dc4b1C8656f8F2879")
	pool  = common.HexToAddress("0xC6962004f452bE9203591991D15f6b388e09E8D0")
	owner = common.HexToAddress("0x689fEBfd1EA5Af9E70B86d8a29362eC119C289B0")
)

type fakeCaller struct {
	t    *testing.T
	abis contractABIs

	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	poolAddr common.Address
}

func newFakeCaller(t *testing.T) *fakeCaller {
	abis, err := parseABIs()
	require.NoError(t, err)
	return &fakeCaller{
		t:        t,
		abis:     abis,
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		poolAddr: pool,
	}
}

func (f *fakeCaller) failNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = append(f.failures[method], errs...)
}

func (f *fakeCaller) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method := f.method(msg.Data)

	f.mu.Lock()
	f.calls[method.Name]++
	if queued := f.failures[method.Name]; len(queued) > 0 {
		f.failures[method.Name] = queued[1:]
		f.mu.Unlock()
		return nil, queued[0]
	}
	f.mu.Unlock()

	switch method.Name {
	case "positions":
		return method.Outputs.Pack(
			big.NewInt(0), common.Address{}, weth, usdc, big.NewInt(500),
			big.NewInt(-199000), big.NewInt(-197000), big.NewInt(123456789),
			big.NewInt(0), big.NewInt(0), big.NewInt(11), big.NewInt(22),
		)
	case "ownerOf":
		return method.Outputs.Pack(owner)
	case "getPool":
		return method.Outputs.Pack(f.poolAddr)
	case "slot0":
		return method.Outputs.Pack(
			new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(-198000),
			uint16(1), uint16(2), uint16(3), uint8(0), true,
		)
	case "decimals":
		if *msg.To == usdc {
			return method.Outputs.Pack(uint8(6))
		}
		return method.Outputs.Pack(uint8(18))
	case "symbol":
		switch *msg.To {
		case usdc:
			return method.Outputs.Pack("USDC")
		case mkr:
			var raw [32]byte
			copy(raw[:], "MKR")
			return raw[:], nil
		default:
			return method.Outputs.Pack("WETH")
		}
	case "collect":
		require.Equal(f.t, owner, msg.From)
		return method.Outputs.Pack(big.NewInt(5e15), big.NewInt(12_500_000))
	}

	f.t.Fatalf("unexpected method %s", method.Name)
	return nil, nil
}

func (f *fakeCaller) method(data []byte) *abi.Method {
	require.GreaterOrEqual(f.t, len(data), 4)
	for _, a := range []abi.ABI{f.abis.manager, f.abis.factory, f.abis.pool, f.abis.erc20} {
		if m, err := a.MethodById(data[:4]); err == nil {
			return m
		}
	}
	f.t.Fatalf("unknown selector %x", data[:4])
	return nil
}

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		PositionManager: "0xC36442b4a4522E871399CD717aBDD847Ab11FE88",
		Factory:         "0x1F98431c8aD98523631AE4a59f267346ea31F984",
		CallTimeout:     time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
		Breaker: config.BreakerConfig{MaxFailures: 10, Timeout: time.Second},
	}
}

func newTestClient(t *testing.T) (*Client, *fakeCaller) {
	caller := newFakeCaller(t)
	client, err := NewClient(caller, testChainConfig(), nil)
	require.NoError(t, err)
	return client, caller
}

func TestClientPosition(t *testing.T) {
	client, _ := newTestClient(t)

	pos, err := client.Position(context.Background(), big.NewInt(4931983))
	require.NoError(t, err)

	assert.Equal(t, weth, pos.Token0)
	assert.Equal(t, usdc, pos.Token1)
	assert.Equal(t, uint32(500), pos.Fee)
	assert.Equal(t, -199000, pos.TickLower)
	assert.Equal(t, -197000, pos.TickUpper)
	assert.Equal(t, "123456789", pos.Liquidity.String())
	assert.Equal(t, "22", pos.TokensOwed1.String())
}

func TestClientPoolAndSlot0(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	addr, err := client.PoolAddress(ctx, weth, usdc, 500)
	require.NoError(t, err)
	assert.Equal(t, pool, addr)

	slot, err := client.Slot0(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, -198000, slot.Tick)
	assert.Equal(t, new(big.Int).Lsh(big.NewInt(1), 96), slot.SqrtPriceX96)
}

func TestClientPoolAddress_NotFound(t *testing.T) {
	client, caller := newTestClient(t)
	caller.poolAddr = common.Address{}

	_, err := client.PoolAddress(context.Background(), weth, usdc, 100)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestClientToken_CachesMetadata(t *testing.T) {
	client, caller := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		token, err := client.Token(ctx, usdc)
		require.NoError(t, err)
		assert.Equal(t, "USDC", token.Symbol)
		assert.Equal(t, uint8(6), token.Decimals)
	}

	assert.Equal(t, 1, caller.count("decimals"))
	assert.Equal(t, 1, caller.count("symbol"))
}

func TestClientToken_Bytes32Symbol(t *testing.T) {
	client, _ := newTestClient(t)

	token, err := client.Token(context.Background(), mkr)
	require.NoError(t, err)
	assert.Equal(t, "MKR", token.Symbol)
}

func TestClientSimulateCollect(t *testing.T) {
	client, _ := newTestClient(t)

	fees, err := client.SimulateCollect(context.Background(), big.NewInt(1), owner)
	require.NoError(t, err)
	assert.Equal(t, "5000000000000000", fees.Amount0.String())
	assert.Equal(t, "12500000", fees.Amount1.String())
}

func TestClientSimulateCollect_RevertIsNotRetried(t *testing.T) {
	client, caller := newTestClient(t)
	caller.failNext("collect", errors.New("execution reverted: Not approved"))

	_, err := client.SimulateCollect(context.Background(), big.NewInt(1), owner)
	require.Error(t, err)
	assert.True(t, IsRevert(err))
	assert.Equal(t, 1, caller.count("collect"))
}

func TestClientRetriesTransientFailures(t *testing.T) {
	client, caller := newTestClient(t)
	caller.failNext("slot0", errors.New("connection reset by peer"), errors.New("503 service unavailable"))

	_, err := client.Slot0(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, 3, caller.count("slot0"))
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	client, caller := newTestClient(t)
	boom := errors.New("connection refused")
	caller.failNext("getPool", boom, boom, boom, boom)

	_, err := client.PoolAddress(context.Background(), weth, usdc, 500)
	require.Error(t, err)
	assert.Equal(t, 3, caller.count("getPool"))
}
