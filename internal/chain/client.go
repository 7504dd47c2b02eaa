// Package chain reads Uniswap v3 position, pool and token state over JSON-RPC.
package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"citadel/internal/config"
)

// ContractCaller executes read-only calls. *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client wraps a ContractCaller with rate limiting, a circuit breaker and retries.
type Client struct {
	caller ContractCaller
	closer func()
	cfg    config.ChainConfig
	logger *zap.Logger
	abis   contractABIs

	positionManager common.Address
	factory         common.Address

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	tokensMu sync.RWMutex
	tokens   map[common.Address]Token
}

// Dial connects to the configured RPC endpoint.
func Dial(ctx context.Context, cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	client, err := NewClient(ec, cfg, logger)
	if err != nil {
		ec.Close()
		return nil, err
	}
	client.closer = ec.Close

	return client, nil
}

// NewClient builds a Client over an existing caller.
func NewClient(caller ContractCaller, cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	if caller == nil {
		return nil, errors.New("chain: caller must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	burst := cfg.RateBurst
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	if burst <= 0 {
		burst = 1
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "chain-rpc",
		Interval: cfg.Breaker.Interval,
		Timeout:  cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// a revert is a valid answer from a healthy node
		IsSuccessful: func(err error) bool {
			return err == nil || IsRevert(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rpc circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		caller:          caller,
		cfg:             cfg,
		logger:          logger,
		abis:            abis,
		positionManager: common.HexToAddress(cfg.PositionManager),
		factory:         common.HexToAddress(cfg.Factory),
		limiter:         rate.NewLimiter(limit, burst),
		breaker:         breaker,
		tokens:          make(map[common.Address]Token),
	}, nil
}

// Close releases the underlying RPC connection when the client owns it.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// PositionManager returns the NonfungiblePositionManager address.
func (c *Client) PositionManager() common.Address {
	return c.positionManager
}

// Position reads positions(tokenId).
func (c *Client) Position(ctx context.Context, tokenID *big.Int) (Position, error) {
	data, err := c.abis.manager.Pack("positions", tokenID)
	if err != nil {
		return Position{}, fmt.Errorf("chain: pack positions: %w", err)
	}

	out, err := c.call(ctx, "positions", ethereum.CallMsg{To: &c.positionManager, Data: data}, true)
	if err != nil {
		return Position{}, fmt.Errorf("chain: positions(%s): %w", tokenID, err)
	}

	var raw positionOutput
	if err := c.abis.manager.UnpackIntoInterface(&raw, "positions", out); err != nil {
		return Position{}, fmt.Errorf("chain: unpack positions: %w", err)
	}

	return Position{
		TokenID:     new(big.Int).Set(tokenID),
		Operator:    raw.Operator,
		Token0:      raw.Token0,
		Token1:      raw.Token1,
		Fee:         uint32(raw.Fee.Uint64()),
		TickLower:   int(raw.TickLower.Int64()),
		TickUpper:   int(raw.TickUpper.Int64()),
		Liquidity:   raw.Liquidity,
		TokensOwed0: raw.TokensOwed0,
		TokensOwed1: raw.TokensOwed1,
	}, nil
}

// OwnerOf returns the current holder of the position NFT.
func (c *Client) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	data, err := c.abis.manager.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: pack ownerOf: %w", err)
	}

	out, err := c.call(ctx, "ownerOf", ethereum.CallMsg{To: &c.positionManager, Data: data}, true)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: ownerOf(%s): %w", tokenID, err)
	}

	values, err := c.abis.manager.Unpack("ownerOf", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: unpack ownerOf: %w", err)
	}
	owner, ok := first[common.Address](values)
	if !ok {
		return common.Address{}, errors.New("chain: unexpected ownerOf output")
	}

	return owner, nil
}

// PoolAddress resolves getPool(token0, token1, fee) on the factory.
func (c *Client) PoolAddress(ctx context.Context, token0, token1 common.Address, fee uint32) (common.Address, error) {
	data, err := c.abis.factory.Pack("getPool", token0, token1, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: pack getPool: %w", err)
	}

	out, err := c.call(ctx, "getPool", ethereum.CallMsg{To: &c.factory, Data: data}, true)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: getPool: %w", err)
	}

	values, err := c.abis.factory.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("chain: unpack getPool: %w", err)
	}
	pool, ok := first[common.Address](values)
	if !ok {
		return common.Address{}, errors.New("chain: unexpected getPool output")
	}
	if pool == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s/%s fee %d", ErrPoolNotFound, token0.Hex(), token1.Hex(), fee)
	}

	return pool, nil
}

// Slot0 reads the pool's current sqrt price and tick.
func (c *Client) Slot0(ctx context.Context, pool common.Address) (Slot0, error) {
	data, err := c.abis.pool.Pack("slot0")
	if err != nil {
		return Slot0{}, fmt.Errorf("chain: pack slot0: %w", err)
	}

	out, err := c.call(ctx, "slot0", ethereum.CallMsg{To: &pool, Data: data}, true)
	if err != nil {
		return Slot0{}, fmt.Errorf("chain: slot0(%s): %w", pool.Hex(), err)
	}

	var raw slot0Output
	if err := c.abis.pool.UnpackIntoInterface(&raw, "slot0", out); err != nil {
		return Slot0{}, fmt.Errorf("chain: unpack slot0: %w", err)
	}

	return Slot0{
		SqrtPriceX96: raw.SqrtPriceX96,
		Tick:         int(raw.Tick.Int64()),
	}, nil
}

// Token returns decimals and symbol for an ERC-20, cached per address.
func (c *Client) Token(ctx context.Context, address common.Address) (Token, error) {
	c.tokensMu.RLock()
	cached, ok := c.tokens[address]
	c.tokensMu.RUnlock()
	if ok {
		return cached, nil
	}

	decimals, err := c.decimals(ctx, address)
	if err != nil {
		return Token{}, err
	}
	symbol, err := c.symbol(ctx, address)
	if err != nil {
		return Token{}, err
	}

	token := Token{Address: address, Symbol: symbol, Decimals: decimals}

	c.tokensMu.Lock()
	c.tokens[address] = token
	c.tokensMu.Unlock()

	return token, nil
}

func (c *Client) decimals(ctx context.Context, address common.Address) (uint8, error) {
	data, err := c.abis.erc20.Pack("decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: pack decimals: %w", err)
	}

	out, err := c.call(ctx, "decimals", ethereum.CallMsg{To: &address, Data: data}, true)
	if err != nil {
		return 0, fmt.Errorf("chain: decimals(%s): %w", address.Hex(), err)
	}

	values, err := c.abis.erc20.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("chain: unpack decimals: %w", err)
	}
	decimals, ok := first[uint8](values)
	if !ok {
		return 0, errors.New("chain: unexpected decimals output")
	}

	return decimals, nil
}

func (c *Client) symbol(ctx context.Context, address common.Address) (string, error) {
	data, err := c.abis.erc20.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("chain: pack symbol: %w", err)
	}

	out, err := c.call(ctx, "symbol", ethereum.CallMsg{To: &address, Data: data}, true)
	if err != nil {
		return "", fmt.Errorf("chain: symbol(%s): %w", address.Hex(), err)
	}

	if values, err := c.abis.erc20.Unpack("symbol", out); err == nil {
		if s, ok := first[string](values); ok {
			return s, nil
		}
	}

	values, err := c.abis.erc20Bytes32.Unpack("symbol", out)
	if err != nil {
		return "", fmt.Errorf("chain: unpack symbol: %w", err)
	}
	raw, ok := first[[32]byte](values)
	if !ok {
		return "", errors.New("chain: unexpected symbol output")
	}

	return string(bytes.TrimRight(raw[:], "\x00")), nil
}

// SimulateCollect runs collect(tokenId, 0x0, max, max) as an eth_call from the given sender and
// returns the amounts a real collect would pay out. Nothing is broadcast.
func (c *Client) SimulateCollect(ctx context.Context, tokenID *big.Int, from common.Address) (Fees, error) {
	data, err := c.abis.manager.Pack("collect", collectParams{
		TokenId:    tokenID,
		Recipient:  common.Address{},
		Amount0Max: MaxUint128,
		Amount1Max: MaxUint128,
	})
	if err != nil {
		return Fees{}, fmt.Errorf("chain: pack collect: %w", err)
	}

	out, err := c.call(ctx, "collect", ethereum.CallMsg{From: from, To: &c.positionManager, Data: data}, false)
	if err != nil {
		return Fees{}, fmt.Errorf("chain: simulate collect(%s): %w", tokenID, err)
	}

	var raw collectOutput
	if err := c.abis.manager.UnpackIntoInterface(&raw, "collect", out); err != nil {
		return Fees{}, fmt.Errorf("chain: unpack collect: %w", err)
	}

	return Fees{Amount0: raw.Amount0, Amount1: raw.Amount1}, nil
}

func (c *Client) call(ctx context.Context, method string, msg ethereum.CallMsg, retry bool) ([]byte, error) {
	operation := func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		callCtx := ctx
		if c.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
		}

		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.caller.CallContract(callCtx, msg, nil)
		})
		if err != nil {
			if !retry || !isTransient(ctx, err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		out, _ := res.([]byte)
		if len(out) == 0 {
			return nil, backoff.Permanent(ErrEmptyResult)
		}
		return out, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = positive(c.cfg.Retry.MinDelay, 500*time.Millisecond)
	policy.MaxInterval = positive(c.cfg.Retry.MaxDelay, 5*time.Second)

	attempts := c.cfg.Retry.MaxAttempts
	if attempts <= 0 || !retry {
		attempts = 1
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("rpc call failed, retrying",
			zap.String("method", method),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(notify),
	)
}

// IsRevert reports whether err is an EVM revert rather than a transport failure.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if IsRevert(err) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	return true
}

func first[T any](values []interface{}) (T, bool) {
	var zero T
	if len(values) == 0 {
		return zero, false
	}
	v, ok := values[0].(T)
	return v, ok
}

func positive(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

var _ ContractCaller = (*ethclient.Client)(nil)
