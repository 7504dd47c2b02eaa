package exchange

import (
	"context"
	"errors"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"citadel/internal/config"
)

// API is the part of the ccxt Hyperliquid exchange the tracker reads from.
type API interface {
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	FetchMyTrades(options ...ccxt.FetchMyTradesOptions) ([]ccxt.Trade, error)
}

var _ API = (*ccxt.Hyperliquid)(nil)

// Client reads Hyperliquid account state with retries.
type Client struct {
	api    API
	retry  config.RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewClient builds a read-only Hyperliquid client. No keys are needed: every request names the
// wallet it reads.
func NewClient(cfg config.HyperliquidConfig, logger *zap.Logger) *Client {
	ex := ccxt.NewHyperliquid(map[string]interface{}{
		"enableRateLimit": true,
	})
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}
	return NewClientWithAPI(ex, cfg.Retry, logger)
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api API, retry config.RetryConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:    api,
		retry:  retry,
		logger: logger.Named("hyperliquid"),
		sleep:  sleepContext,
	}
}

// FetchBalance returns the perpetuals balance of wallet. Balances.Info carries the raw
// clearinghouseState document.
func (c *Client) FetchBalance(ctx context.Context, wallet string) (ccxt.Balances, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return ccxt.Balances{}, ErrEmptyWallet
	}
	return callWithRetry(ctx, c, "fetch_balance", func() (ccxt.Balances, error) {
		return c.api.FetchBalance(map[string]interface{}{"user": wallet})
	})
}

// FetchFills returns the fills of wallet since the given time. A zero since asks for the most
// recent fills the exchange keeps.
func (c *Client) FetchFills(ctx context.Context, wallet string, since time.Time) ([]ccxt.Trade, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, ErrEmptyWallet
	}

	options := []ccxt.FetchMyTradesOptions{
		ccxt.WithFetchMyTradesParams(map[string]interface{}{"user": wallet}),
	}
	if !since.IsZero() {
		options = append(options, ccxt.WithFetchMyTradesSince(since.UnixMilli()))
	}

	return callWithRetry(ctx, c, "fetch_fills", func() ([]ccxt.Trade, error) {
		return c.api.FetchMyTrades(options...)
	})
}

func callWithRetry[T any](ctx context.Context, c *Client, operation string, fn func() (T, error)) (T, error) {
	var zero T

	maxAttempts := c.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := c.retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		start := time.Now()
		result, err := fn()
		latency := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("call succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", latency),
				)
			}
			return result, nil
		}

		normalized, retry := classifyError(err)
		if errors.Is(normalized, ErrMaintenance) {
			c.logger.Warn("exchange under maintenance",
				zap.String("operation", operation),
				zap.Error(normalized),
			)
			return zero, normalized
		}

		if !retry || attempt >= maxAttempts {
			c.logger.Error("call failed",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", latency),
				zap.Error(normalized),
			)
			return zero, normalized
		}

		wait := min(delay, maxDelay)
		c.logger.Warn("call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalized),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return zero, err
		}
		delay = min(delay*2, maxDelay)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
