package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"
)

// ErrNoAccountValue is returned when the clearinghouse state carries no account value.
var ErrNoAccountValue = errors.New("position: account value missing from clearinghouse state")

type accountSource interface {
	FetchBalance(ctx context.Context, wallet string) (ccxt.Balances, error)
	FetchFills(ctx context.Context, wallet string, since time.Time) ([]ccxt.Trade, error)
}

// Account is the perpetuals account of one wallet.
type Account struct {
	Wallet        string      `json:"wallet"`
	AccountValue  float64     `json:"account_value"`
	MarginUsed    float64     `json:"margin_used"`
	TotalNotional float64     `json:"total_notional"`
	Withdrawable  float64     `json:"withdrawable"`
	Fills         FillSummary `json:"fills"`
	// FillsKnown is false when the fill history could not be read and Fills is empty.
	FillsKnown bool      `json:"fills_known"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Fees is the cumulative USDC fee total over the lookback window.
func (a Account) Fees() float64 {
	return a.Fills.Fees
}

var (
	accountValuePaths = []string{
		"$.marginSummary.accountValue",
		"$.crossMarginSummary.accountValue",
	}
	marginUsedPaths = []string{
		"$.marginSummary.totalMarginUsed",
		"$.crossMarginSummary.totalMarginUsed",
	}
	notionalPaths = []string{
		"$.marginSummary.totalNtlPos",
		"$.crossMarginSummary.totalNtlPos",
	}
	withdrawablePaths = []string{"$.withdrawable"}
)

// Manager reads account value and fee history for wallets.
type Manager struct {
	source      accountSource
	feeLookback time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewManager creates a Manager. A zero feeLookback sums every fill the exchange returns.
func NewManager(source accountSource, feeLookback time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:      source,
		feeLookback: feeLookback,
		logger:      logger,
		now:         time.Now,
	}
}

// FetchAccount reads the account value of wallet and sums its fees. A failed fill read is logged
// and leaves the fee total at zero; a failed balance read fails the call.
func (m *Manager) FetchAccount(ctx context.Context, wallet string) (Account, error) {
	now := m.now().UTC()
	account := Account{Wallet: wallet, FetchedAt: now}

	balances, err := m.source.FetchBalance(ctx, wallet)
	if err != nil {
		return account, fmt.Errorf("position: fetch balance: %w", err)
	}

	info := map[string]interface{}(balances.Info)
	value, ok := lookup(info, accountValuePaths)
	if !ok && balances.Total != nil {
		if total, found := balances.Total[FeeToken]; found && total != nil {
			value, ok = *total, true
		}
	}
	if !ok {
		return account, ErrNoAccountValue
	}
	account.AccountValue = value
	account.MarginUsed, _ = lookup(info, marginUsedPaths)
	account.TotalNotional, _ = lookup(info, notionalPaths)
	account.Withdrawable, _ = lookup(info, withdrawablePaths)

	var since time.Time
	if m.feeLookback > 0 {
		since = now.Add(-m.feeLookback)
	}
	fills, err := m.source.FetchFills(ctx, wallet, since)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return account, ctxErr
		}
		m.logger.Warn("fill history unavailable, reporting zero fees",
			zap.String("wallet", wallet),
			zap.Error(err),
		)
		return account, nil
	}

	account.Fills = Summarize(fills)
	account.FillsKnown = true
	return account, nil
}

// lookup returns the first path that resolves to a number.
func lookup(doc map[string]interface{}, paths []string) (float64, bool) {
	if doc == nil {
		return 0, false
	}
	for _, path := range paths {
		raw, err := jsonpath.Get(path, doc)
		if err != nil || raw == nil {
			continue
		}
		if v, ok := numeric(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func parseNumeric(value interface{}) float64 {
	v, _ := numeric(value)
	return v
}

func numeric(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case *float64:
		if v != nil {
			return *v, true
		}
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint32:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case fmt.Stringer:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
