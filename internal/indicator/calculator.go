package indicator

import (
	"errors"
	"fmt"
	"math"
	"sync"

	talib "github.com/markcheno/go-talib"
)

// ErrEmptySeries is returned when there is nothing to compute on.
var ErrEmptySeries = errors.New("indicator: empty series")

// Periods of the moving averages, in samples.
const (
	FastPeriod = 12
	SlowPeriod = 60
	RSIPeriod  = 14
)

// Result holds the latest indicator values of a series. Values that need more samples than
// the series has are nil.
type Result struct {
	Samples int      `json:"samples"`
	Last    float64  `json:"last"`
	EMA     *float64 `json:"ema,omitempty"`
	SMA     *float64 `json:"sma,omitempty"`
	RSI     *float64 `json:"rsi,omitempty"`
	// Trend is +1 when the fast EMA is above the slow SMA, -1 below, 0 when unknown.
	Trend int `json:"trend"`
}

type cacheEntry struct {
	key    string
	result Result
}

// Calculator computes indicators and caches the result per series name.
type Calculator struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator creates a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[string]cacheEntry),
	}
}

// Compute returns the indicators of series. name identifies the series in the cache; a result is
// reused until the series grows or its last timestamp moves.
func (c *Calculator) Compute(name string, series Series) (Result, error) {
	if series.Len() == 0 {
		return Result{}, ErrEmptySeries
	}

	key := fmt.Sprintf("%d:%d", series.Len(), series.Timestamps[len(series.Timestamps)-1].UnixNano())

	c.mu.Lock()
	if entry, ok := c.cache[name]; ok && entry.key == key {
		c.mu.Unlock()
		return entry.result, nil
	}
	c.mu.Unlock()

	result := calculate(series.Values)

	c.mu.Lock()
	c.cache[name] = cacheEntry{key: key, result: result}
	c.mu.Unlock()

	return result, nil
}

func calculate(values []float64) Result {
	result := Result{
		Samples: len(values),
		Last:    Last(values),
	}

	// talib indexes past the end when the series is shorter than the period
	if len(values) >= FastPeriod {
		result.EMA = finite(Last(talib.Ema(values, FastPeriod)))
	}
	if len(values) >= SlowPeriod {
		result.SMA = finite(Last(talib.Sma(values, SlowPeriod)))
	}
	if len(values) > RSIPeriod {
		result.RSI = finite(Last(talib.Rsi(values, RSIPeriod)))
	}

	if result.EMA != nil && result.SMA != nil {
		switch {
		case *result.EMA > *result.SMA:
			result.Trend = 1
		case *result.EMA < *result.SMA:
			result.Trend = -1
		}
	}

	return result
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
