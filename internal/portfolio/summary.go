package portfolio

import (
	"math"
	"time"

	"citadel/internal/indicator"
)

// Summary describes a strategy's stored history.
type Summary struct {
	Strategy string    `json:"strategy"`
	Count    int       `json:"count"`
	First    *Snapshot `json:"first,omitempty"`
	Latest   *Snapshot `json:"latest,omitempty"`

	// AverageAPR is the mean of every non-nil APR.
	AverageAPR *float64 `json:"average_apr"`
	Change     float64  `json:"change"`
	ChangePct  float64  `json:"change_pct"`
	// LastChange is the total value move since the previous snapshot.
	LastChange float64 `json:"last_change"`
	Peak       float64 `json:"peak"`
	// MaxDrawdown is the largest fall from a running peak, as a positive fraction.
	MaxDrawdown float64          `json:"max_drawdown"`
	Span        time.Duration    `json:"span"`
	Trend       indicator.Result `json:"trend"`
}

// Summarizer builds summaries and keeps indicator results between calls.
type Summarizer struct {
	calc *indicator.Calculator
}

// NewSummarizer creates a Summarizer.
func NewSummarizer() *Summarizer {
	return &Summarizer{calc: indicator.NewCalculator()}
}

// Summarize computes the summary of history, which must be in capture order.
func (s *Summarizer) Summarize(strategy string, history []Snapshot) Summary {
	summary := Summary{Strategy: strategy, Count: len(history)}
	if len(history) == 0 {
		return summary
	}

	first, latest := history[0], history[len(history)-1]
	summary.First, summary.Latest = &first, &latest
	summary.Change = latest.TotalValue - first.TotalValue
	if first.TotalValue > 0 {
		summary.ChangePct = summary.Change / first.TotalValue * 100
	}
	summary.Span = latest.Time.Sub(first.Time)
	summary.AverageAPR = AverageAPR(history)

	timestamps := make([]time.Time, len(history))
	totals := make([]float64, len(history))
	for i, snap := range history {
		timestamps[i] = snap.Time
		totals[i] = snap.TotalValue
		summary.Peak = math.Max(summary.Peak, snap.TotalValue)
	}
	summary.MaxDrawdown = maxDrawdown(totals)
	if prev := indicator.Prev(totals); !math.IsNaN(prev) {
		summary.LastChange = indicator.Last(totals) - prev
	}

	if trend, err := s.calc.Compute(strategy, indicator.NewSeries(timestamps, totals)); err == nil {
		summary.Trend = trend
	}

	return summary
}

// AverageAPR is the mean of the non-nil APR values, nil when there are none.
func AverageAPR(history []Snapshot) *float64 {
	var sum float64
	var n int
	for _, snap := range history {
		if snap.APR == nil {
			continue
		}
		sum += *snap.APR
		n++
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

func maxDrawdown(values []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return math.Abs(maxDD)
}
