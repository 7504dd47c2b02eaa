package position

import (
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// FeeToken is the quote asset perpetual fees are charged in.
const FeeToken = "USDC"

// FillSummary aggregates a window of fills.
type FillSummary struct {
	Count       int                `json:"count"`
	Fees        float64            `json:"fees"`
	FeesByToken map[string]float64 `json:"fees_by_token,omitempty"`
	ClosedPnL   float64            `json:"closed_pnl"`
	Volume      float64            `json:"volume"`
	First       time.Time          `json:"first,omitempty"`
	Last        time.Time          `json:"last,omitempty"`
}

// Summarize folds raw fills into a FillSummary. Everything is read from the raw fill, where
// rebates show up as negative fees.
func Summarize(trades []ccxt.Trade) FillSummary {
	summary := FillSummary{FeesByToken: make(map[string]float64)}

	for _, trade := range trades {
		info := trade.Info

		fee := parseNumeric(info["fee"])
		token := strings.ToUpper(strings.TrimSpace(stringValue(info["feeToken"])))
		if token == "" {
			token = FeeToken
		}
		summary.FeesByToken[token] += fee

		summary.ClosedPnL += parseNumeric(info["closedPnl"])

		summary.Volume += parseNumeric(info["px"]) * parseNumeric(info["sz"])

		if ts := fillTime(info); !ts.IsZero() {
			if summary.First.IsZero() || ts.Before(summary.First) {
				summary.First = ts
			}
			if ts.After(summary.Last) {
				summary.Last = ts
			}
		}
		summary.Count++
	}

	summary.Fees = summary.FeesByToken[FeeToken]
	return summary
}

func fillTime(info map[string]interface{}) time.Time {
	if ms := parseNumeric(info["time"]); ms > 0 {
		return time.UnixMilli(int64(ms)).UTC()
	}
	return time.Time{}
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
