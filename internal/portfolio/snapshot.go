// Package portfolio combines the LP leg and the perpetuals leg into snapshots.
package portfolio

import (
	"math"
	"time"

	"citadel/internal/liquidity"
	"citadel/internal/position"
)

// Year is the annualization horizon.
const Year = 365 * 24 * time.Hour

// Snapshot is one row of a strategy's history. LPValue includes unclaimed fees; HLFees is
// informational and already reflected in HLValue.
type Snapshot struct {
	Time       time.Time `json:"time"`
	Strategy   string    `json:"strategy"`
	LPValue    float64   `json:"lp_value"`
	LPFees     float64   `json:"lp_fees"`
	HLValue    float64   `json:"hl_value"`
	HLFees     float64   `json:"hl_fees"`
	TotalValue float64   `json:"total_value"`
	// APR is the annualized rate of change against the previous snapshot, in percent.
	APR *float64 `json:"apr"`
}

// Report is a snapshot together with the readings it was built from.
type Report struct {
	Snapshot  Snapshot            `json:"snapshot"`
	Liquidity liquidity.Valuation `json:"liquidity"`
	Account   position.Account    `json:"account"`
}

// Build assembles the snapshot for one cycle without APR.
func Build(strategy string, at time.Time, val liquidity.Valuation, account position.Account) Report {
	lp := val.TotalUSD()
	return Report{
		Snapshot: Snapshot{
			Time:       at.UTC(),
			Strategy:   strategy,
			LPValue:    lp,
			LPFees:     val.FeesUSD,
			HLValue:    account.AccountValue,
			HLFees:     account.Fees(),
			TotalValue: lp + account.AccountValue,
		},
		Liquidity: val,
		Account:   account,
	}
}

// Annualize projects the change from prev to cur over a year. It is nil without a previous
// snapshot, when the previous total is not positive or when no time has passed.
func Annualize(prev *Snapshot, cur Snapshot) *float64 {
	if prev == nil || prev.TotalValue <= 0 {
		return nil
	}
	elapsed := cur.Time.Sub(prev.Time)
	if elapsed <= 0 {
		return nil
	}

	change := (cur.TotalValue - prev.TotalValue) / prev.TotalValue
	apr := change * (float64(Year) / float64(elapsed)) * 100
	if math.IsNaN(apr) || math.IsInf(apr, 0) {
		return nil
	}
	return &apr
}

// Next attaches the APR of cur relative to the last snapshot of history.
func Next(history []Snapshot, cur Snapshot) Snapshot {
	var prev *Snapshot
	if len(history) > 0 {
		prev = &history[len(history)-1]
	}
	cur.APR = Annualize(prev, cur)
	return cur
}
