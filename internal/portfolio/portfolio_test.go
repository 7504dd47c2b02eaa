package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citadel/internal/liquidity"
	"citadel/internal/position"
)

var t0 = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func snap(offset time.Duration, total float64) Snapshot {
	return Snapshot{Time: t0.Add(offset), Strategy: "citadel", TotalValue: total}
}

func TestAnnualize_NilWithoutPrevious(t *testing.T) {
	assert.Nil(t, Annualize(nil, snap(0, 100)))

	first := Next(nil, snap(0, 100))
	assert.Nil(t, first.APR)
}

func TestAnnualize_NilForNonPositivePrevious(t *testing.T) {
	prev := snap(0, 0)
	assert.Nil(t, Annualize(&prev, snap(time.Minute, 100)))

	prev = snap(0, -5)
	assert.Nil(t, Annualize(&prev, snap(time.Minute, 100)))
}

func TestAnnualize_NilWhenNoTimePassed(t *testing.T) {
	prev := snap(time.Minute, 100)
	assert.Nil(t, Annualize(&prev, snap(time.Minute, 101)))
	assert.Nil(t, Annualize(&prev, snap(0, 101)))
}

func TestAnnualize_FiniteWithTwoSnapshots(t *testing.T) {
	history := []Snapshot{snap(0, 10000)}
	cur := Next(history, snap(time.Minute, 10001))

	require.NotNil(t, cur.APR)
	assert.False(t, math.IsInf(*cur.APR, 0))
	// one minute step: 1e-4 * 525600 minutes * 100
	assert.InDelta(t, 5256.0, *cur.APR, 1e-6)
}

func TestAnnualize_UsesElapsedTime(t *testing.T) {
	prev := snap(0, 1000)
	apr := Annualize(&prev, snap(Year/2, 1100))
	require.NotNil(t, apr)
	assert.InDelta(t, 20.0, *apr, 1e-9)

	loss := Annualize(&prev, snap(Year, 900))
	require.NotNil(t, loss)
	assert.InDelta(t, -10.0, *loss, 1e-9)
}

func TestBuild(t *testing.T) {
	val := liquidity.Valuation{PositionUSD: 2500, FeesUSD: 12.5}
	account := position.Account{AccountValue: 1000, Fills: position.FillSummary{Fees: 3.25}}

	report := Build("citadel", t0, val, account)

	s := report.Snapshot
	assert.Equal(t, "citadel", s.Strategy)
	assert.Equal(t, 2512.5, s.LPValue)
	assert.Equal(t, 12.5, s.LPFees)
	assert.Equal(t, 1000.0, s.HLValue)
	assert.Equal(t, 3.25, s.HLFees)
	assert.Equal(t, 3512.5, s.TotalValue)
	assert.Nil(t, s.APR)
}

func TestSummarize(t *testing.T) {
	history := []Snapshot{snap(0, 100)}
	for i, total := range []float64{110, 99, 120} {
		history = append(history, Next(history, snap(time.Duration(i+1)*time.Hour, total)))
	}

	summary := NewSummarizer().Summarize("citadel", history)

	assert.Equal(t, 4, summary.Count)
	assert.Equal(t, 100.0, summary.First.TotalValue)
	assert.Equal(t, 120.0, summary.Latest.TotalValue)
	assert.Equal(t, 20.0, summary.Change)
	assert.InDelta(t, 20.0, summary.ChangePct, 1e-9)
	assert.Equal(t, 120.0, summary.Peak)
	assert.InDelta(t, 0.1, summary.MaxDrawdown, 1e-9)
	assert.Equal(t, 3*time.Hour, summary.Span)
	assert.Equal(t, 21.0, summary.LastChange)
	assert.Equal(t, 4, summary.Trend.Samples)

	require.NotNil(t, summary.AverageAPR)
	var sum float64
	for _, s := range history[1:] {
		sum += *s.APR
	}
	assert.InDelta(t, sum/3, *summary.AverageAPR, 1e-6)
}

func TestSummarize_Empty(t *testing.T) {
	summary := NewSummarizer().Summarize("citadel", nil)
	assert.Zero(t, summary.Count)
	assert.Zero(t, summary.LastChange)
	assert.Nil(t, summary.Latest)
	assert.Nil(t, summary.AverageAPR)
}
