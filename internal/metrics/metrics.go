// Package metrics exposes tracker state to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"citadel/internal/portfolio"
)

const namespace = "citadel"

// Registry holds every collector of the tracker on a private registry.
type Registry struct {
	registry *prometheus.Registry

	LPValue    *prometheus.GaugeVec
	LPFees     *prometheus.GaugeVec
	HLValue    *prometheus.GaugeVec
	HLFees     *prometheus.GaugeVec
	TotalValue *prometheus.GaugeVec
	APR        *prometheus.GaugeVec
	InRange    *prometheus.GaugeVec

	Cycles         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	UpstreamErrors *prometheus.CounterVec
	FeeFallbacks   *prometheus.CounterVec
	LastSnapshot   *prometheus.GaugeVec
}

// NewRegistry creates and registers the tracker collectors, plus the Go and process collectors.
func NewRegistry() *Registry {
	strategy := []string{"strategy"}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, strategy)
	}

	r := &Registry{
		registry: prometheus.NewRegistry(),

		LPValue:    gauge("lp_value_usd", "LP position value including unclaimed fees"),
		LPFees:     gauge("lp_fees_usd", "Unclaimed LP fees"),
		HLValue:    gauge("hl_value_usd", "Hyperliquid account value"),
		HLFees:     gauge("hl_fees_usd", "Hyperliquid trading fees over the lookback window"),
		TotalValue: gauge("total_value_usd", "LP plus Hyperliquid value"),
		APR:        gauge("apr_percent", "Annualized rate of change against the previous snapshot"),
		InRange:    gauge("lp_in_range", "1 when the LP position's range contains the pool tick"),
		LastSnapshot: gauge("last_snapshot_timestamp_seconds",
			"Unix time of the most recent stored snapshot"),

		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Polling cycles by outcome",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a polling cycle",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed reads by strategy and source",
		}, []string{"strategy", "source"}),
		FeeFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fee_fallbacks_total",
			Help:      "Fee readings reported as zero because the source failed",
		}, []string{"strategy", "source"}),
	}

	r.registry.MustRegister(
		r.LPValue, r.LPFees, r.HLValue, r.HLFees, r.TotalValue, r.APR, r.InRange, r.LastSnapshot,
		r.Cycles, r.CycleDuration, r.UpstreamErrors, r.FeeFallbacks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// ObserveSnapshot updates the per-strategy gauges.
func (r *Registry) ObserveSnapshot(snap portfolio.Snapshot, inRange bool) {
	s := snap.Strategy
	r.LPValue.WithLabelValues(s).Set(snap.LPValue)
	r.LPFees.WithLabelValues(s).Set(snap.LPFees)
	r.HLValue.WithLabelValues(s).Set(snap.HLValue)
	r.HLFees.WithLabelValues(s).Set(snap.HLFees)
	r.TotalValue.WithLabelValues(s).Set(snap.TotalValue)
	if snap.APR != nil {
		r.APR.WithLabelValues(s).Set(*snap.APR)
	}
	if inRange {
		r.InRange.WithLabelValues(s).Set(1)
	} else {
		r.InRange.WithLabelValues(s).Set(0)
	}
	r.LastSnapshot.WithLabelValues(s).Set(float64(snap.Time.Unix()))
}

// ObserveCycle counts a finished cycle over total strategies, failed of which did not store a
// snapshot.
func (r *Registry) ObserveCycle(total, failed int, elapsed time.Duration) {
	result := "ok"
	switch {
	case failed > 0 && failed >= total:
		result = "failed"
	case failed > 0:
		result = "partial"
	}
	r.Cycles.WithLabelValues(result).Inc()
	r.CycleDuration.Observe(elapsed.Seconds())
}

// UpstreamError counts a failed call to source, e.g. "liquidity" or "hyperliquid".
func (r *Registry) UpstreamError(strategy, source string) {
	r.UpstreamErrors.WithLabelValues(strategy, source).Inc()
}

// FeeFallback counts a zero fee reading from source ("liquidity", "hyperliquid").
func (r *Registry) FeeFallback(strategy, source string) {
	r.FeeFallbacks.WithLabelValues(strategy, source).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
