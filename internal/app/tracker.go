package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"citadel/internal/config"
	"citadel/internal/daily"
	"citadel/internal/insight"
	"citadel/internal/liquidity"
	"citadel/internal/metrics"
	"citadel/internal/monitor"
	"citadel/internal/portfolio"
	"citadel/internal/position"
	"citadel/internal/store"
)

const (
	sourceLiquidity   = "liquidity"
	sourceHyperliquid = "hyperliquid"
	sourceHistory     = "history"
	sourceSink        = "influx"
	sourceInsight     = "openai"
)

type positionValuer interface {
	Value(ctx context.Context, tokenID uint64) (liquidity.Valuation, error)
}

type accountReader interface {
	FetchAccount(ctx context.Context, wallet string) (position.Account, error)
}

type dailyUpdater interface {
	Update(ctx context.Context, strategy string, ts time.Time, equity float64) (daily.Status, error)
}

type eventRecorder interface {
	RecordCycle(ctx context.Context, payload monitor.CyclePayload)
	RecordSnapshot(ctx context.Context, cycleID string, snap portfolio.Snapshot, inRange bool)
	RecordFeeFallback(ctx context.Context, cycleID, strategy, source string)
	RecordError(ctx context.Context, msg string, err error, fields map[string]interface{})
}

type reportSink interface {
	Write(ctx context.Context, report portfolio.Report) error
}

type reportPublisher interface {
	Publish(report portfolio.Report)
}

type insightRefresher interface {
	Refresh(ctx context.Context, in insight.Input) (bool, error)
}

// trackerDeps wires a tracker. Everything below History is optional.
type trackerDeps struct {
	Strategies []config.StrategyConfig
	Valuer     positionValuer
	Accounts   accountReader
	History    store.History

	Daily     dailyUpdater
	Monitor   eventRecorder
	Metrics   *metrics.Registry
	Sink      reportSink
	Publisher reportPublisher
	Insights  insightRefresher
}

// tracker runs one polling cycle over every strategy.
type tracker struct {
	trackerDeps
	summarizer *portfolio.Summarizer
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	latest map[string]portfolio.Report
}

// CycleResult describes one cycle.
type CycleResult struct {
	ID       string
	Reports  []portfolio.Report
	Failed   int
	Duration time.Duration
}

func newTracker(deps trackerDeps, logger *zap.Logger) *tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tracker{
		trackerDeps: deps,
		summarizer:  portfolio.NewSummarizer(),
		logger:      logger,
		now:         time.Now,
		latest:      make(map[string]portfolio.Report),
	}
}

// Latest returns the report of strategy captured by the most recent successful cycle.
func (t *tracker) Latest(strategy string) (portfolio.Report, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	report, ok := t.latest[strategy]
	return report, ok
}

// Tick captures a snapshot of every strategy. A failing strategy does not stop the others; the
// returned error combines every failure.
func (t *tracker) Tick(ctx context.Context) (CycleResult, error) {
	start := t.now()
	result := CycleResult{ID: uuid.NewString()}
	logger := t.logger.With(zap.String("cycle_id", result.ID))

	var errs error
	for _, strategy := range t.Strategies {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		report, err := t.capture(ctx, result.ID, strategy, logger)
		if err != nil {
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("strategy %s: %w", strategy.Name, err))
			logger.Error("snapshot failed", zap.String("strategy", strategy.Name), zap.Error(err))
			continue
		}
		result.Reports = append(result.Reports, report)
	}

	result.Duration = t.now().Sub(start)
	if t.Metrics != nil {
		t.Metrics.ObserveCycle(len(t.Strategies), result.Failed, result.Duration)
	}
	if t.Monitor != nil {
		t.Monitor.RecordCycle(ctx, monitor.CyclePayload{
			CycleID:    result.ID,
			Strategies: len(t.Strategies),
			Failed:     result.Failed,
			Duration:   result.Duration,
		})
	}

	logger.Info("cycle finished",
		zap.Int("stored", len(result.Reports)),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	return result, errs
}

func (t *tracker) capture(ctx context.Context, cycleID string, strategy config.StrategyConfig, logger *zap.Logger) (portfolio.Report, error) {
	logger = logger.With(zap.String("strategy", strategy.Name))
	at := t.now()

	var (
		valuation liquidity.Valuation
		account   position.Account
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := t.Valuer.Value(gctx, strategy.PositionID)
		if err != nil {
			t.upstreamError(ctx, strategy.Name, sourceLiquidity, err)
			return fmt.Errorf("value position %d: %w", strategy.PositionID, err)
		}
		valuation = v
		return nil
	})
	g.Go(func() error {
		a, err := t.Accounts.FetchAccount(gctx, strategy.Wallet)
		if err != nil {
			t.upstreamError(ctx, strategy.Name, sourceHyperliquid, err)
			return fmt.Errorf("fetch account %s: %w", strategy.Wallet, err)
		}
		account = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return portfolio.Report{}, err
	}

	history, err := t.History.Load(ctx, strategy.Name)
	if err != nil {
		t.upstreamError(ctx, strategy.Name, sourceHistory, err)
		return portfolio.Report{}, err
	}

	report := portfolio.Build(strategy.Name, at, valuation, account)
	report.Snapshot = portfolio.Next(history, report.Snapshot)
	if err := t.History.Append(ctx, report.Snapshot); err != nil {
		t.upstreamError(ctx, strategy.Name, sourceHistory, err)
		return portfolio.Report{}, err
	}
	history = append(history, report.Snapshot)

	t.mu.Lock()
	t.latest[strategy.Name] = report
	t.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("lp_value", report.Snapshot.LPValue),
		zap.Float64("hl_value", report.Snapshot.HLValue),
		zap.Float64("total_value", report.Snapshot.TotalValue),
		zap.Bool("in_range", valuation.InRange),
	}
	if report.Snapshot.APR != nil {
		fields = append(fields, zap.Float64("apr", *report.Snapshot.APR))
	}
	logger.Info("snapshot stored", fields...)

	t.fanOut(ctx, cycleID, report, history, logger)
	return report, nil
}

// fanOut hands a stored report to the optional consumers. Their failures are logged only.
func (t *tracker) fanOut(ctx context.Context, cycleID string, report portfolio.Report, history []portfolio.Snapshot, logger *zap.Logger) {
	snap := report.Snapshot
	inRange := report.Liquidity.InRange

	if t.Metrics != nil {
		t.Metrics.ObserveSnapshot(snap, inRange)
	}
	if t.Monitor != nil {
		t.Monitor.RecordSnapshot(ctx, cycleID, snap, inRange)
	}
	if !report.Liquidity.FeesEstimated {
		t.feeFallback(ctx, cycleID, snap.Strategy, sourceLiquidity)
	}
	if !report.Account.FillsKnown {
		t.feeFallback(ctx, cycleID, snap.Strategy, sourceHyperliquid)
	}

	if t.Daily != nil {
		if _, err := t.Daily.Update(ctx, snap.Strategy, snap.Time, snap.TotalValue); err != nil {
			logger.Warn("update daily status failed", zap.Error(err))
		}
	}
	if t.Sink != nil {
		if err := t.Sink.Write(ctx, report); err != nil {
			t.upstreamError(ctx, snap.Strategy, sourceSink, err)
		}
	}
	if t.Publisher != nil {
		t.Publisher.Publish(report)
	}
	if t.Insights != nil {
		in := insight.Input{
			Strategy: snap.Strategy,
			Summary:  t.summarizer.Summarize(snap.Strategy, history),
			History:  history,
			Latest:   report,
		}
		if _, err := t.Insights.Refresh(ctx, in); err != nil {
			t.upstreamError(ctx, snap.Strategy, sourceInsight, err)
		}
	}
}

func (t *tracker) feeFallback(ctx context.Context, cycleID, strategy, source string) {
	t.logger.Warn("fees unavailable, reported as zero",
		zap.String("cycle_id", cycleID),
		zap.String("strategy", strategy),
		zap.String("source", source),
	)
	if t.Metrics != nil {
		t.Metrics.FeeFallback(strategy, source)
	}
	if t.Monitor != nil {
		t.Monitor.RecordFeeFallback(ctx, cycleID, strategy, source)
	}
}

func (t *tracker) upstreamError(ctx context.Context, strategy, source string, err error) {
	if t.Metrics != nil {
		t.Metrics.UpstreamError(strategy, source)
	}
	if t.Monitor != nil {
		t.Monitor.RecordError(ctx, source+" request failed", err, map[string]interface{}{"strategy": strategy, "source": source})
	}
}
