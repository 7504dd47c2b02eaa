package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"citadel/internal/chain"
	"citadel/internal/config"
	"citadel/internal/daily"
	"citadel/internal/dashboard"
	"citadel/internal/exchange"
	"citadel/internal/insight"
	"citadel/internal/liquidity"
	"citadel/internal/metrics"
	"citadel/internal/monitor"
	"citadel/internal/portfolio"
	"citadel/internal/position"
	"citadel/internal/sink"
	"citadel/internal/store"
)

// App aggregates the core dependencies and drives the tracker lifecycle.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New creates an App.
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

type components struct {
	tracker   *tracker
	history   store.History
	monitor   *monitor.Service
	daily     *daily.Tracker
	metrics   *metrics.Registry
	insights  *insight.Client
	dashboard *dashboard.Server
	closers   []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// build wires every component from the configuration.
func (a *App) build(ctx context.Context) (*components, error) {
	c := &components{}

	chainClient, err := chain.Dial(ctx, a.cfg.Chain, a.logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, chainClient.Close)

	hl := exchange.NewClient(a.cfg.Hyperliquid, a.logger)

	c.history, err = store.NewHistory(a.cfg.Storage, a.store)
	if err != nil {
		c.close()
		return nil, err
	}

	c.monitor, err = monitor.NewService(a.store, a.logger)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init monitor: %w", err)
	}

	c.daily, err = daily.NewTracker(a.store, a.logger)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("init daily tracker: %w", err)
	}

	c.metrics = metrics.NewRegistry()

	deps := trackerDeps{
		Strategies: a.cfg.Strategies,
		Valuer:     liquidity.NewValuer(chainClient, a.cfg.Chain.VolatileSymbols, a.logger),
		Accounts:   position.NewManager(hl, a.cfg.Hyperliquid.FeeLookback, a.logger),
		History:    c.history,
		Daily:      c.daily,
		Monitor:    c.monitor,
		Metrics:    c.metrics,
	}

	if a.cfg.Influx.Enabled {
		influx := sink.NewInflux(a.cfg.Influx, a.logger)
		c.closers = append(c.closers, influx.Close)
		deps.Sink = influx
	}

	if a.cfg.OpenAI.Enabled() {
		c.insights, err = insight.NewClient(a.cfg.OpenAI, a.cfg.Scheduler.InsightInterval, a.logger)
		if err != nil {
			c.close()
			return nil, err
		}
		deps.Insights = c.insights
	}

	names := make([]string, len(a.cfg.Strategies))
	for i, s := range a.cfg.Strategies {
		names[i] = s.Name
	}

	c.tracker = newTracker(deps, a.logger)

	dashDeps := dashboard.Deps{
		Strategies: names,
		History:    c.history,
		Reports:    c.tracker,
		Daily:      c.daily,
		Metrics:    c.metrics.Handler(),
		Events:     c.monitor.Handler(),
	}
	if c.insights != nil {
		dashDeps.Insights = c.insights
	}
	c.dashboard = dashboard.NewServer(a.cfg.Dashboard, dashDeps, a.logger)
	c.tracker.Publisher = c.dashboard.Hub()

	return c, nil
}

// Run serves the dashboard and captures a snapshot of every strategy on each loop interval until
// ctx is done. The first cycle runs immediately.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("tracker initialized",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("strategies", len(a.cfg.Strategies)),
		zap.String("storage", a.cfg.Storage.Driver),
	)

	c, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.dashboard.Start(ctx); err != nil {
		return err
	}

	loopInterval := a.cfg.Scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = time.Minute
	}

	if _, err = c.tracker.Tick(ctx); err != nil {
		a.logger.Error("first cycle failed", zap.Error(err))
	}

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("tracker stopped: %w", err)
			}
			a.logger.Info("shutdown signal received, stopping")
			return nil
		case <-ticker.C:
			if _, err = c.tracker.Tick(ctx); err != nil {
				a.logger.Error("cycle failed", zap.Error(err))
			}
		}
	}
}

// Once runs a single cycle without the dashboard.
func (a *App) Once(ctx context.Context) (CycleResult, error) {
	c, err := a.build(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	defer c.close()

	return c.tracker.Tick(ctx)
}

// History returns the stored snapshots of strategy.
func (a *App) History(ctx context.Context, strategy string) ([]portfolio.Snapshot, error) {
	s, ok := a.cfg.Strategy(strategy)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
	history, err := store.NewHistory(a.cfg.Storage, a.store)
	if err != nil {
		return nil, err
	}
	return history.Load(ctx, s.Name)
}
