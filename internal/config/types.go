package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/multierr"
)

// Config aggregates every setting the tracker needs at runtime.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Chain       ChainConfig       `mapstructure:"chain"`
	Hyperliquid HyperliquidConfig `mapstructure:"hyperliquid"`
	Strategies  []StrategyConfig  `mapstructure:"strategies"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Influx      InfluxConfig      `mapstructure:"influx"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
}

// AppConfig controls application level parameters.
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ChainConfig describes the EVM chain hosting the liquidity positions.
type ChainConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	PositionManager string        `mapstructure:"position_manager"`
	Factory         string        `mapstructure:"factory"`
	VolatileSymbols []string      `mapstructure:"volatile_symbols"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	Retry           RetryConfig   `mapstructure:"retry"`
	Breaker         BreakerConfig `mapstructure:"breaker"`
}

// HyperliquidConfig describes the perpetuals account source.
type HyperliquidConfig struct {
	UseSandbox  bool          `mapstructure:"use_sandbox"`
	FeeLookback time.Duration `mapstructure:"fee_lookback"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

// StrategyConfig pairs one LP position with one Hyperliquid account.
type StrategyConfig struct {
	Name       string `mapstructure:"name"`
	PositionID uint64 `mapstructure:"position_id"`
	Wallet     string `mapstructure:"wallet"`
}

// RetryConfig unifies retry behaviour for upstream calls.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BreakerConfig tunes the circuit breaker around RPC calls.
type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects where snapshot history lives.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
}

// DatabaseConfig manages the SQLite connection.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// InfluxConfig configures the optional InfluxDB sink.
type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

// OpenAIConfig configures the optional portfolio commentary.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether commentary generation is configured.
func (c OpenAIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// DashboardConfig controls the web page.
type DashboardConfig struct {
	Addr            string        `mapstructure:"addr"`
	Title           string        `mapstructure:"title"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	HistoryLimit    int           `mapstructure:"history_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig controls the polling rhythm.
type SchedulerConfig struct {
	LoopInterval    time.Duration `mapstructure:"loop_interval"`
	InsightInterval time.Duration `mapstructure:"insight_interval"`
}

// Strategy returns the strategy with the given name.
func (c *Config) Strategy(name string) (StrategyConfig, bool) {
	for _, s := range c.Strategies {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return StrategyConfig{}, false
}

// Validate performs basic sanity checks on the configuration.
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment must not be empty"))
	}
	if c.Chain.RPCURL == "" {
		err = multierr.Append(err, errors.New("chain.rpc_url must not be empty"))
	}
	if !isHexAddress(c.Chain.PositionManager) {
		err = multierr.Append(err, fmt.Errorf("chain.position_manager %q is not an address", c.Chain.PositionManager))
	}
	if !isHexAddress(c.Chain.Factory) {
		err = multierr.Append(err, fmt.Errorf("chain.factory %q is not an address", c.Chain.Factory))
	}
	if len(c.Chain.VolatileSymbols) == 0 {
		err = multierr.Append(err, errors.New("chain.volatile_symbols needs at least one symbol"))
	}
	if c.Chain.CallTimeout <= 0 {
		err = multierr.Append(err, errors.New("chain.call_timeout must be positive"))
	}
	if c.Chain.RateLimit <= 0 || c.Chain.RateBurst <= 0 {
		err = multierr.Append(err, errors.New("chain.rate_limit and chain.rate_burst must be positive"))
	}
	err = multierr.Append(err, c.Chain.Retry.validate("chain.retry"))
	if c.Chain.Breaker.MaxFailures == 0 {
		err = multierr.Append(err, errors.New("chain.breaker.max_failures must be positive"))
	}
	err = multierr.Append(err, c.Hyperliquid.Retry.validate("hyperliquid.retry"))
	if c.Hyperliquid.FeeLookback < 0 {
		err = multierr.Append(err, errors.New("hyperliquid.fee_lookback must not be negative"))
	}

	if len(c.Strategies) == 0 {
		err = multierr.Append(err, errors.New("strategies needs at least one entry"))
	}
	seen := make(map[string]struct{}, len(c.Strategies))
	for i, s := range c.Strategies {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			err = multierr.Append(err, fmt.Errorf("strategies[%d].name must not be empty", i))
		} else if strings.ContainsAny(name, `/\`) {
			err = multierr.Append(err, fmt.Errorf("strategies[%d].name %q must not contain path separators", i, name))
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			err = multierr.Append(err, fmt.Errorf("strategies[%d].name %q is duplicated", i, name))
		}
		seen[strings.ToLower(name)] = struct{}{}
		if s.PositionID == 0 {
			err = multierr.Append(err, fmt.Errorf("strategies[%d].position_id must be positive", i))
		}
		if !isHexAddress(s.Wallet) {
			err = multierr.Append(err, fmt.Errorf("strategies[%d].wallet %q is not an address", i, s.Wallet))
		}
	}

	switch c.Storage.Driver {
	case "csv":
		if c.Storage.Dir == "" {
			err = multierr.Append(err, errors.New("storage.dir must not be empty for the csv driver"))
		}
	case "sqlite":
	default:
		err = multierr.Append(err, fmt.Errorf("storage.driver %q must be csv or sqlite", c.Storage.Driver))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path must not be empty"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns must be positive"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns must not be negative"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime must not be negative"))
	}

	if c.Influx.Enabled {
		if c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			err = multierr.Append(err, errors.New("influx.url, influx.org and influx.bucket are required when influx is enabled"))
		}
	}
	if c.OpenAI.Enabled() {
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model must not be empty"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout must be positive"))
		}
	}

	if c.Dashboard.Addr == "" {
		err = multierr.Append(err, errors.New("dashboard.addr must not be empty"))
	}
	if c.Dashboard.RefreshInterval < time.Second {
		err = multierr.Append(err, errors.New("dashboard.refresh_interval must be at least 1s"))
	}
	if c.Dashboard.HistoryLimit < 0 {
		err = multierr.Append(err, errors.New("dashboard.history_limit must not be negative"))
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level must not be empty"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding must not be empty"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths needs at least one target"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths needs at least one target"))
	}

	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval must be positive"))
	}
	if c.OpenAI.Enabled() && c.Scheduler.InsightInterval < c.Scheduler.LoopInterval {
		err = multierr.Append(err, errors.New("scheduler.insight_interval must not be shorter than loop_interval"))
	}

	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func (r RetryConfig) validate(prefix string) error {
	var err error
	if r.MaxAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.max_attempts must be positive", prefix))
	}
	if r.MinDelay <= 0 || r.MaxDelay <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s delays must be positive", prefix))
	}
	if r.MinDelay > r.MaxDelay {
		err = multierr.Append(err, fmt.Errorf("%s.min_delay must not exceed max_delay", prefix))
	}
	return err
}

func isHexAddress(s string) bool {
	return common.IsHexAddress(strings.TrimSpace(s))
}
