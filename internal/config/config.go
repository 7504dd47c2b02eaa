package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "citadel"
)

// Load reads the config file, applies environment overrides and returns a validated Config.
// When path is empty and the default file is absent, the built-in defaults are used as is.
func Load(path string) (*Config, error) {
	v := viper.New()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case !explicit && (errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)):
		case errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config file %q not found: %w", path, err)
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("chain.rpc_url", "https://arb1.arbitrum.io/rpc")
	v.SetDefault("chain.position_manager", "0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	v.SetDefault("chain.factory", "0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v.SetDefault("chain.volatile_symbols", []string{"WETH", "ETH"})
	v.SetDefault("chain.call_timeout", "10s")
	v.SetDefault("chain.rate_limit", 5.0)
	v.SetDefault("chain.rate_burst", 10)
	v.SetDefault("chain.retry.max_attempts", 3)
	v.SetDefault("chain.retry.min_delay", "500ms")
	v.SetDefault("chain.retry.max_delay", "5s")
	v.SetDefault("chain.breaker.max_failures", 5)
	v.SetDefault("chain.breaker.interval", "1m")
	v.SetDefault("chain.breaker.timeout", "30s")

	v.SetDefault("hyperliquid.use_sandbox", false)
	v.SetDefault("hyperliquid.fee_lookback", "0s")
	v.SetDefault("hyperliquid.retry.max_attempts", 5)
	v.SetDefault("hyperliquid.retry.min_delay", "500ms")
	v.SetDefault("hyperliquid.retry.max_delay", "5s")

	v.SetDefault("strategies", []map[string]interface{}{
		{
			"name":        "citadel",
			"position_id": 4931983,
			"wallet":      "0x689fEBfd1EA5Af9E70B86d8a29362eC119C289B0",
		},
	})

	v.SetDefault("storage.driver", "csv")
	v.SetDefault("storage.dir", "data")

	v.SetDefault("database.path", "data/citadel.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.org", "citadel")
	v.SetDefault("influx.bucket", "portfolio")
	v.SetDefault("influx.token", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1-mini")
	v.SetDefault("openai.timeout", "30s")

	v.SetDefault("dashboard.addr", ":8501")
	v.SetDefault("dashboard.title", "LP + HL Value Tracker")
	v.SetDefault("dashboard.refresh_interval", "1m")
	v.SetDefault("dashboard.history_limit", 2000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.loop_interval", "1m")
	v.SetDefault("scheduler.insight_interval", "1h")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
