package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "autotrade"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
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
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return decode(v)
}

// Default 返回仅由默认值与环境变量组成的配置，不读取文件。
func Default() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.Bot.Symbol = strings.ToUpper(strings.TrimSpace(cfg.Bot.Symbol))
	cfg.Bot.DecisionMode = strings.ToLower(strings.TrimSpace(cfg.Bot.DecisionMode))
	cfg.Exchange.Driver = strings.ToLower(strings.TrimSpace(cfg.Exchange.Driver))
	cfg.Cache.Driver = strings.ToLower(strings.TrimSpace(cfg.Cache.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.driver", DriverCCXT)
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.request_timeout", "15s")
	v.SetDefault("exchange.retry.max_attempts", 1)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4.1")
	v.SetDefault("openai.timeout", "30s")

	v.SetDefault("bot.id", "global")
	v.SetDefault("bot.symbol", "BTCUSDT")
	v.SetDefault("bot.interval", "1h")
	v.SetDefault("bot.candle_limit", 100)
	v.SetDefault("bot.decision_mode", DecisionModePortfolio)
	v.SetDefault("bot.order_quantity", 0.001)
	v.SetDefault("bot.portfolio_min_confidence", 0.6)
	v.SetDefault("bot.single_min_confidence", 0.75)
	v.SetDefault("bot.min_quote_balance", 10)
	v.SetDefault("bot.min_position_qty", 0.0001)
	v.SetDefault("bot.max_open_positions", 3)
	v.SetDefault("bot.cycle_timeout", "2m")
	v.SetDefault("bot.upstream_timeout", "30s")
	v.SetDefault("bot.prompt_candles", 20)
	v.SetDefault("bot.recent_trades", 5)

	v.SetDefault("database.path", "data/auto_trade.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.loop_interval", "1h")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 8080)

	v.SetDefault("cache.driver", CacheDriverMemory)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 10)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.influx.url", "http://localhost:8086")
	v.SetDefault("metrics.influx.token", "")
	v.SetDefault("metrics.influx.organization", "")
	v.SetDefault("metrics.influx.bucket", "auto_trade")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "auto-trade")
	v.SetDefault("tracing.pretty_print", false)
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
