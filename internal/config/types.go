package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

const (
	// DriverCCXT 使用 ccxt 访问 Binance 现货。
	DriverCCXT = "ccxt"
	// DriverBinance 使用 go-binance 原生 SDK。
	DriverBinance = "binance"
)

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Driver         string        `mapstructure:"driver"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	UseSandbox     bool          `mapstructure:"use_sandbox"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数，api_key 为空时仅使用指标兜底决策。
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled 判断是否配置了模型访问凭证。
func (c OpenAIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

const (
	// DecisionModePortfolio 组合决策：逐仓位 CLOSE/HOLD + 新开单。
	DecisionModePortfolio = "portfolio"
	// DecisionModeSingle 单标的 BUY/SELL/HOLD 决策。
	DecisionModeSingle = "single"
)

// BotConfig 控制自动交易机器人的行为与门槛。
type BotConfig struct {
	ID                     string        `mapstructure:"id"`
	Symbol                 string        `mapstructure:"symbol"`
	Interval               string        `mapstructure:"interval"`
	CandleLimit            int           `mapstructure:"candle_limit"`
	DecisionMode           string        `mapstructure:"decision_mode"`
	OrderQuantity          float64       `mapstructure:"order_quantity"`
	PortfolioMinConfidence float64       `mapstructure:"portfolio_min_confidence"`
	SingleMinConfidence    float64       `mapstructure:"single_min_confidence"`
	MinQuoteBalance        float64       `mapstructure:"min_quote_balance"`
	MinPositionQty         float64       `mapstructure:"min_position_qty"`
	MaxOpenPositions       int           `mapstructure:"max_open_positions"`
	CycleTimeout           time.Duration `mapstructure:"cycle_timeout"`
	UpstreamTimeout        time.Duration `mapstructure:"upstream_timeout"`
	PromptCandles          int           `mapstructure:"prompt_candles"`
	RecentTrades           int           `mapstructure:"recent_trades"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
	RunOnStart   bool          `mapstructure:"run_on_start"`
}

// MonitorConfig 控制运维 HTTP 接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// CacheConfig 控制报表缓存。
type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
	Redis  RedisConfig   `mapstructure:"redis"`
}

// RedisConfig 描述 Redis 连接。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MetricsConfig 控制 InfluxDB 指标镜像。
type MetricsConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Influx  InfluxConfig `mapstructure:"influx"`
}

// InfluxConfig 描述 InfluxDB 连接。
type InfluxConfig struct {
	URL          string `mapstructure:"url"`
	Token        string `mapstructure:"token"`
	Organization string `mapstructure:"organization"`
	Bucket       string `mapstructure:"bucket"`
}

// TracingConfig 控制 OpenTelemetry 链路追踪。
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	PrettyPrint bool   `mapstructure:"pretty_print"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	switch c.Exchange.Driver {
	case DriverCCXT, DriverBinance:
	default:
		err = multierr.Append(err, fmt.Errorf("exchange.driver 取值非法: %q", c.Exchange.Driver))
	}
	if c.Exchange.RequestTimeout <= 0 {
		err = multierr.Append(err, errors.New("exchange.request_timeout 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.OpenAI.Enabled() {
		if c.OpenAI.Model == "" {
			err = multierr.Append(err, errors.New("openai.model 不能为空"))
		}
		if c.OpenAI.Timeout <= 0 {
			err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
		}
	}
	err = multierr.Append(err, c.Bot.validate())
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}
	switch c.Cache.Driver {
	case CacheDriverMemory:
	case CacheDriverRedis:
		if c.Cache.Redis.Addr == "" {
			err = multierr.Append(err, errors.New("cache.redis.addr 不能为空"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("cache.driver 取值非法: %q", c.Cache.Driver))
	}
	if c.Cache.TTL <= 0 {
		err = multierr.Append(err, errors.New("cache.ttl 必须大于0"))
	}
	if c.Metrics.Enabled {
		if c.Metrics.Influx.URL == "" || c.Metrics.Influx.Bucket == "" || c.Metrics.Influx.Organization == "" {
			err = multierr.Append(err, errors.New("metrics.influx 需要配置 url、organization 与 bucket"))
		}
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func (b BotConfig) validate() error {
	var err error

	if strings.TrimSpace(b.ID) == "" {
		err = multierr.Append(err, errors.New("bot.id 不能为空"))
	}
	if strings.TrimSpace(b.Symbol) == "" {
		err = multierr.Append(err, errors.New("bot.symbol 不能为空"))
	}
	if b.Interval == "" {
		err = multierr.Append(err, errors.New("bot.interval 不能为空"))
	}
	if b.CandleLimit < 50 {
		err = multierr.Append(err, errors.New("bot.candle_limit 至少为50"))
	}
	switch b.DecisionMode {
	case DecisionModePortfolio, DecisionModeSingle:
	default:
		err = multierr.Append(err, fmt.Errorf("bot.decision_mode 取值非法: %q", b.DecisionMode))
	}
	if b.OrderQuantity <= 0 {
		err = multierr.Append(err, errors.New("bot.order_quantity 必须大于0"))
	}
	if b.PortfolioMinConfidence <= 0 || b.PortfolioMinConfidence > 1 {
		err = multierr.Append(err, errors.New("bot.portfolio_min_confidence 必须位于(0,1]"))
	}
	if b.SingleMinConfidence <= 0 || b.SingleMinConfidence > 1 {
		err = multierr.Append(err, errors.New("bot.single_min_confidence 必须位于(0,1]"))
	}
	if b.MinQuoteBalance < 0 {
		err = multierr.Append(err, errors.New("bot.min_quote_balance 不能为负"))
	}
	if b.MinPositionQty <= 0 {
		err = multierr.Append(err, errors.New("bot.min_position_qty 必须大于0"))
	}
	if b.MaxOpenPositions <= 0 {
		err = multierr.Append(err, errors.New("bot.max_open_positions 必须大于0"))
	}
	if b.CycleTimeout <= 0 || b.UpstreamTimeout <= 0 {
		err = multierr.Append(err, errors.New("bot.cycle_timeout 与 bot.upstream_timeout 必须大于0"))
	}
	if b.UpstreamTimeout > b.CycleTimeout {
		err = multierr.Append(err, errors.New("bot.upstream_timeout 不应大于 cycle_timeout"))
	}
	if b.PromptCandles <= 0 || b.RecentTrades < 0 {
		err = multierr.Append(err, errors.New("bot.prompt_candles 必须大于0，bot.recent_trades 不能为负"))
	}

	return err
}
