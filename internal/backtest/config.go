package backtest

import (
	"fmt"

	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
)

// Config 定义回放参数。
type Config struct {
	Bot          config.BotConfig // 交易对、下单量与开仓门槛
	Window       int              // 每步参与指标计算的K线数
	InitialQuote float64          // 初始计价资产余额
	InitialBase  float64          // 初始基础资产余额
	FeeRate      float64          // 以计价资产收取的手续费率
}

func (c *Config) normalize() (Config, error) {
	cfg := *c
	if cfg.Window <= 0 {
		cfg.Window = 100
	}
	if cfg.InitialQuote <= 0 && cfg.InitialBase <= 0 {
		cfg.InitialQuote = 10000
	}
	if cfg.FeeRate < 0 {
		return cfg, fmt.Errorf("backtest: fee_rate 不能为负: %f", cfg.FeeRate)
	}
	if cfg.Bot.Interval == "" {
		cfg.Bot.Interval = "1h"
	}
	if _, err := exchange.IntervalDuration(cfg.Bot.Interval); err != nil {
		return cfg, fmt.Errorf("backtest: %w", err)
	}
	if _, err := exchange.ParseSymbol(cfg.Bot.Symbol); err != nil {
		return cfg, fmt.Errorf("backtest: %w", err)
	}
	if cfg.Bot.OrderQuantity <= 0 {
		return cfg, fmt.Errorf("backtest: order_quantity 必须大于0")
	}
	return cfg, nil
}
