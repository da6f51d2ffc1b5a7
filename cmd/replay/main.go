package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"auto-trade/internal/ai"
	"auto-trade/internal/backtest"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/log"
	"auto-trade/internal/metrics"
)

func main() {
	var (
		configPath string
		limit      int
		window     int
		quote      float64
		fee        float64
		useOracle  bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.IntVar(&limit, "limit", 500, "拉取的历史K线数量")
	flag.IntVar(&window, "window", 100, "每步参与指标计算的K线数")
	flag.Float64Var(&quote, "quote", 10000, "初始计价资产余额")
	flag.Float64Var(&fee, "fee", 0.001, "手续费率")
	flag.BoolVar(&useOracle, "oracle", false, "使用配置的决策模型而不是指标兜底决策")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, limit, window, quote, fee, useOracle); err != nil {
		logger.Error("回放失败", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, limit, window int, quote, fee float64, useOracle bool) error {
	gateway, err := exchange.New(cfg.Exchange, logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	candles, err := backtest.LoadCandles(ctx, gateway, cfg.Bot.Symbol, cfg.Bot.Interval, limit)
	if err != nil {
		return err
	}

	var decision backtest.DecisionProvider = ai.FallbackOracle{}
	if useOracle {
		client, err := ai.NewClient(cfg.OpenAI, logger)
		if err != nil {
			return fmt.Errorf("初始化AI客户端失败: %w", err)
		}
		decision = client
	}

	engine, err := backtest.NewEngine(backtest.Config{
		Bot:          cfg.Bot,
		Window:       window,
		InitialQuote: quote,
		FeeRate:      fee,
	}, backtest.NewSliceCandleProvider(candles, window), decision, logger)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	sink, err := metrics.New(ctx, cfg.Metrics, logger)
	if err != nil {
		return fmt.Errorf("初始化指标写入失败: %w", err)
	}
	for _, entry := range result.Trades {
		sink.RecordTrade(entry.Trade)
	}
	sink.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
