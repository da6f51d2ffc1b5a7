package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"auto-trade/internal/ai"
	"auto-trade/internal/cache"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/ledger"
	"auto-trade/internal/metrics"
	"auto-trade/internal/monitor"
	"auto-trade/internal/state"
	"auto-trade/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
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

// components 为一次运行内创建的全部协作方。
type components struct {
	controller *Controller
	reporter   *Reporter
	cache      cache.Cache
	metrics    metrics.Sink
	logger     *zap.Logger
}

func (c *components) close() {
	c.metrics.Close()
	if err := c.cache.Close(); err != nil {
		c.logger.Warn("关闭缓存失败", zap.Error(err))
	}
}

func (a *App) build(ctx context.Context) (*components, error) {
	states, err := state.NewStore(ctx, a.store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化机器人状态存储失败: %w", err)
	}
	trades, err := ledger.NewStore(ctx, a.store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化成交存储失败: %w", err)
	}
	logs, err := monitor.NewService(ctx, a.store, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化审计日志失败: %w", err)
	}

	gateway, err := exchange.New(a.cfg.Exchange, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	var oracle ai.Oracle = ai.FallbackOracle{}
	if a.cfg.OpenAI.Enabled() {
		client, err := ai.NewClient(a.cfg.OpenAI, a.logger)
		if err != nil {
			return nil, fmt.Errorf("初始化AI客户端失败: %w", err)
		}
		oracle = client
		a.logger.Info("决策模型已启用", zap.String("model", a.cfg.OpenAI.Model))
	} else {
		a.logger.Warn("未配置 openai.api_key，仅使用指标兜底决策")
	}

	reportCache, err := cache.New(ctx, a.cfg.Cache, a.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化报表缓存失败: %w", err)
	}
	sink, err := metrics.New(ctx, a.cfg.Metrics, a.logger)
	if err != nil {
		_ = reportCache.Close()
		return nil, fmt.Errorf("初始化指标写入失败: %w", err)
	}

	ctrl, err := NewController(a.cfg.Bot, Dependencies{
		Gateway: gateway,
		Oracle:  ai.WithTracing(oracle, "oracle.decide"),
		States:  states,
		Trades:  trades,
		Logs:    logs,
		Metrics: sink,
	}, a.logger)
	if err != nil {
		sink.Close()
		_ = reportCache.Close()
		return nil, err
	}

	return &components{
		controller: ctrl,
		reporter:   NewReporter(ctrl, reportCache, a.logger),
		cache:      reportCache,
		metrics:    sink,
		logger:     a.logger,
	}, nil
}

// Run 启动运维接口并按固定间隔触发评估周期，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange_driver", a.cfg.Exchange.Driver),
		zap.String("symbol", a.cfg.Bot.Symbol),
		zap.String("decision_mode", a.cfg.Bot.DecisionMode),
	)

	comps, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	if a.cfg.Monitor.Enabled {
		handler := newMonitorHandler(ctx, comps.controller, comps.reporter, a.logger)
		if err := startMonitorServer(ctx, handler, a.cfg.Monitor.Port, a.logger); err != nil {
			return fmt.Errorf("启动监控接口失败: %w", err)
		}
	}

	loopInterval := a.cfg.Scheduler.LoopInterval
	if loopInterval <= 0 {
		loopInterval = time.Hour
	}

	if a.cfg.Scheduler.RunOnStart {
		a.tick(ctx, comps.controller)
	}

	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("系统异常退出: %w", err)
			}
			a.logger.Info("系统收到退出信号，正在停止")
			return nil
		case <-ticker.C:
			a.tick(ctx, comps.controller)
		}
	}
}

func (a *App) tick(ctx context.Context, ctrl *Controller) {
	result := ctrl.RunCycle(ctx)
	switch result.Outcome {
	case OutcomeStopped:
		a.logger.Debug("机器人已停止，跳过本次调度")
	case OutcomeBusy:
		a.logger.Warn("上一个评估周期尚未结束，跳过本次调度")
	case OutcomeFailed:
		a.logger.Error("执行调度失败", zap.Error(result.Err))
	}
}
