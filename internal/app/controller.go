package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"auto-trade/internal/ai"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/execution"
	"auto-trade/internal/fault"
	"auto-trade/internal/indicator"
	"auto-trade/internal/ledger"
	"auto-trade/internal/log"
	"auto-trade/internal/metrics"
	"auto-trade/internal/monitor"
	"auto-trade/internal/position"
	"auto-trade/internal/risk"
	"auto-trade/internal/state"
	"auto-trade/internal/trace"
)

var (
	// ErrCycleInFlight 同一机器人已有周期或手动操作在执行。
	ErrCycleInFlight = errors.New("app: 已有评估周期在执行")
	// ErrBotStopped 机器人处于停止状态。
	ErrBotStopped = errors.New("app: bot is stopped")
)

// Outcome 为单个评估周期的结果分类。
type Outcome string

const (
	OutcomeStopped  Outcome = "stopped"
	OutcomeBusy     Outcome = "busy"
	OutcomeExecuted Outcome = "executed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeNoAction Outcome = "no_action"
	OutcomeFailed   Outcome = "failed"
)

// CycleResult 汇总一次评估周期。
type CycleResult struct {
	CycleID    string             `json:"cycle_id,omitempty"`
	Symbol     string             `json:"symbol"`
	Outcome    Outcome            `json:"outcome"`
	Message    string             `json:"message"`
	Decision   *ai.Decision       `json:"decision,omitempty"`
	Strength   indicator.Strength `json:"strength"`
	Actions    []monitor.Action   `json:"actions"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Err        error              `json:"-"`
}

// Dependencies 为控制器的外部协作方。
type Dependencies struct {
	Gateway  exchange.Gateway
	Oracle   ai.Oracle
	States   *state.Store
	Trades   *ledger.Store
	Logs     *monitor.Service
	Engine   *indicator.Engine
	Metrics  metrics.Sink
	Executor execution.Trader
}

// Controller 为自动交易状态机：Stopped/Running，由外部定时或手动触发评估周期。
// 同一实例上的周期、手动下单与清仓互斥，忙碌时直接拒绝而不是排队。
type Controller struct {
	cfg      config.BotConfig
	market   *exchange.MarketDataService
	trading  exchange.Trading
	oracle   ai.Oracle
	states   *state.Store
	trades   *ledger.Store
	logs     *monitor.Service
	engine   *indicator.Engine
	risk     *risk.Manager
	executor execution.Trader
	metrics  metrics.Sink
	logger   *zap.Logger

	busy    sync.Mutex
	stateMu sync.Mutex
	newID   func() string
}

// NewController 创建控制器。Oracle 为空时只使用指标兜底决策。
func NewController(cfg config.BotConfig, deps Dependencies, logger *zap.Logger) (*Controller, error) {
	if deps.Gateway == nil {
		return nil, errors.New("app: gateway 不能为空")
	}
	if deps.States == nil || deps.Trades == nil || deps.Logs == nil {
		return nil, errors.New("app: 状态、成交与日志存储不能为空")
	}
	if cfg.ID == "" {
		cfg.ID = state.DefaultBotID
	}
	logger = log.ForBot(logger, cfg.ID, cfg.Symbol)

	oracle := deps.Oracle
	if oracle == nil {
		oracle = ai.FallbackOracle{}
	}
	engine := deps.Engine
	if engine == nil {
		engine = indicator.NewEngine()
	}
	sink := deps.Metrics
	if sink == nil {
		sink = metrics.Nop{}
	}
	executor := deps.Executor
	if executor == nil {
		executor = execution.NewExecutor(deps.Gateway, deps.Trades, logger)
	}

	return &Controller{
		cfg:      cfg,
		market:   exchange.NewMarketDataService(deps.Gateway, logger),
		trading:  deps.Gateway,
		oracle:   oracle,
		states:   deps.States,
		trades:   deps.Trades,
		logs:     deps.Logs,
		engine:   engine,
		risk:     risk.NewManager(risk.LimitsFromConfig(cfg), logger),
		executor: executor,
		metrics:  sink,
		logger:   logger,
		newID:    uuid.NewString,
	}, nil
}

// Status 返回当前持久化的机器人状态。
func (c *Controller) Status(ctx context.Context) (state.BotState, error) {
	st, err := c.states.Get(ctx, c.cfg.ID, c.cfg.Symbol)
	if err != nil {
		return state.BotState{}, fault.Persistence("app.Status", err)
	}
	return st, nil
}

// Start 切换到 Running 并持久化；已在运行时只更新交易对。symbol 为空时沿用当前交易对。
func (c *Controller) Start(ctx context.Context, symbol string) (state.BotState, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	current, err := c.Status(ctx)
	if err != nil {
		return state.BotState{}, err
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = current.Symbol
	}
	sym, err := exchange.ParseSymbol(symbol)
	if err != nil {
		return state.BotState{}, fault.Constraint("app.Start", "%v", err)
	}

	saved, err := c.states.Save(ctx, state.BotState{
		ID:        c.cfg.ID,
		IsRunning: true,
		Symbol:    sym.String(),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return state.BotState{}, fault.Persistence("app.Start", err)
	}

	c.logs.RecordInfo(ctx, fmt.Sprintf("Auto-trading started for %s", saved.Symbol), map[string]interface{}{
		"bot_id":      saved.ID,
		"was_running": current.IsRunning,
	})
	c.logger.Info("自动交易已启动", zap.String("tracked_symbol", saved.Symbol), zap.Bool("was_running", current.IsRunning))
	return saved, nil
}

// Stop 切换到 Stopped 并持久化，重复调用无副作用。
func (c *Controller) Stop(ctx context.Context) (state.BotState, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	current, err := c.Status(ctx)
	if err != nil {
		return state.BotState{}, err
	}

	saved, err := c.states.Save(ctx, state.BotState{
		ID:        c.cfg.ID,
		IsRunning: false,
		Symbol:    current.Symbol,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return state.BotState{}, fault.Persistence("app.Stop", err)
	}

	c.logs.RecordInfo(ctx, "Auto-trading stopped by user", map[string]interface{}{
		"bot_id":      saved.ID,
		"was_running": current.IsRunning,
	})
	c.logger.Info("自动交易已停止", zap.Bool("was_running", current.IsRunning))
	return saved, nil
}

// RunCycle 执行一次评估周期。停止状态下不访问交易所，直接返回 OutcomeStopped。
// 周期内的任何失败都记录为错误日志并以 OutcomeFailed 返回，不会向上抛出。
func (c *Controller) RunCycle(ctx context.Context) CycleResult {
	started := time.Now().UTC()
	if !c.busy.TryLock() {
		return CycleResult{
			Outcome:    OutcomeBusy,
			Message:    ErrCycleInFlight.Error(),
			Error:      ErrCycleInFlight.Error(),
			Err:        ErrCycleInFlight,
			StartedAt:  started,
			FinishedAt: started,
		}
	}
	defer c.busy.Unlock()

	st, err := c.Status(ctx)
	if err != nil {
		c.logger.Error("读取机器人状态失败", zap.Error(err))
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{Kind: string(fault.KindOf(err)), Error: err.Error()})
		return finish(CycleResult{Outcome: OutcomeFailed, Symbol: c.cfg.Symbol, StartedAt: started}, err)
	}
	if !st.IsRunning {
		return CycleResult{
			Symbol:     st.Symbol,
			Outcome:    OutcomeStopped,
			Message:    "bot is stopped",
			Err:        ErrBotStopped,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
		}
	}

	cycleID := c.newID()
	timeout := c.cfg.CycleTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cycleCtx, span := trace.StartSpan(cycleCtx, "cycle",
		attribute.String("cycle_id", cycleID),
		attribute.String("bot_id", c.cfg.ID),
		attribute.String("symbol", st.Symbol),
	)

	result := c.runCycle(cycleCtx, cycleID, st.Symbol)
	result.StartedAt = started
	result.FinishedAt = time.Now().UTC()

	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	trace.EndWithError(span, result.Err)

	logger := c.logger.With(zap.String("cycle_id", cycleID), zap.String("outcome", string(result.Outcome)))
	if traceID, _, ok := trace.IDs(cycleCtx); ok {
		logger = logger.With(zap.String("trace_id", traceID))
	}
	if result.Outcome == OutcomeFailed {
		logger.Error("评估周期失败", zap.Error(result.Err))
	} else {
		logger.Info("评估周期完成", zap.Int("actions", len(result.Actions)))
	}
	return result
}

// ManualOrder 提交手动市价单，与周期互斥。
func (c *Controller) ManualOrder(ctx context.Context, side string, quantity float64) (execution.Result, error) {
	orderSide, err := exchange.ParseSide(side)
	if err != nil {
		return execution.Result{}, fault.Constraint("app.ManualOrder", "side 必须为 BUY 或 SELL")
	}
	if quantity <= 0 {
		return execution.Result{}, fault.Constraint("app.ManualOrder", "quantity 必须大于0")
	}

	if !c.busy.TryLock() {
		return execution.Result{}, ErrCycleInFlight
	}
	defer c.busy.Unlock()

	st, err := c.Status(ctx)
	if err != nil {
		return execution.Result{}, err
	}
	sym, err := exchange.ParseSymbol(st.Symbol)
	if err != nil {
		return execution.Result{}, fault.Data("app.ManualOrder", err)
	}

	upstreamCtx, cancel := c.upstreamContext(ctx)
	defer cancel()

	req := execution.OrderRequest{
		Symbol:   sym,
		Side:     orderSide,
		Quantity: decimal.NewFromFloat(quantity),
		Source:   execution.SourceManual,
		Reason:   "manual order",
	}
	res, err := c.executor.Execute(upstreamCtx, req)
	if err != nil && !fault.Is(err, fault.KindPersistence) {
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{Kind: string(fault.KindOf(err)), Error: err.Error(),
			Context: map[string]interface{}{"source": string(execution.SourceManual), "side": string(orderSide)}})
		return res, err
	}

	c.recordTrade(ctx, "", fmt.Sprintf("Manual %s %s at %s", orderSide, sym, res.Trade.Price.StringFixed(2)), res)
	if err != nil {
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{Kind: string(fault.KindPersistence), Error: err.Error()})
	}
	return res, err
}

// Liquidate 以市价卖出跟踪交易对全部可用基础资产。余额低于持仓阈值时不下单，返回 nil。
func (c *Controller) Liquidate(ctx context.Context) (*execution.Result, error) {
	if !c.busy.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer c.busy.Unlock()

	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	sym, err := exchange.ParseSymbol(st.Symbol)
	if err != nil {
		return nil, fault.Data("app.Liquidate", err)
	}

	upstreamCtx, cancel := c.upstreamContext(ctx)
	defer cancel()

	balances, err := c.trading.FetchBalances(upstreamCtx)
	if err != nil {
		err = fault.Upstream("app.Liquidate", err)
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{Kind: string(fault.KindUpstream), Error: err.Error()})
		return nil, err
	}

	free := position.FreeBalance(balances, sym.Base)
	if free.LessThan(c.risk.Limits().MinPositionQty) {
		c.logs.RecordInfo(ctx, fmt.Sprintf("No %s balance to liquidate", sym.Base), map[string]interface{}{"free": free.String()})
		return nil, nil
	}

	res, err := c.executor.Execute(upstreamCtx, execution.OrderRequest{
		Symbol:   sym,
		Side:     exchange.SideSell,
		Quantity: free,
		Source:   execution.SourceLiquidate,
		Reason:   "liquidate",
	})
	if err != nil && !fault.Is(err, fault.KindPersistence) {
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{Kind: string(fault.KindOf(err)), Error: err.Error(),
			Context: map[string]interface{}{"source": string(execution.SourceLiquidate)}})
		return nil, err
	}

	c.recordTrade(ctx, "", fmt.Sprintf("Liquidated %s %s at %s", res.Trade.Quantity, sym.Base, res.Trade.Price.StringFixed(2)), res)
	if err != nil {
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{Kind: string(fault.KindPersistence), Error: err.Error()})
	}
	return &res, err
}

func (c *Controller) upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Controller) recordTrade(ctx context.Context, cycleID, message string, res execution.Result) {
	c.metrics.RecordTrade(res.Trade)
	c.logs.RecordTrade(ctx, message, monitor.TradePayload{
		CycleID:  cycleID,
		Source:   string(res.Request.Source),
		Symbol:   res.Trade.Symbol,
		Side:     string(res.Trade.Side),
		OrderID:  res.Trade.OrderID,
		Price:    res.Trade.Price.String(),
		Quantity: res.Trade.Quantity.String(),
		QuoteQty: res.Trade.QuoteQty.String(),
		Status:   res.Trade.Status,
	})
}

func finish(result CycleResult, err error) CycleResult {
	result.Err = err
	if err != nil {
		result.Error = err.Error()
		if result.Message == "" {
			result.Message = err.Error()
		}
	}
	result.FinishedAt = time.Now().UTC()
	return result
}
