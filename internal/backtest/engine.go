package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"auto-trade/internal/ai"
	"auto-trade/internal/cycle"
	"auto-trade/internal/exchange"
	"auto-trade/internal/execution"
	"auto-trade/internal/feature"
	"auto-trade/internal/indicator"
	"auto-trade/internal/ledger"
	"auto-trade/internal/position"
	"auto-trade/internal/risk"
)

// Result 汇总回放结果。
type Result struct {
	Metrics      Metrics        `json:"metrics"`
	EquityCurve  []float64      `json:"equity_curve"`
	ReturnSeries []float64      `json:"return_series"`
	Steps        int            `json:"steps"`
	Decisions    int            `json:"decisions"`
	Orders       int            `json:"orders"`
	Skipped      int            `json:"skipped"`
	SkipReasons  map[string]int `json:"skip_reasons"`
	Failed       int            `json:"failed"`
	Trades       []ledger.Entry `json:"trades"`
	Summary      ledger.Summary `json:"summary"`
	FinalEquity  float64        `json:"final_equity"`
}

// tradeBook 在内存中保存回放成交。
type tradeBook struct {
	trades []ledger.Trade
}

func (b *tradeBook) SaveTrade(_ context.Context, trade ledger.Trade) error {
	b.trades = append(b.trades, trade)
	return nil
}

// Engine 串联K线窗口、指标、决策、开仓门槛与模拟成交。
type Engine struct {
	cfg       Config
	symbol    exchange.Symbol
	step      time.Duration
	provider  CandleProvider
	decision  DecisionProvider
	risk      *risk.Manager
	simulator *Simulator
	executor  *execution.Executor
	book      *tradeBook
	logger    *zap.Logger
}

// NewEngine 构建回放引擎，decision 为空时使用指标兜底决策。
func NewEngine(cfg Config, provider CandleProvider, decision DecisionProvider, logger *zap.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("backtest: provider 不能为空")
	}
	if decision == nil {
		decision = ai.FallbackOracle{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	symbol, _ := exchange.ParseSymbol(cfg.Bot.Symbol)
	step, _ := exchange.IntervalDuration(cfg.Bot.Interval)

	simulator := NewSimulator(symbol, cfg.InitialBase, cfg.InitialQuote, cfg.FeeRate)
	book := &tradeBook{}

	return &Engine{
		cfg:       cfg,
		symbol:    symbol,
		step:      step,
		provider:  provider,
		decision:  decision,
		risk:      risk.NewManager(risk.LimitsFromConfig(cfg.Bot), logger),
		simulator: simulator,
		executor:  execution.NewExecutor(simulator, book, logger),
		book:      book,
		logger:    logger.Named("backtest"),
	}, nil
}

// Run 执行完整回放流程。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	result := Result{SkipReasons: map[string]int{}}
	for {
		window, ok, err := e.provider.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		if len(window) == 0 {
			continue
		}

		last := window[len(window)-1]
		e.simulator.Advance(last)
		result.Steps++

		snapshot, err := indicator.Analyze(window)
		if err != nil {
			e.logger.Warn("计算指标失败", zap.Time("candle", last.OpenTime), zap.Error(err))
			continue
		}

		if err := e.evaluate(ctx, last, window, snapshot, &result); err != nil {
			return Result{}, err
		}
	}

	entries := ledger.Evaluate(e.book.trades)
	result.Trades = entries
	result.Summary = ledger.Summarize(entries)
	result.Metrics = calculateMetrics(e.simulator.EquityHistory(), e.simulator.ReturnHistory(), e.step)
	result.EquityCurve = e.simulator.EquityHistory()
	result.ReturnSeries = e.simulator.ReturnHistory()
	result.FinalEquity = e.simulator.Equity()

	e.logger.Info("回放完成",
		zap.String("symbol", e.symbol.String()),
		zap.Int("steps", result.Steps),
		zap.Int("orders", result.Orders),
		zap.Float64("total_return", result.Metrics.TotalReturn),
		zap.Float64("max_drawdown", result.Metrics.MaxDrawdown),
		zap.String("realized_pnl", result.Summary.TotalPnL.String()),
	)
	return result, nil
}

// evaluate 对单个窗口执行与实盘周期相同的决策、平仓与开仓检查。
func (e *Engine) evaluate(ctx context.Context, last exchange.Candle, window []exchange.Candle, snapshot indicator.Snapshot, result *Result) error {
	balances, err := e.simulator.FetchBalances(ctx)
	if err != nil {
		return fmt.Errorf("backtest: 读取模拟余额失败: %w", err)
	}
	positions := cycle.TrackedPositions(balances, e.symbol, e.risk.Limits().MinPositionQty)
	positions = position.AttachCostBasis(positions, ledger.Evaluate(e.book.trades), e.symbol.String(), last.Close)

	tail := e.cfg.Bot.PromptCandles
	if tail <= 0 {
		tail = 20
	}
	req := ai.Request{
		Kind: cycle.DecisionKind(e.cfg.Bot.DecisionMode),
		Market: feature.Build(exchange.Snapshot{
			Symbol:      e.symbol.String(),
			Interval:    e.cfg.Bot.Interval,
			Candles:     window,
			Ticker:      exchange.Ticker24h{Symbol: e.symbol.String(), LastPrice: last.Close},
			Balances:    balances,
			RetrievedAt: last.CloseTime,
		}, snapshot, tail),
		Positions:        positions,
		RecentTrades:     recent(e.book.trades, 5),
		OrderQuantity:    e.cfg.Bot.OrderQuantity,
		MaxOpenPositions: e.cfg.Bot.MaxOpenPositions,
	}

	decision, err := cycle.Decide(ctx, e.decision, req)
	if err != nil {
		e.logger.Warn("获取决策失败，使用指标兜底决策", zap.Error(err))
	}
	result.Decisions++

	planner := cycle.Planner{Risk: e.risk, OrderQuantity: e.cfg.Bot.OrderQuantity}
	for _, step := range planner.Plan(decision, e.symbol, risk.Account{Balances: balances, Positions: positions}) {
		if step.Skipped {
			result.Skipped++
			result.SkipReasons[step.Reason]++
			e.logger.Debug("动作已跳过",
				zap.Time("candle", last.OpenTime),
				zap.String("kind", string(step.Kind)),
				zap.String("reason", step.Reason),
			)
			continue
		}
		e.execute(ctx, step.Order, result)
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, req execution.OrderRequest, result *Result) {
	if _, err := e.executor.Execute(ctx, req); err != nil {
		result.Failed++
		e.logger.Warn("模拟下单失败", zap.String("side", string(req.Side)), zap.Error(err))
		return
	}
	result.Orders++
}

func recent(trades []ledger.Trade, n int) []ledger.Trade {
	if len(trades) <= n {
		return append([]ledger.Trade(nil), trades...)
	}
	return append([]ledger.Trade(nil), trades[len(trades)-n:]...)
}
