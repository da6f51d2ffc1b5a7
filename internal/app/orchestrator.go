package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"auto-trade/internal/ai"
	"auto-trade/internal/cycle"
	"auto-trade/internal/exchange"
	"auto-trade/internal/execution"
	"auto-trade/internal/fault"
	"auto-trade/internal/feature"
	"auto-trade/internal/indicator"
	"auto-trade/internal/ledger"
	"auto-trade/internal/monitor"
	"auto-trade/internal/position"
	"auto-trade/internal/risk"
	"auto-trade/internal/trace"
)

// cycleState 为单个周期内各步骤共享的数据。
type cycleState struct {
	id         string
	symbol     exchange.Symbol
	snapshot   exchange.Snapshot
	indicators indicator.Snapshot
	strength   indicator.Strength
	positions  []position.Position
	trades     []ledger.Trade
	decision   ai.Decision
	actions    []monitor.Action
}

// runCycle 依次执行拉取、指标、持仓、决策、平仓、新开单与决策日志。
func (c *Controller) runCycle(ctx context.Context, cycleID, symbol string) CycleResult {
	result := CycleResult{CycleID: cycleID, Symbol: symbol, Actions: []monitor.Action{}}

	sym, err := exchange.ParseSymbol(symbol)
	if err != nil {
		return c.fail(ctx, result, fault.Data("app.cycle", err), nil)
	}
	cs := &cycleState{id: cycleID, symbol: sym}

	upstreamCtx, cancel := c.upstreamContext(ctx)
	snapshot, err := c.market.GetSnapshot(upstreamCtx, exchange.SnapshotRequest{
		Symbol:   sym.String(),
		Interval: c.cfg.Interval,
		Limit:    c.cfg.CandleLimit,
	})
	cancel()
	if err != nil {
		return c.fail(ctx, result, fault.Upstream("app.cycle", err), map[string]interface{}{"step": "fetch"})
	}
	cs.snapshot = snapshot

	cs.indicators, err = c.engine.Analyze(sym.String()+":"+snapshot.Interval, snapshot.Candles)
	if err != nil {
		return c.fail(ctx, result, err, map[string]interface{}{"step": "indicators", "candles": len(snapshot.Candles)})
	}
	cs.strength = cs.indicators.Strength()
	result.Strength = cs.strength
	c.metrics.RecordSnapshot(sym.String(), snapshot.Interval, cs.indicators, cs.strength)

	c.loadPositions(ctx, cs)

	cs.decision = c.decide(ctx, cs)
	decision := cs.decision
	result.Decision = &decision

	if err := ctx.Err(); err != nil {
		return c.fail(ctx, result, fault.Upstream("app.cycle", err), map[string]interface{}{"step": "decide"})
	}

	c.applySteps(ctx, cs)

	result.Actions = cs.actions
	result.Outcome = outcomeOf(cs.actions)
	result.Message = fmt.Sprintf("Cycle: %s (%.0f%%) - %s", decision.Headline(), decision.Confidence()*100, decision.Strategy())

	c.logs.RecordDecision(ctx, result.Message, decision.Outlook(), decision.Confidence(), monitor.DecisionPayload{
		CycleID:    cycleID,
		Symbol:     sym.String(),
		Decision:   decision,
		Indicators: cs.indicators,
		Strength:   cs.strength,
		Actions:    cs.actions,
	})
	return finish(result, nil)
}

// loadPositions 只把跟踪交易对的基础资产视为持仓，并用成交流水补全成本。流水读取失败只影响提示词上下文。
func (c *Controller) loadPositions(ctx context.Context, cs *cycleState) {
	cs.positions = cycle.TrackedPositions(cs.snapshot.Balances, cs.symbol, c.risk.Limits().MinPositionQty)

	trades, err := c.trades.ListTrades(ctx, cs.symbol.String(), 0)
	if err != nil {
		c.logger.Warn("读取成交流水失败，忽略成本补全", zap.String("cycle_id", cs.id), zap.Error(err))
		return
	}
	cs.trades = trades
	cs.positions = position.AttachCostBasis(cs.positions, ledger.Evaluate(trades), cs.symbol.String(), cs.indicators.Price)
}

// decide 调用决策模型，失败、超时或返回形态不符时退回指标兜底决策。
func (c *Controller) decide(ctx context.Context, cs *cycleState) ai.Decision {
	tail := c.cfg.PromptCandles
	if tail <= 0 {
		tail = 20
	}
	recent := c.cfg.RecentTrades
	if recent <= 0 {
		recent = 5
	}

	req := ai.Request{
		Kind:             cycle.DecisionKind(c.cfg.DecisionMode),
		Market:           feature.Build(cs.snapshot, cs.indicators, tail),
		Positions:        cs.positions,
		RecentTrades:     lastTrades(cs.trades, recent),
		OrderQuantity:    c.cfg.OrderQuantity,
		MaxOpenPositions: c.cfg.MaxOpenPositions,
	}

	oracleCtx, cancel := c.upstreamContext(ctx)
	defer cancel()

	decision, err := cycle.Decide(oracleCtx, c.oracle, req)
	if err != nil {
		c.logger.Warn("决策模型不可用，使用指标兜底决策", zap.String("cycle_id", cs.id), zap.Error(err))
	}
	return decision
}

// applySteps 按计划依次平仓与新开单。门槛基于周期开始时的余额，单个动作失败不影响其余动作。
func (c *Controller) applySteps(ctx context.Context, cs *cycleState) {
	planner := cycle.Planner{Risk: c.risk, OrderQuantity: c.cfg.OrderQuantity}
	steps := planner.Plan(cs.decision, cs.symbol, risk.Account{Balances: cs.snapshot.Balances, Positions: cs.positions})

	for _, step := range steps {
		action := monitor.Action{Kind: string(step.Kind), Asset: step.Asset, Side: string(step.Order.Side)}
		if step.Order.Quantity.IsPositive() {
			action.Quantity = step.Order.Quantity.String()
		}
		if step.Skipped {
			action.Status = monitor.ActionSkipped
			action.Reason = step.Reason
			cs.actions = append(cs.actions, action)
			if step.Kind == cycle.StepOpen {
				c.logs.RecordInfo(ctx, fmt.Sprintf("Skipped %s %s: %s", step.Order.Side, cs.symbol, step.Reason), map[string]interface{}{
					"cycle_id": cs.id,
					"checks":   step.Checks,
				})
			}
			continue
		}
		cs.actions = append(cs.actions, c.submit(ctx, cs, action, step.Order))
	}
}

// submit 提交订单并登记成交日志。持久化失败仍视为已执行，另记错误日志。
func (c *Controller) submit(ctx context.Context, cs *cycleState, action monitor.Action, req execution.OrderRequest) monitor.Action {
	orderCtx, span := trace.StartSpan(ctx, "cycle.order")
	upstreamCtx, cancel := c.upstreamContext(orderCtx)
	res, err := c.executor.Execute(upstreamCtx, req)
	cancel()
	trace.EndWithError(span, err)

	if err != nil && !fault.Is(err, fault.KindPersistence) {
		action.Status = monitor.ActionFailed
		action.Reason = err.Error()
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{
			CycleID: cs.id,
			Kind:    string(fault.KindOf(err)),
			Error:   err.Error(),
			Context: map[string]interface{}{"symbol": req.Symbol.String(), "side": string(req.Side), "source": string(req.Source)},
		})
		return action
	}

	action.Status = monitor.ActionExecuted
	action.OrderID = res.Trade.OrderID
	action.Price = res.Trade.Price.String()
	action.Quantity = res.Trade.Quantity.String()
	c.recordTrade(ctx, cs.id, fmt.Sprintf("Auto-Executed %s %s at %s", res.Trade.Side, req.Symbol, res.Trade.Price.StringFixed(2)), res)

	if err != nil {
		c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{
			CycleID: cs.id,
			Kind:    string(fault.KindPersistence),
			Error:   err.Error(),
			Context: map[string]interface{}{"order_id": res.Trade.OrderID},
		})
	}
	return action
}

// fail 记录错误日志并结束周期。
func (c *Controller) fail(ctx context.Context, result CycleResult, err error, details map[string]interface{}) CycleResult {
	c.logs.RecordError(ctx, err.Error(), monitor.ErrorPayload{
		CycleID: result.CycleID,
		Kind:    string(fault.KindOf(err)),
		Error:   err.Error(),
		Context: details,
	})
	result.Outcome = OutcomeFailed
	if errors.Is(err, context.DeadlineExceeded) {
		result.Message = "评估周期超时: " + err.Error()
	}
	return finish(result, err)
}

func outcomeOf(actions []monitor.Action) Outcome {
	var executed, failed, skipped bool
	for _, a := range actions {
		switch a.Status {
		case monitor.ActionExecuted:
			executed = true
		case monitor.ActionFailed:
			failed = true
		case monitor.ActionSkipped:
			skipped = true
		}
	}
	switch {
	case executed:
		return OutcomeExecuted
	case failed:
		return OutcomeFailed
	case skipped:
		return OutcomeSkipped
	default:
		return OutcomeNoAction
	}
}

func lastTrades(trades []ledger.Trade, n int) []ledger.Trade {
	if n <= 0 || len(trades) <= n {
		return trades
	}
	return trades[len(trades)-n:]
}
