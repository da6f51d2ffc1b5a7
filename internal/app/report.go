package app

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"auto-trade/internal/cache"
	"auto-trade/internal/exchange"
	"auto-trade/internal/fault"
	"auto-trade/internal/indicator"
	"auto-trade/internal/ledger"
	"auto-trade/internal/monitor"
	"auto-trade/internal/state"
)

const defaultLogLimit = 100

// StatusReport 为机器人状态与最近审计日志。
type StatusReport struct {
	State state.BotState  `json:"state"`
	Logs  []monitor.Entry `json:"logs"`
	Stale bool            `json:"stale"`
}

// TradesReport 为附带 FIFO 盈亏的成交列表，最近优先。
type TradesReport struct {
	Trades  []ledger.Entry `json:"trades"`
	Summary ledger.Summary `json:"summary"`
	Stale   bool           `json:"stale"`
}

// StatsReport 为汇总统计。
type StatsReport struct {
	ledger.Summary
	TotalChecks int  `json:"total_checks"`
	Stale       bool `json:"stale"`
}

// EventsReport 为审计日志列表。
type EventsReport struct {
	Entries []monitor.Entry `json:"entries"`
	Stale   bool            `json:"stale"`
}

// IndicatorsReport 为最新K线窗口的指标。
type IndicatorsReport struct {
	Symbol     string             `json:"symbol"`
	Interval   string             `json:"interval"`
	Indicators indicator.Snapshot `json:"indicators"`
	Strength   indicator.Strength `json:"strength"`
	Candles    []exchange.Candle  `json:"candles"`
}

// Reporter 提供只读报表。存储读取失败时返回最近一次成功结果并标记 stale。
type Reporter struct {
	ctrl   *Controller
	cache  cache.Cache
	logger *zap.Logger
}

// NewReporter 创建报表服务，cache 为空时使用内存缓存。
func NewReporter(ctrl *Controller, c cache.Cache, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.NewMemory(24 * time.Hour)
	}
	return &Reporter{ctrl: ctrl, cache: c, logger: logger}
}

// withStale 成功时刷新缓存，失败时回退到缓存；缓存也没有时返回持久化错误。
func withStale[T any](ctx context.Context, r *Reporter, key string, load func(context.Context) (T, error)) (T, bool, error) {
	value, err := load(ctx)
	if err == nil {
		if setErr := r.cache.Set(ctx, key, value); setErr != nil {
			r.logger.Warn("报表缓存写入失败", zap.String("key", key), zap.Error(setErr))
		}
		return value, false, nil
	}

	var cached T
	found, cacheErr := r.cache.Get(ctx, key, &cached)
	if cacheErr != nil {
		r.logger.Warn("报表缓存读取失败", zap.String("key", key), zap.Error(cacheErr))
	}
	if found {
		r.logger.Warn("存储读取失败，返回缓存数据", zap.String("key", key), zap.Error(err))
		return cached, true, nil
	}
	return value, false, fault.Persistence("app.report", err)
}

// Status 返回当前状态与最近100条日志。
func (r *Reporter) Status(ctx context.Context) (StatusReport, error) {
	report, stale, err := withStale(ctx, r, cache.Key("status", r.ctrl.cfg.ID), func(ctx context.Context) (StatusReport, error) {
		st, err := r.ctrl.states.Get(ctx, r.ctrl.cfg.ID, r.ctrl.cfg.Symbol)
		if err != nil {
			return StatusReport{}, err
		}
		logs, err := r.ctrl.logs.List(ctx, "", defaultLogLimit)
		if err != nil {
			return StatusReport{}, err
		}
		return StatusReport{State: st, Logs: logs}, nil
	})
	report.Stale = stale
	return report, err
}

// Trades 返回成交及其 FIFO 状态，limit<=0 时返回全部。
func (r *Reporter) Trades(ctx context.Context, symbol string, limit int) (TradesReport, error) {
	key := cache.Key("trades", symbol, strconv.Itoa(limit))
	report, stale, err := withStale(ctx, r, key, func(ctx context.Context) (TradesReport, error) {
		trades, err := r.ctrl.trades.ListTrades(ctx, symbol, 0)
		if err != nil {
			return TradesReport{}, err
		}
		entries := ledger.Evaluate(trades)
		summary := ledger.Summarize(entries)
		entries = ledger.Reverse(entries)
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		return TradesReport{Trades: entries, Summary: summary}, nil
	})
	report.Stale = stale
	return report, err
}

// Stats 返回盈亏统计与决策次数。
func (r *Reporter) Stats(ctx context.Context) (StatsReport, error) {
	report, stale, err := withStale(ctx, r, cache.Key("stats", r.ctrl.cfg.ID), func(ctx context.Context) (StatsReport, error) {
		trades, err := r.ctrl.trades.ListTrades(ctx, "", 0)
		if err != nil {
			return StatsReport{}, err
		}
		checks, err := r.ctrl.logs.Count(ctx, monitor.EntryDecision)
		if err != nil {
			return StatsReport{}, err
		}
		return StatsReport{Summary: ledger.Summarize(ledger.Evaluate(trades)), TotalChecks: checks}, nil
	})
	report.Stale = stale
	return report, err
}

// Events 返回指定类型的审计日志，typ 为空时返回全部类型。
func (r *Reporter) Events(ctx context.Context, typ monitor.EntryType, limit int) (EventsReport, error) {
	if typ != "" && !typ.Valid() {
		return EventsReport{}, fault.Constraint("app.Events", "未知日志类型 %q", typ)
	}
	key := cache.Key("events", string(typ), strconv.Itoa(limit))
	report, stale, err := withStale(ctx, r, key, func(ctx context.Context) (EventsReport, error) {
		entries, err := r.ctrl.logs.List(ctx, typ, limit)
		if err != nil {
			return EventsReport{}, err
		}
		return EventsReport{Entries: entries}, nil
	})
	report.Stale = stale
	return report, err
}

// Indicators 拉取K线并计算指标，参数为空时使用机器人配置。
func (r *Reporter) Indicators(ctx context.Context, symbol, interval string, limit int) (IndicatorsReport, error) {
	if symbol == "" {
		st, err := r.ctrl.Status(ctx)
		if err != nil {
			return IndicatorsReport{}, err
		}
		symbol = st.Symbol
	}
	sym, err := exchange.ParseSymbol(symbol)
	if err != nil {
		return IndicatorsReport{}, fault.Constraint("app.Indicators", "%v", err)
	}
	if interval == "" {
		interval = r.ctrl.cfg.Interval
	}
	if _, err := exchange.IntervalDuration(interval); err != nil {
		return IndicatorsReport{}, fault.Constraint("app.Indicators", "%v", err)
	}
	if limit <= 0 {
		limit = r.ctrl.cfg.CandleLimit
	}

	upstreamCtx, cancel := r.ctrl.upstreamContext(ctx)
	defer cancel()
	candles, err := r.ctrl.market.GetCandles(upstreamCtx, sym.String(), interval, limit)
	if err != nil {
		return IndicatorsReport{}, fault.Upstream("app.Indicators", err)
	}
	snapshot, err := r.ctrl.engine.Analyze(sym.String()+":"+interval, candles)
	if err != nil {
		return IndicatorsReport{}, err
	}
	return IndicatorsReport{
		Symbol:     sym.String(),
		Interval:   interval,
		Indicators: snapshot,
		Strength:   snapshot.Strength(),
		Candles:    candles,
	}, nil
}
