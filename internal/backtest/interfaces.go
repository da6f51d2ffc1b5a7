package backtest

import (
	"context"

	"auto-trade/internal/ai"
	"auto-trade/internal/exchange"
)

// CandleProvider 按时间顺序提供K线窗口，每个窗口以当前K线结尾。
type CandleProvider interface {
	Next(ctx context.Context) ([]exchange.Candle, bool, error)
}

// DecisionProvider 提供决策接口，便于在回放中注入不同源。ai.Oracle 的实现均可直接使用。
type DecisionProvider interface {
	Decide(ctx context.Context, req ai.Request) (ai.Decision, error)
}
