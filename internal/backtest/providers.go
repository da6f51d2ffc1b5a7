package backtest

import (
	"context"
	"errors"
	"fmt"

	"auto-trade/internal/ai"
	"auto-trade/internal/exchange"
)

// SliceCandleProvider 在固定K线序列上滑动窗口。
type SliceCandleProvider struct {
	candles []exchange.Candle
	window  int
	index   int
}

// NewSliceCandleProvider 创建滑动窗口，第一个窗口以第 window 根K线结尾。
func NewSliceCandleProvider(candles []exchange.Candle, window int) *SliceCandleProvider {
	if window <= 0 {
		window = 100
	}
	return &SliceCandleProvider{candles: candles, window: window, index: window}
}

func (p *SliceCandleProvider) Next(ctx context.Context) ([]exchange.Candle, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if p.index > len(p.candles) {
		return nil, false, nil
	}
	window := p.candles[p.index-p.window : p.index]
	p.index++
	return window, true, nil
}

// Steps 返回剩余步数。
func (p *SliceCandleProvider) Steps() int {
	if p.index > len(p.candles) {
		return 0
	}
	return len(p.candles) - p.index + 1
}

// LoadCandles 从行情源一次性拉取回放所需的历史K线。
func LoadCandles(ctx context.Context, md exchange.MarketData, symbol, interval string, limit int) ([]exchange.Candle, error) {
	candles, err := md.FetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("backtest: 拉取历史K线失败: %w", err)
	}
	if len(candles) == 0 {
		return nil, errors.New("backtest: 行情源未返回K线")
	}
	return candles, nil
}

// DecisionProviderFunc 允许使用函数作为决策提供者。
type DecisionProviderFunc func(ctx context.Context, req ai.Request) (ai.Decision, error)

func (f DecisionProviderFunc) Decide(ctx context.Context, req ai.Request) (ai.Decision, error) {
	if f == nil {
		return ai.Decision{}, errors.New("backtest: 决策函数未实现")
	}
	return f(ctx, req)
}
