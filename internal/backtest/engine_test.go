package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/ai"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/ledger"
)

func makeCandles(closes []float64) []exchange.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * time.Hour)
		candles[i] = exchange.Candle{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	return candles
}

func linear(n int, start, step float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return values
}

func testConfig() Config {
	return Config{
		Bot: config.BotConfig{
			Symbol:                 "BTCUSDT",
			Interval:               "1h",
			DecisionMode:           config.DecisionModePortfolio,
			OrderQuantity:          1,
			PortfolioMinConfidence: 0.6,
			SingleMinConfidence:    0.75,
			MinQuoteBalance:        10,
			MinPositionQty:         0.0001,
			MaxOpenPositions:       3,
		},
		Window:       60,
		InitialQuote: 10000,
	}
}

func order(side ai.Action, qty float64) ai.Decision {
	return ai.NewPortfolio(ai.PortfolioDecision{
		NewOrder:        ai.NewOrder{ShouldOpen: true, Side: side, Quantity: ai.Price(qty)},
		OverallStrategy: "scripted",
		Confidence:      0.9,
	}, ai.SourceOracle)
}

func hold() ai.Decision {
	return ai.NewPortfolio(ai.PortfolioDecision{OverallStrategy: "wait", Confidence: 0.5}, ai.SourceOracle)
}

func TestEngineRun_BuyThenSellRealizesPnL(t *testing.T) {
	candles := makeCandles(linear(160, 100, 1))
	provider := NewSliceCandleProvider(candles, 60)
	steps := provider.Steps()

	call := 0
	decide := DecisionProviderFunc(func(ctx context.Context, req ai.Request) (ai.Decision, error) {
		defer func() { call++ }()
		switch call {
		case 0:
			return order(ai.ActionBuy, 1), nil
		case steps - 1:
			return order(ai.ActionSell, 1), nil
		default:
			return hold(), nil
		}
	})

	engine, err := NewEngine(testConfig(), provider, decide, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Steps != 101 || result.Decisions != 101 {
		t.Fatalf("expected 101 steps and decisions, got %d / %d", result.Steps, result.Decisions)
	}
	if result.Orders != 2 || result.Skipped != 0 || result.Failed != 0 {
		t.Fatalf("unexpected order counts %+v", result)
	}
	if !result.Summary.TotalPnL.Equal(decimal.NewFromInt(100)) || result.Summary.Wins != 1 {
		t.Errorf("expected realized pnl 100, got %+v", result.Summary)
	}
	if len(result.Trades) != 2 || result.Trades[1].LotStatus != ledger.LotExit {
		t.Errorf("unexpected trades %+v", result.Trades)
	}
	if math.Abs(result.FinalEquity-10100) > 1e-9 {
		t.Errorf("expected final equity 10100, got %f", result.FinalEquity)
	}
	if math.Abs(result.Metrics.TotalReturn-0.01) > 1e-9 || result.Metrics.MaxDrawdown != 0 {
		t.Errorf("unexpected metrics %+v", result.Metrics)
	}
	if len(result.EquityCurve) != 101 || len(result.ReturnSeries) != 100 {
		t.Errorf("unexpected series lengths %d / %d", len(result.EquityCurve), len(result.ReturnSeries))
	}
}

func TestEngineRun_NoPyramiding(t *testing.T) {
	candles := makeCandles(linear(80, 100, 1))
	decide := DecisionProviderFunc(func(ctx context.Context, req ai.Request) (ai.Decision, error) {
		return order(ai.ActionBuy, 1), nil
	})

	engine, err := NewEngine(testConfig(), NewSliceCandleProvider(candles, 60), decide, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Orders != 1 || result.Skipped != result.Steps-1 {
		t.Fatalf("expected a single BUY, got orders=%d skipped=%d steps=%d", result.Orders, result.Skipped, result.Steps)
	}
	total := 0
	for _, n := range result.SkipReasons {
		total += n
	}
	if total != result.Skipped {
		t.Errorf("skip reasons %v should account for %d skips", result.SkipReasons, result.Skipped)
	}
}

func TestEngineRun_CloseLimitedToTrackedAsset(t *testing.T) {
	candles := makeCandles(linear(70, 100, 1))
	decide := DecisionProviderFunc(func(ctx context.Context, req ai.Request) (ai.Decision, error) {
		return ai.NewPortfolio(ai.PortfolioDecision{
			PositionActions: []ai.PositionAction{{Asset: "ETH", Action: ai.ActionClose}},
			OverallStrategy: "reduce",
			Confidence:      0.9,
		}, ai.SourceOracle), nil
	})

	cfg := testConfig()
	cfg.InitialBase = 1
	engine, err := NewEngine(cfg, NewSliceCandleProvider(candles, 60), decide, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Orders != 0 || result.Skipped != result.Steps {
		t.Fatalf("untracked CLOSE must be skipped, got orders=%d skipped=%d steps=%d", result.Orders, result.Skipped, result.Steps)
	}
	if n := result.SkipReasons["ETH 不是跟踪资产 BTC"]; n != result.Steps {
		t.Errorf("expected skip reason per step, got %v", result.SkipReasons)
	}
}

// staticProvider 返回固定窗口且不检查 ctx。
type staticProvider struct {
	window []exchange.Candle
	done   bool
}

func (p *staticProvider) Next(ctx context.Context) ([]exchange.Candle, bool, error) {
	if p.done {
		return nil, false, nil
	}
	p.done = true
	return p.window, true, nil
}

func TestEngineRun_PropagatesBalanceError(t *testing.T) {
	engine, err := NewEngine(testConfig(), &staticProvider{window: makeCandles(linear(60, 100, 1))}, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected balance read error, got %v", err)
	}
}

func TestEngineRun_FallbackDecisions(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	cfg := testConfig()
	cfg.Bot.OrderQuantity = 0.01

	engine, err := NewEngine(cfg, NewSliceCandleProvider(makeCandles(closes), 60), nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Steps != 141 || result.Decisions != result.Steps {
		t.Errorf("unexpected steps %d decisions %d", result.Steps, result.Decisions)
	}
	if result.Failed != 0 {
		t.Errorf("gated fallback orders should never fail, got %d", result.Failed)
	}
}

func TestNewEngine_ValidatesConfig(t *testing.T) {
	provider := NewSliceCandleProvider(nil, 60)

	cfg := testConfig()
	cfg.Bot.Symbol = "XYZ"
	if _, err := NewEngine(cfg, provider, nil, nil); err == nil {
		t.Errorf("expected error for invalid symbol")
	}

	cfg = testConfig()
	cfg.Bot.OrderQuantity = 0
	if _, err := NewEngine(cfg, provider, nil, nil); err == nil {
		t.Errorf("expected error for zero order quantity")
	}

	if _, err := NewEngine(testConfig(), nil, nil, nil); err == nil {
		t.Errorf("expected error for nil provider")
	}
}

func TestSliceCandleProvider(t *testing.T) {
	p := NewSliceCandleProvider(makeCandles(linear(5, 1, 1)), 3)
	if p.Steps() != 3 {
		t.Fatalf("expected 3 steps, got %d", p.Steps())
	}

	var lasts []float64
	for {
		window, ok, err := p.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if len(window) != 3 {
			t.Fatalf("expected window of 3, got %d", len(window))
		}
		lasts = append(lasts, window[2].Close)
	}
	if len(lasts) != 3 || lasts[0] != 3 || lasts[2] != 5 {
		t.Errorf("unexpected windows %v", lasts)
	}
}
