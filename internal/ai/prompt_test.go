package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
	"auto-trade/internal/feature"
	"auto-trade/internal/ledger"
	"auto-trade/internal/position"
)

func promptMarket(n int) feature.MarketContext {
	candles := make([]exchange.Candle, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price := 100 + float64(i)
		candles[i] = exchange.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     price, High: price + 1, Low: price - 1, Close: price, Volume: 10,
		}
	}
	return feature.MarketContext{Symbol: "BTCUSDT", CurrentPrice: 130, Candles: candles}
}

func TestBuildPrompt_Single(t *testing.T) {
	prompt, err := BuildPrompt(Request{Kind: KindSingle, Market: promptMarket(30)})
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if !strings.Contains(prompt, "BTCUSDT") || !strings.Contains(prompt, "130.00") {
		t.Errorf("prompt missing market data:\n%s", prompt)
	}
	if !strings.Contains(prompt, "最近 5 根K线") || strings.Contains(prompt, "K6:") {
		t.Errorf("single prompt should carry exactly 5 candles:\n%s", prompt)
	}
	if !strings.Contains(prompt, "C 129.00") {
		t.Errorf("expected the latest candle in prompt")
	}
}

func TestBuildPrompt_PortfolioTradesNewestFirst(t *testing.T) {
	trades := make([]ledger.Trade, 7)
	for i := range trades {
		trades[i] = ledger.Trade{
			Side:     exchange.SideBuy,
			Price:    decimal.NewFromInt(int64(1000 + i)),
			Quantity: decimal.NewFromInt(1),
		}
	}

	prompt, err := BuildPrompt(Request{
		Kind:          KindPortfolio,
		Market:        promptMarket(30),
		RecentTrades:  trades,
		OrderQuantity: 0.001,
	})
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if !strings.Contains(prompt, "最近 20 根K线") {
		t.Errorf("portfolio prompt should carry 20 candles")
	}
	if !strings.Contains(prompt, "无持仓") {
		t.Errorf("expected empty positions marker")
	}
	if !strings.Contains(prompt, "成交1: BUY 价格 1006.00") || strings.Contains(prompt, "1001.00") {
		t.Errorf("expected latest 5 trades newest first:\n%s", prompt)
	}
}

func TestBuildPrompt_PortfolioListsPositions(t *testing.T) {
	prompt, err := BuildPrompt(Request{
		Kind:   KindPortfolio,
		Market: promptMarket(30),
		Positions: []position.Position{
			{Asset: "BTC", Side: "LONG", Quantity: decimal.RequireFromString("0.5")},
			{Asset: "ETH", Side: "LONG", Quantity: decimal.NewFromInt(2)},
		},
	})
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if !strings.Contains(prompt, "持仓资产: BTC, ETH (共 2 个)") {
		t.Errorf("expected position summary line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "持仓1: BTC 数量 0.5 方向 LONG") {
		t.Errorf("expected first position line:\n%s", prompt)
	}
}

func TestBuildPrompt_UnknownKind(t *testing.T) {
	if _, err := BuildPrompt(Request{Kind: "x"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
