package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
	"auto-trade/internal/ledger"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFromBalances(t *testing.T) {
	balances := []exchange.Balance{
		{Asset: "USDT", Free: dec("500")},
		{Asset: "ETH", Free: dec("0.2"), Locked: dec("0.1")},
		{Asset: "BTC", Free: dec("0.00005"), Locked: dec("0.00004")},
		{Asset: "DOGE", Free: dec("0.00001")},
	}

	positions := FromBalances(balances, "USDT", dec("0.0001"))
	if len(positions) != 1 {
		t.Fatalf("expected only ETH to count as a position, got %+v", positions)
	}
	eth := positions[0]
	if eth.Asset != "ETH" || eth.Symbol != "ETHUSDT" || !eth.Quantity.Equal(dec("0.3")) {
		t.Errorf("unexpected position %+v", eth)
	}

	// free+locked 合计 0.00009 仍低于阈值
	if HasExposure(positions, "BTC", dec("0.0001")) {
		t.Errorf("dust balance should not be an open position")
	}
	if !HasExposure(positions, "eth", dec("0.0001")) {
		t.Errorf("expected ETH exposure")
	}
	if !FreeBalance(balances, "usdt").Equal(dec("500")) {
		t.Errorf("unexpected free USDT")
	}
}

func TestAttachCostBasis(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := ledger.Evaluate([]ledger.Trade{
		{OrderID: "1", Symbol: "BTCUSDT", Side: exchange.SideBuy, Price: dec("100"), Quantity: dec("1"), Time: start},
		{OrderID: "2", Symbol: "BTCUSDT", Side: exchange.SideBuy, Price: dec("110"), Quantity: dec("1"), Time: start.Add(time.Hour)},
		{OrderID: "3", Symbol: "BTCUSDT", Side: exchange.SideSell, Price: dec("120"), Quantity: dec("1.5"), Time: start.Add(2 * time.Hour)},
	})

	positions := []Position{{Asset: "BTC", Symbol: "BTCUSDT", Quantity: dec("0.5")}}
	got := AttachCostBasis(positions, entries, "BTCUSDT", 121)
	if got[0].EntryPrice != 110 {
		t.Errorf("expected entry 110, got %f", got[0].EntryPrice)
	}
	if got[0].PnLPercent < 9.99 || got[0].PnLPercent > 10.01 {
		t.Errorf("expected ~10%% pnl, got %f", got[0].PnLPercent)
	}
	if positions[0].EntryPrice != 0 {
		t.Errorf("input positions must not be modified")
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Position{{Asset: "BTC"}, {Asset: "ETH"}})
	if s.OpenCount != 2 || len(s.Assets) != 2 {
		t.Errorf("unexpected summary %+v", s)
	}
	if EmptySummary().OpenCount != 0 {
		t.Errorf("empty summary should have no positions")
	}
}
