package ledger

import (
	"context"
	"testing"

	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s, err := NewStore(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_SaveTradeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tr := trade("42", exchange.SideBuy, "0.5", "100", 0)
	tr.Commission = d("0.0005")
	tr.CommissionAsset = "BTC"

	for i := 0; i < 3; i++ {
		if err := s.SaveTrade(ctx, tr); err != nil {
			t.Fatalf("SaveTrade #%d: %v", i, err)
		}
	}

	n, err := s.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 trade, got %d", n)
	}

	trades, err := s.ListTrades(ctx, "BTCUSDT", 0)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	got := trades[0]
	if !got.Price.Equal(tr.Price) || !got.Quantity.Equal(tr.Quantity) || !got.Commission.Equal(tr.Commission) {
		t.Errorf("stored trade differs: %+v", got)
	}
	if !got.Time.Equal(tr.Time) {
		t.Errorf("stored time %s, want %s", got.Time, tr.Time)
	}
}

func TestStore_FillCorrectsPendingTrade(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	pending := trade("7", exchange.SideBuy, "1", "100", 0)
	pending.Status = "NEW"
	if err := s.SaveTrade(ctx, pending); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	filled := trade("7", exchange.SideBuy, "0.8", "101", 0)
	filled.Commission = d("0.0008")
	filled.CommissionAsset = "BTC"
	if err := s.SaveTrade(ctx, filled); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	trades, err := s.ListTrades(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	got := trades[0]
	if got.Status != "FILLED" || !got.Quantity.Equal(d("0.8")) || !got.Price.Equal(d("101")) {
		t.Fatalf("fill must replace pending quantity and price, got %+v", got)
	}
	if !got.QuoteQty.Equal(d("80.8")) || !got.Commission.Equal(d("0.0008")) || got.CommissionAsset != "BTC" {
		t.Errorf("fill must replace quote and commission, got %+v", got)
	}
}

func TestStore_FilledStatusIsFinal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	filled := trade("7", exchange.SideBuy, "1", "100", 0)
	if err := s.SaveTrade(ctx, filled); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	stale := trade("7", exchange.SideBuy, "2", "999", 0)
	stale.Status = "NEW"
	if err := s.SaveTrade(ctx, stale); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	trades, err := s.ListTrades(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if trades[0].Status != "FILLED" {
		t.Errorf("expected FILLED to stick, got %s", trades[0].Status)
	}
	if !trades[0].Price.Equal(d("100")) || !trades[0].Quantity.Equal(d("1")) {
		t.Errorf("filled trade must not be rewritten, got %+v", trades[0])
	}
}

func TestStore_ListTradesLimitKeepsMostRecentAscending(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, id := range []string{"a", "b", "c", "d"} {
		if err := s.SaveTrade(ctx, trade(id, exchange.SideBuy, "1", "100", i)); err != nil {
			t.Fatalf("SaveTrade: %v", err)
		}
	}
	other := trade("x", exchange.SideBuy, "1", "10", 10)
	other.Symbol = "ETHUSDT"
	if err := s.SaveTrade(ctx, other); err != nil {
		t.Fatalf("SaveTrade: %v", err)
	}

	trades, err := s.ListTrades(ctx, "BTCUSDT", 2)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 2 || trades[0].OrderID != "c" || trades[1].OrderID != "d" {
		t.Fatalf("unexpected trades %+v", trades)
	}
}
