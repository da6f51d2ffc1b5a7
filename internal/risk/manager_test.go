package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"auto-trade/internal/ai"
	"auto-trade/internal/exchange"
	"auto-trade/internal/fault"
	"auto-trade/internal/position"
)

func testManager() *Manager {
	return NewManager(Limits{
		PortfolioMinConfidence: 0.6,
		SingleMinConfidence:    0.75,
		MinQuoteBalance:        decimal.NewFromInt(10),
		MinPositionQty:         decimal.RequireFromString("0.0001"),
	}, nil)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func account(balances ...exchange.Balance) Account {
	return Account{
		Balances:  balances,
		Positions: position.FromBalances(balances, "USDT", d("0.0001")),
	}
}

var btcusdt = exchange.Symbol{Base: "BTC", Quote: "USDT"}

func TestEvaluate_BuyRejectedWhenPositionExists(t *testing.T) {
	m := testManager()
	acct := account(
		exchange.Balance{Asset: "BTC", Free: d("0.01")},
		exchange.Balance{Asset: "USDT", Free: d("1000")},
	)

	for _, confidence := range []float64{0.61, 0.9, 1} {
		_, err := m.Evaluate(Proposal{
			Kind: ai.KindPortfolio, Symbol: btcusdt, Side: exchange.SideBuy,
			Quantity: d("0.001"), Confidence: confidence,
		}, acct)
		if !fault.Is(err, fault.KindConstraint) {
			t.Fatalf("confidence %.2f: expected constraint violation, got %v", confidence, err)
		}
	}
}

func TestEvaluate_BuyRequiresQuoteBalance(t *testing.T) {
	m := testManager()
	p := Proposal{Kind: ai.KindPortfolio, Symbol: btcusdt, Side: exchange.SideBuy, Quantity: d("0.001"), Confidence: 0.8}

	checks, err := m.Evaluate(p, account(exchange.Balance{Asset: "USDT", Free: d("10")}))
	if !fault.Is(err, fault.KindConstraint) {
		t.Fatalf("expected quote balance violation at exactly 10, got %v", err)
	}
	if last := checks[len(checks)-1]; last.Name != "quote_balance" || last.Passed {
		t.Errorf("unexpected last check %+v", last)
	}

	checks, err = m.Evaluate(p, account(exchange.Balance{Asset: "USDT", Free: d("10.5")}))
	if err != nil {
		t.Fatalf("expected buy to pass, got %v", err)
	}
	if len(checks) != 3 {
		t.Errorf("expected 3 checks, got %d", len(checks))
	}
}

func TestEvaluate_DustIsNotAPosition(t *testing.T) {
	m := testManager()
	_, err := m.Evaluate(Proposal{
		Kind: ai.KindPortfolio, Symbol: btcusdt, Side: exchange.SideBuy, Quantity: d("0.001"), Confidence: 0.8,
	}, account(
		exchange.Balance{Asset: "BTC", Free: d("0.00001")},
		exchange.Balance{Asset: "USDT", Free: d("100")},
	))
	if err != nil {
		t.Fatalf("dust balance should not block a buy: %v", err)
	}
}

func TestEvaluate_ConfidenceThresholdByKind(t *testing.T) {
	m := testManager()
	acct := account(exchange.Balance{Asset: "USDT", Free: d("100")})

	cases := []struct {
		kind       ai.Kind
		confidence float64
		pass       bool
	}{
		{ai.KindPortfolio, 0.6, false},
		{ai.KindPortfolio, 0.61, true},
		{ai.KindSingle, 0.7, false},
		{ai.KindSingle, 0.75, false},
		{ai.KindSingle, 0.76, true},
	}
	for _, tc := range cases {
		_, err := m.Evaluate(Proposal{
			Kind: tc.kind, Symbol: btcusdt, Side: exchange.SideBuy, Quantity: d("0.001"), Confidence: tc.confidence,
		}, acct)
		if (err == nil) != tc.pass {
			t.Errorf("%s %.2f: pass=%v err=%v", tc.kind, tc.confidence, tc.pass, err)
		}
	}
}

func TestEvaluate_SellRequiresBaseQuantity(t *testing.T) {
	m := testManager()
	p := Proposal{Kind: ai.KindPortfolio, Symbol: btcusdt, Side: exchange.SideSell, Quantity: d("0.5"), Confidence: 0.9}

	if _, err := m.Evaluate(p, account(exchange.Balance{Asset: "BTC", Free: d("0.4"), Locked: d("0.2")})); !fault.Is(err, fault.KindConstraint) {
		t.Fatalf("locked balance must not count toward a sell, got %v", err)
	}
	if _, err := m.Evaluate(p, account(exchange.Balance{Asset: "BTC", Free: d("0.5")})); err != nil {
		t.Fatalf("expected sell to pass with exact balance, got %v", err)
	}
}

func TestEvaluate_RejectsNonPositiveQuantity(t *testing.T) {
	m := testManager()
	_, err := m.Evaluate(Proposal{Kind: ai.KindSingle, Symbol: btcusdt, Side: exchange.SideSell, Confidence: 0.9}, Account{})
	if !fault.Is(err, fault.KindConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}
