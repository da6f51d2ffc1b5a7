package cycle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"auto-trade/internal/ai"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/execution"
	"auto-trade/internal/risk"
)

var btcusdt = exchange.Symbol{Base: "BTC", Quote: "USDT"}

func testPlanner() Planner {
	limits := risk.LimitsFromConfig(config.BotConfig{
		PortfolioMinConfidence: 0.6,
		SingleMinConfidence:    0.75,
		MinQuoteBalance:        10,
		MinPositionQty:         0.0001,
	})
	return Planner{Risk: risk.NewManager(limits, nil), OrderQuantity: 0.01}
}

func account(balances ...exchange.Balance) risk.Account {
	return risk.Account{
		Balances:  balances,
		Positions: TrackedPositions(balances, btcusdt, decimal.RequireFromString("0.0001")),
	}
}

func TestTrackedPositions_OnlyBaseAsset(t *testing.T) {
	positions := TrackedPositions([]exchange.Balance{
		{Asset: "BNB", Free: decimal.NewFromInt(1)},
		{Asset: "BTC", Free: decimal.RequireFromString("0.5")},
		{Asset: "ETH", Free: decimal.NewFromInt(2)},
		{Asset: "USDT", Free: decimal.NewFromInt(1000)},
	}, btcusdt, decimal.RequireFromString("0.0001"))

	if len(positions) != 1 || positions[0].Asset != "BTC" {
		t.Fatalf("expected BTC only, got %+v", positions)
	}
}

func TestDecide_FallsBack(t *testing.T) {
	req := ai.Request{Kind: ai.KindPortfolio}

	cases := map[string]ai.Oracle{
		"error": ai.OracleFunc(func(ctx context.Context, req ai.Request) (ai.Decision, error) {
			return ai.Decision{}, errors.New("unreachable")
		}),
		"wrong kind": ai.OracleFunc(func(ctx context.Context, req ai.Request) (ai.Decision, error) {
			return ai.NewSingle(ai.SingleDecision{Action: ai.ActionBuy, Confidence: 0.9}, ai.SourceOracle), nil
		}),
		"invalid": ai.OracleFunc(func(ctx context.Context, req ai.Request) (ai.Decision, error) {
			return ai.Decision{Kind: ai.KindPortfolio}, nil
		}),
	}
	for name, oracle := range cases {
		t.Run(name, func(t *testing.T) {
			decision, err := Decide(context.Background(), oracle, req)
			if err == nil {
				t.Fatalf("expected fallback reason")
			}
			if decision.Source != ai.SourceFallback || decision.Kind != ai.KindPortfolio {
				t.Errorf("expected portfolio fallback, got %+v", decision)
			}
		})
	}

	want := ai.NewPortfolio(ai.PortfolioDecision{OverallStrategy: "hold", Confidence: 0.5}, ai.SourceOracle)
	decision, err := Decide(context.Background(), ai.OracleFunc(func(ctx context.Context, req ai.Request) (ai.Decision, error) {
		return want, nil
	}), req)
	if err != nil || decision.Source != ai.SourceOracle {
		t.Fatalf("expected oracle decision, got %+v %v", decision, err)
	}
}

func TestPlan_CloseScopedToTrackedAsset(t *testing.T) {
	decision := ai.NewPortfolio(ai.PortfolioDecision{
		PositionActions: []ai.PositionAction{
			{Asset: "eth", Action: ai.ActionClose},
			{Asset: "BTC", Action: ai.ActionClose, Reason: "take profit"},
			{Asset: "BTC", Action: ai.ActionHold},
		},
		Confidence: 0.7,
	}, ai.SourceOracle)
	acct := account(
		exchange.Balance{Asset: "BTC", Free: decimal.RequireFromString("1.5"), Locked: decimal.RequireFromString("0.5")},
		exchange.Balance{Asset: "ETH", Free: decimal.NewFromInt(3)},
		exchange.Balance{Asset: "USDT", Free: decimal.NewFromInt(1000)},
	)

	steps := testPlanner().Plan(decision, btcusdt, acct)
	if len(steps) != 2 {
		t.Fatalf("expected two CLOSE steps, got %+v", steps)
	}
	if !steps[0].Skipped || !strings.Contains(steps[0].Reason, "不是跟踪资产") {
		t.Errorf("ETH close should be skipped, got %+v", steps[0])
	}
	sell := steps[1]
	if sell.Skipped || sell.Order.Symbol != btcusdt || !sell.Order.Quantity.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("BTC close should sell free quantity, got %+v", sell)
	}
	if sell.Order.Source != execution.SourceClose || sell.Order.Side != exchange.SideSell {
		t.Errorf("unexpected close order %+v", sell.Order)
	}
}

func TestPlan_CloseWithoutPosition(t *testing.T) {
	decision := ai.NewPortfolio(ai.PortfolioDecision{
		PositionActions: []ai.PositionAction{{Asset: "BTC", Action: ai.ActionClose}},
		Confidence:      0.7,
	}, ai.SourceOracle)

	steps := testPlanner().Plan(decision, btcusdt, account(exchange.Balance{Asset: "USDT", Free: decimal.NewFromInt(1000)}))
	if len(steps) != 1 || !steps[0].Skipped || steps[0].Reason != ReasonNoPosition {
		t.Fatalf("expected skipped close, got %+v", steps)
	}
}

func TestPlan_OpenGatedOnStartingSnapshot(t *testing.T) {
	decision := ai.NewPortfolio(ai.PortfolioDecision{
		PositionActions: []ai.PositionAction{{Asset: "BTC", Action: ai.ActionClose}},
		NewOrder:        ai.NewOrder{ShouldOpen: true, Side: ai.ActionBuy, Reason: "breakout"},
		Confidence:      0.9,
	}, ai.SourceOracle)
	acct := account(
		exchange.Balance{Asset: "BTC", Free: decimal.NewFromInt(1)},
		exchange.Balance{Asset: "USDT", Free: decimal.NewFromInt(1000)},
	)

	steps := testPlanner().Plan(decision, btcusdt, acct)
	if len(steps) != 2 {
		t.Fatalf("expected CLOSE then OPEN, got %+v", steps)
	}
	open := steps[1]
	if open.Kind != StepOpen || !open.Skipped || open.Reason == "" || len(open.Checks) == 0 {
		t.Fatalf("BUY must be rejected while the position is held, got %+v", open)
	}
	if !open.Order.Quantity.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("missing quantity should default to configured size, got %s", open.Order.Quantity)
	}
}

func TestPlan_SingleHighThreshold(t *testing.T) {
	acct := account(exchange.Balance{Asset: "USDT", Free: decimal.NewFromInt(1000)})

	low := ai.NewSingle(ai.SingleDecision{Action: ai.ActionBuy, Confidence: 0.7}, ai.SourceOracle)
	steps := testPlanner().Plan(low, btcusdt, acct)
	if len(steps) != 1 || !steps[0].Skipped {
		t.Fatalf("0.7 must not pass the single threshold, got %+v", steps)
	}

	high := ai.NewSingle(ai.SingleDecision{Action: ai.ActionBuy, Confidence: 0.8}, ai.SourceOracle)
	steps = testPlanner().Plan(high, btcusdt, acct)
	if len(steps) != 1 || steps[0].Skipped || steps[0].Order.Source != execution.SourceCycle {
		t.Fatalf("0.8 should pass, got %+v", steps)
	}

	hold := ai.NewSingle(ai.SingleDecision{Action: ai.ActionHold, Confidence: 0.9}, ai.SourceOracle)
	if steps := testPlanner().Plan(hold, btcusdt, acct); len(steps) != 0 {
		t.Errorf("HOLD should plan nothing, got %+v", steps)
	}
}
