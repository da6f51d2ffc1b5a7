package ai

import (
	"strings"
	"testing"
)

func TestParseSingle(t *testing.T) {
	content := "```json\n" + `{
  "action": "buy",
  "confidence": 0.82,
  "reason": "RSI oversold with bullish MACD cross",
  "entryPrice": null,
  "stopLoss": "41,500.5",
  "takeProfit": 45000,
  "riskRewardRatio": 2.1,
  "timeframe": "short",
  "keyFactors": ["RSI", "MACD"]
}` + "\n```"

	decision, err := ParseSingle(content)
	if err != nil {
		t.Fatalf("ParseSingle returned error: %v", err)
	}
	if decision.Kind != KindSingle || decision.Source != SourceOracle || decision.Portfolio != nil {
		t.Fatalf("unexpected variant %+v", decision)
	}
	if decision.Single.Action != ActionBuy || decision.Confidence() != 0.82 {
		t.Errorf("unexpected decision %+v", decision.Single)
	}
	if decision.Single.StopLoss != 41500.5 || decision.Single.TakeProfit != 45000 || decision.Single.EntryPrice != 0 {
		t.Errorf("unexpected price levels %+v", decision.Single)
	}
	if decision.Headline() != ActionBuy || decision.Outlook() != "bullish" {
		t.Errorf("unexpected headline/outlook %s/%s", decision.Headline(), decision.Outlook())
	}
}

func TestParseSingle_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no json":        "I think you should buy",
		"bad action":     `{"action": "SHORT", "confidence": 0.5}`,
		"bad confidence": `{"action": "HOLD", "confidence": 1.5}`,
	}
	for name, content := range cases {
		if _, err := ParseSingle(content); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParsePortfolio(t *testing.T) {
	content := `Here is my answer:
{
  "positionActions": [
    {"asset": "btc", "action": "close", "reason": "take profit"},
    {"asset": "ETH", "action": "HOLD", "reason": "trend intact"}
  ],
  "newOrder": {"shouldOpen": false, "side": null, "quantity": 0.001, "reason": "wait"},
  "overallStrategy": "Lock in gains",
  "marketOutlook": "Neutral",
  "confidence": 0.7,
  "nextCheckRecommendation": "watch RSI"
}`

	decision, err := ParsePortfolio(content)
	if err != nil {
		t.Fatalf("ParsePortfolio returned error: %v", err)
	}
	p := decision.Portfolio
	if decision.Kind != KindPortfolio || p == nil || decision.Single != nil {
		t.Fatalf("unexpected variant %+v", decision)
	}
	if len(p.PositionActions) != 2 || p.PositionActions[0].Asset != "BTC" || p.PositionActions[0].Action != ActionClose {
		t.Errorf("unexpected position actions %+v", p.PositionActions)
	}
	if p.NewOrder.ShouldOpen || p.NewOrder.Quantity != 0.001 {
		t.Errorf("unexpected new order %+v", p.NewOrder)
	}
	if decision.Headline() != ActionHold || decision.Outlook() != "neutral" || decision.Strategy() != "Lock in gains" {
		t.Errorf("unexpected summary %s/%s/%s", decision.Headline(), decision.Outlook(), decision.Strategy())
	}
}

func TestParsePortfolio_OpenRequiresSide(t *testing.T) {
	_, err := ParsePortfolio(`{"newOrder": {"shouldOpen": true, "side": null, "quantity": 1}, "confidence": 0.9}`)
	if err == nil || !strings.Contains(err.Error(), "newOrder.side") {
		t.Fatalf("expected side validation error, got %v", err)
	}
}

func TestDecisionValidate_RequiresMatchingVariant(t *testing.T) {
	d := Decision{Kind: KindSingle, Portfolio: &PortfolioDecision{}}
	if err := d.Validate(); err == nil {
		t.Errorf("expected error for mismatched variant")
	}
	if err := (Decision{Kind: "other"}).Validate(); err == nil {
		t.Errorf("expected error for unknown kind")
	}
	if (Decision{}).Confidence() != 0 {
		t.Errorf("empty decision should have zero confidence")
	}
}

func TestDecisionIntent(t *testing.T) {
	single := Decision{Kind: KindSingle, Single: &SingleDecision{Action: ActionSell, Reason: "overbought"}}
	side, qty, reason, ok := single.Intent()
	if !ok || side != ActionSell || qty != 0 || reason != "overbought" {
		t.Errorf("unexpected single intent %s %v %q %v", side, qty, reason, ok)
	}

	hold := Decision{Kind: KindSingle, Single: &SingleDecision{Action: ActionHold}}
	if _, _, _, ok := hold.Intent(); ok {
		t.Errorf("HOLD should carry no order intent")
	}

	open := Decision{Kind: KindPortfolio, Portfolio: &PortfolioDecision{
		NewOrder: NewOrder{ShouldOpen: true, Side: ActionBuy, Quantity: 0.25, Reason: "breakout"},
	}}
	side, qty, reason, ok = open.Intent()
	if !ok || side != ActionBuy || qty != 0.25 || reason != "breakout" {
		t.Errorf("unexpected portfolio intent %s %v %q %v", side, qty, reason, ok)
	}

	closed := Decision{Kind: KindPortfolio, Portfolio: &PortfolioDecision{
		NewOrder: NewOrder{ShouldOpen: false, Side: ActionBuy, Quantity: 1},
	}}
	if _, _, _, ok := closed.Intent(); ok {
		t.Errorf("shouldOpen=false should carry no order intent")
	}
}
