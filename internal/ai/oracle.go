package ai

import (
	"context"
	"fmt"
	"math"

	"auto-trade/internal/feature"
	"auto-trade/internal/indicator"
	"auto-trade/internal/ledger"
	"auto-trade/internal/position"
)

// Request 为一次决策所需的全部输入。
type Request struct {
	Kind             Kind
	Market           feature.MarketContext
	Positions        []position.Position
	RecentTrades     []ledger.Trade
	OrderQuantity    float64
	MaxOpenPositions int
}

// Oracle 根据行情与持仓给出交易决策。
type Oracle interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// OracleFunc 允许使用函数实现 Oracle。
type OracleFunc func(ctx context.Context, req Request) (Decision, error)

// Decide 调用函数本身。
func (f OracleFunc) Decide(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// FallbackOracle 只依据指标给出确定性决策，不访问任何外部服务。
type FallbackOracle struct{}

var _ Oracle = FallbackOracle{}

// Decide 返回 Fallback 结果。
func (FallbackOracle) Decide(_ context.Context, req Request) (Decision, error) {
	return Fallback(req), nil
}

// Fallback 为模型不可用时的指标决策。
func Fallback(req Request) Decision {
	if req.Kind == KindPortfolio {
		return portfolioFallback(req)
	}
	return singleFallback(req)
}

// fallbackConfidence 以多空票差放大信心度，上限 0.9。
func fallbackConfidence(strength indicator.Strength) float64 {
	return math.Min(0.9, 0.5+float64(strength.Margin())*0.1)
}

func singleFallback(req Request) Decision {
	ind := req.Market.Indicators
	strength := req.Market.Strength

	action := ActionHold
	confidence := 0.5
	switch strength.Recommendation {
	case indicator.RecommendBuy:
		action = ActionBuy
		confidence = fallbackConfidence(strength)
	case indicator.RecommendSell:
		action = ActionSell
		confidence = fallbackConfidence(strength)
	}

	return NewSingle(SingleDecision{
		Action:     action,
		Confidence: confidence,
		Reason: fmt.Sprintf("Based on technical analysis: RSI %s, MACD %s, Trend %s. Bullish signals: %d, Bearish signals: %d.",
			ind.RSI.Signal, ind.MACD.Trend, ind.SMA.Trend, strength.Bullish, strength.Bearish),
		Timeframe: "short",
		KeyFactors: []string{
			"RSI: " + string(ind.RSI.Signal),
			"MACD: " + string(ind.MACD.Trend),
			"Trend: " + string(ind.SMA.Trend),
		},
	}, SourceFallback)
}

func portfolioFallback(req Request) Decision {
	ind := req.Market.Indicators
	maxOpen := req.MaxOpenPositions
	if maxOpen <= 0 {
		maxOpen = 3
	}

	actions := make([]PositionAction, 0, len(req.Positions))
	for _, p := range req.Positions {
		actions = append(actions, PositionAction{
			Asset:  p.Asset,
			Action: ActionHold,
			Reason: "Maintaining position based on current market conditions",
		})
	}

	order := NewOrder{
		Quantity: Price(req.OrderQuantity),
		Reason:   "No clear trading opportunity at this time",
	}
	if len(req.Positions) < maxOpen {
		switch {
		case ind.RSI.Signal == indicator.SignalOversold && ind.MACD.Trend == indicator.SignalBullish:
			order.ShouldOpen, order.Side = true, ActionBuy
		case ind.RSI.Signal == indicator.SignalOverbought && ind.MACD.Trend == indicator.SignalBearish:
			order.ShouldOpen, order.Side = true, ActionSell
		}
	}
	if order.ShouldOpen {
		order.Reason = fmt.Sprintf("Strong %s signal detected based on indicators", order.Side)
	}

	outlook := "neutral"
	switch ind.SMA.Trend {
	case indicator.SignalUptrend:
		outlook = "bullish"
	case indicator.SignalDowntrend:
		outlook = "bearish"
	}

	return NewPortfolio(PortfolioDecision{
		PositionActions: actions,
		NewOrder:        order,
		OverallStrategy: "Conservative approach - waiting for clear signals",
		MarketOutlook:   outlook,
		Confidence:      fallbackConfidence(req.Market.Strength),
		NextCheck:       "Monitor RSI and MACD for convergence signals",
	}, SourceFallback)
}
