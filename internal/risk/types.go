package risk

import (
	"github.com/shopspring/decimal"

	"auto-trade/internal/ai"
	"auto-trade/internal/exchange"
	"auto-trade/internal/position"
)

// Limits 为开仓门槛。
type Limits struct {
	PortfolioMinConfidence float64
	SingleMinConfidence    float64
	MinQuoteBalance        decimal.Decimal
	MinPositionQty         decimal.Decimal
}

// Proposal 为待提交的新订单。
type Proposal struct {
	Kind       ai.Kind
	Symbol     exchange.Symbol
	Side       exchange.OrderSide
	Quantity   decimal.Decimal
	Confidence float64
}

// Account 为评估时刻的账户视图。
type Account struct {
	Balances  []exchange.Balance
	Positions []position.Position
}

// Check 记录单项门槛的判定结果。
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}
