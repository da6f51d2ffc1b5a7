package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
	"auto-trade/internal/ledger"
)

// Source 标识订单的发起方。
type Source string

const (
	SourceCycle     Source = "cycle"
	SourceClose     Source = "close"
	SourceManual    Source = "manual"
	SourceLiquidate Source = "liquidate"
)

// OrderRequest 描述一笔市价单。
type OrderRequest struct {
	Symbol   exchange.Symbol
	Side     exchange.OrderSide
	Quantity decimal.Decimal
	Source   Source
	Reason   string
}

// Result 为执行结果摘要。
type Result struct {
	Request    OrderRequest         `json:"-"`
	Order      exchange.OrderResult `json:"order"`
	Trade      ledger.Trade         `json:"trade"`
	Recorded   bool                 `json:"recorded"`
	ExecutedAt time.Time            `json:"executed_at"`
}
