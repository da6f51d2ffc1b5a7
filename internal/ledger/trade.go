// Package ledger 按 FIFO 规则从成交流水计算已实现盈亏。
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
)

// Trade 为一次成交记录，以交易所订单号唯一标识。
type Trade struct {
	OrderID         string             `json:"order_id"`
	Symbol          string             `json:"symbol"`
	Side            exchange.OrderSide `json:"side"`
	Price           decimal.Decimal    `json:"price"`
	Quantity        decimal.Decimal    `json:"quantity"`
	QuoteQty        decimal.Decimal    `json:"quote_qty"`
	Commission      decimal.Decimal    `json:"commission"`
	CommissionAsset string             `json:"commission_asset"`
	Time            time.Time          `json:"time"`
	Status          string             `json:"status"`
}

// LotStatus 为成交在 FIFO 匹配后的状态。
type LotStatus string

const (
	// 买单
	LotOpen            LotStatus = "OPEN"
	LotPartiallyClosed LotStatus = "PARTIALLY_CLOSED"
	LotClosed          LotStatus = "CLOSED"
	// 卖单
	LotExit        LotStatus = "EXIT"
	LotPartialExit LotStatus = "PARTIAL_EXIT"
)

// Entry 为附带盈亏与状态的成交。
type Entry struct {
	Trade
	// PnL 仅卖单有值。
	PnL decimal.Decimal `json:"pnl"`
	// RemainingQty 为买单尚未被卖出匹配的数量。
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	// UnmatchedQty 为卖单中找不到买入成本的数量。
	UnmatchedQty decimal.Decimal `json:"unmatched_qty"`
	LotStatus    LotStatus       `json:"lot_status"`
}
