package execution

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
	"auto-trade/internal/ledger"
)

// ToTrade 将交易所回执转换为成交记录。
// 均价优先取 cumQuote/executedQty，成交量为0时回退到委托价；
// 成交量为0时记录请求数量；手续费按成交明细累加，无明细时手续费资产取计价资产。
func ToTrade(result exchange.OrderResult, symbol exchange.Symbol, side exchange.OrderSide, requested decimal.Decimal) ledger.Trade {
	qty := result.ExecutedQty
	price := result.Price
	if qty.IsPositive() && result.CumulativeQuoteQty.IsPositive() {
		price = result.CumulativeQuoteQty.Div(qty)
	}
	if !qty.IsPositive() {
		qty = requested
	}

	quoteQty := result.CumulativeQuoteQty
	if !quoteQty.IsPositive() {
		quoteQty = price.Mul(qty)
	}

	commission := decimal.Zero
	commissionAsset := symbol.Quote
	for i, f := range result.Fills {
		commission = commission.Add(f.Commission)
		if i == 0 && f.CommissionAsset != "" {
			commissionAsset = strings.ToUpper(f.CommissionAsset)
		}
	}

	ts := result.TransactTime
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if result.Side != "" {
		side = result.Side
	}

	return ledger.Trade{
		OrderID:         result.OrderID,
		Symbol:          symbol.String(),
		Side:            side,
		Price:           price,
		Quantity:        qty,
		QuoteQty:        quoteQty,
		Commission:      commission,
		CommissionAsset: commissionAsset,
		Time:            ts,
		Status:          result.Status,
	}
}

// Recordable 判断回执是否应计入账本：已成交或已受理的订单都记录。
func Recordable(status string) bool {
	switch strings.ToUpper(status) {
	case "FILLED", "PARTIALLY_FILLED", "NEW":
		return true
	}
	return false
}
