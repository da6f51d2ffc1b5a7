// Package position 从现货余额推导持仓视图。
package position

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
	"auto-trade/internal/ledger"
)

// Position 表示一项现货多头持仓。现货无空头，余额即持仓。
type Position struct {
	Asset    string          `json:"asset"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Free     decimal.Decimal `json:"free"`
	Locked   decimal.Decimal `json:"locked"`
	// 以下字段由成交流水补全，无记录时为0
	EntryPrice float64 `json:"entry_price,omitempty"`
	PnLPercent float64 `json:"pnl_percent,omitempty"`
	OpenedAt   string  `json:"opened_at,omitempty"`
}

// FromBalances 将 free+locked 不低于 minQty 的非计价资产视为持仓，按资产名排序。
func FromBalances(balances []exchange.Balance, quote string, minQty decimal.Decimal) []Position {
	quote = strings.ToUpper(quote)
	positions := make([]Position, 0, len(balances))
	for _, b := range balances {
		asset := strings.ToUpper(b.Asset)
		if asset == quote {
			continue
		}
		total := b.Total()
		if total.LessThan(minQty) || !total.IsPositive() {
			continue
		}
		positions = append(positions, Position{
			Asset:    asset,
			Symbol:   asset + quote,
			Side:     "LONG",
			Quantity: total,
			Free:     b.Free,
			Locked:   b.Locked,
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Asset < positions[j].Asset
	})
	return positions
}

// Find 按资产名查找持仓。
func Find(positions []Position, asset string) (Position, bool) {
	asset = strings.ToUpper(asset)
	for _, p := range positions {
		if p.Asset == asset {
			return p, true
		}
	}
	return Position{}, false
}

// FreeBalance 返回指定资产的可用余额。
func FreeBalance(balances []exchange.Balance, asset string) decimal.Decimal {
	asset = strings.ToUpper(asset)
	for _, b := range balances {
		if strings.ToUpper(b.Asset) == asset {
			return b.Free
		}
	}
	return decimal.Zero
}

// AttachCostBasis 用账本中未平买单计算持仓均价与浮动盈亏百分比。
// price 为 symbol 当前价，只补全与 symbol 对应的持仓。
func AttachCostBasis(positions []Position, entries []ledger.Entry, symbol string, price float64) []Position {
	out := make([]Position, len(positions))
	copy(out, positions)

	var (
		cost     = decimal.Zero
		quantity = decimal.Zero
		opened   string
	)
	for _, e := range entries {
		if e.Symbol != symbol || e.Side != exchange.SideBuy || !e.RemainingQty.IsPositive() {
			continue
		}
		cost = cost.Add(e.Price.Mul(e.RemainingQty))
		quantity = quantity.Add(e.RemainingQty)
		if opened == "" {
			opened = e.Time.Format("2006-01-02 15:04")
		}
	}
	if !quantity.IsPositive() {
		return out
	}

	entry := cost.Div(quantity).InexactFloat64()
	for i := range out {
		if out[i].Symbol != symbol {
			continue
		}
		out[i].EntryPrice = entry
		out[i].OpenedAt = opened
		if entry > 0 && price > 0 {
			out[i].PnLPercent = (price - entry) / entry * 100
		}
	}
	return out
}
