package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
)

type lot struct {
	entry     int
	price     decimal.Decimal
	remaining decimal.Decimal
}

// Evaluate 按时间顺序重放全部成交，返回按时间升序排列的结果。
// 不修改入参，相同输入总得到相同输出；不同交易对各自维护买入队列。
func Evaluate(trades []Trade) []Entry {
	entries := make([]Entry, len(trades))
	for i, t := range trades {
		entries[i] = Entry{Trade: t}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Before(entries[j].Time)
	})

	queues := make(map[string][]*lot)

	for i := range entries {
		e := &entries[i]
		qty := e.Quantity
		if qty.IsNegative() {
			qty = decimal.Zero
		}

		switch e.Side {
		case exchange.SideBuy:
			e.RemainingQty = qty
			if qty.IsPositive() {
				queues[e.Symbol] = append(queues[e.Symbol], &lot{entry: i, price: e.Price, remaining: qty})
			}
		case exchange.SideSell:
			queue := queues[e.Symbol]
			left := qty
			pnl := decimal.Zero
			for left.IsPositive() && len(queue) > 0 {
				head := queue[0]
				consumed := decimal.Min(left, head.remaining)
				pnl = pnl.Add(e.Price.Sub(head.price).Mul(consumed))
				head.remaining = head.remaining.Sub(consumed)
				entries[head.entry].RemainingQty = head.remaining
				left = left.Sub(consumed)
				if !head.remaining.IsPositive() {
					queue = queue[1:]
				}
			}
			queues[e.Symbol] = queue

			e.PnL = pnl
			e.UnmatchedQty = left
			if left.IsPositive() {
				e.LotStatus = LotPartialExit
			} else {
				e.LotStatus = LotExit
			}
		}
	}

	for i := range entries {
		e := &entries[i]
		if e.Side != exchange.SideBuy {
			continue
		}
		switch {
		case !e.RemainingQty.IsPositive():
			e.LotStatus = LotClosed
		case e.RemainingQty.Equal(e.Quantity):
			e.LotStatus = LotOpen
		default:
			e.LotStatus = LotPartiallyClosed
		}
	}

	return entries
}

// Reverse 返回倒序副本，用于最近优先的展示。
func Reverse(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}
