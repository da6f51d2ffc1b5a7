package ledger

import (
	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
)

// Summary 汇总已实现盈亏。
type Summary struct {
	TotalTrades  int             `json:"total_trades"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
	Wins         int             `json:"wins"`
	Losses       int             `json:"losses"`
	WinRate      float64         `json:"win_rate"`
	OpenQuantity decimal.Decimal `json:"open_quantity"`
}

// Summarize 统计卖单盈亏，胜率为盈利笔数占有盈亏卖单的百分比。
func Summarize(entries []Entry) Summary {
	summary := Summary{
		TotalTrades:  len(entries),
		TotalPnL:     decimal.Zero,
		OpenQuantity: decimal.Zero,
	}

	for _, e := range entries {
		switch e.Side {
		case exchange.SideSell:
			summary.TotalPnL = summary.TotalPnL.Add(e.PnL)
			switch {
			case e.PnL.IsPositive():
				summary.Wins++
			case e.PnL.IsNegative():
				summary.Losses++
			}
		case exchange.SideBuy:
			summary.OpenQuantity = summary.OpenQuantity.Add(e.RemainingQty)
		}
	}

	decided := summary.Wins + summary.Losses
	if decided < 1 {
		decided = 1
	}
	summary.WinRate = float64(summary.Wins) / float64(decided) * 100

	return summary
}
