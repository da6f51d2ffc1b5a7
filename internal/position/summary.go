package position

import "github.com/shopspring/decimal"

// Summary 为持仓概览。
type Summary struct {
	OpenCount int      `json:"open_count"`
	Assets    []string `json:"assets"`
}

// Summarize 汇总持仓数量与资产列表。
func Summarize(positions []Position) Summary {
	summary := Summary{OpenCount: len(positions), Assets: make([]string, 0, len(positions))}
	for _, p := range positions {
		summary.Assets = append(summary.Assets, p.Asset)
	}
	return summary
}

// EmptySummary 返回空持仓概览。
func EmptySummary() Summary {
	return Summary{Assets: []string{}}
}

// HasExposure 判断资产是否达到持仓阈值。
func HasExposure(positions []Position, asset string, minQty decimal.Decimal) bool {
	p, ok := Find(positions, asset)
	return ok && p.Quantity.GreaterThanOrEqual(minQty)
}
