// Package feature 组装提交给决策模型的行情上下文。
package feature

import (
	"time"

	"auto-trade/internal/exchange"
	"auto-trade/internal/indicator"
)

// MarketContext 汇总行情、24小时统计与指标结果。
type MarketContext struct {
	Symbol             string             `json:"symbol"`
	Interval           string             `json:"interval"`
	CurrentPrice       float64            `json:"current_price"`
	PriceChangePercent float64            `json:"price_change_percent"`
	HighPrice          float64            `json:"high_price"`
	LowPrice           float64            `json:"low_price"`
	Volume             float64            `json:"volume"`
	Indicators         indicator.Snapshot `json:"indicators"`
	Strength           indicator.Strength `json:"strength"`
	Candles            []exchange.Candle  `json:"candles"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// Build 从行情快照与指标结果组装上下文，仅保留最近 tail 根K线。
// 24小时统计缺失最新价时用最后一根K线收盘价代替。
func Build(snapshot exchange.Snapshot, indicators indicator.Snapshot, tail int) MarketContext {
	price := snapshot.Ticker.LastPrice
	if price <= 0 {
		price = indicators.Price
	}

	return MarketContext{
		Symbol:             snapshot.Symbol,
		Interval:           snapshot.Interval,
		CurrentPrice:       price,
		PriceChangePercent: snapshot.Ticker.PriceChangePercent,
		HighPrice:          snapshot.Ticker.HighPrice,
		LowPrice:           snapshot.Ticker.LowPrice,
		Volume:             snapshot.Ticker.Volume,
		Indicators:         indicators,
		Strength:           indicators.Strength(),
		Candles:            TailCandles(snapshot.Candles, tail),
		GeneratedAt:        time.Now().UTC(),
	}
}

// TailCandles 返回最近 n 根K线的副本。
func TailCandles(candles []exchange.Candle, n int) []exchange.Candle {
	if n <= 0 || len(candles) == 0 {
		return nil
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	out := make([]exchange.Candle, len(candles))
	copy(out, candles)
	return out
}

// Recent 返回上下文中最近 n 根K线，用于单标的提示词。
func (m MarketContext) Recent(n int) []exchange.Candle {
	return TailCandles(m.Candles, n)
}
