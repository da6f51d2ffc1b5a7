package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Candle 代表单根K线，按 OpenTime 升序排列。
type Candle struct {
	OpenTime  time.Time `json:"openTime"`
	CloseTime time.Time `json:"closeTime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Ticker24h 为24小时行情统计。
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"lastPrice"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	HighPrice          float64 `json:"highPrice"`
	LowPrice           float64 `json:"lowPrice"`
	Volume             float64 `json:"volume"`
}

// Balance 为单个资产的余额。
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Total 返回可用与冻结之和。
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// OrderSide 表示下单方向。
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// ParseSide 解析大小写不敏感的方向字符串。
func ParseSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", fmt.Errorf("exchange: 非法下单方向 %q", s)
	}
}

// Fill 为订单的单笔成交明细。
type Fill struct {
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"qty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
}

// OrderResult 为市价单提交后的交易所回执。
type OrderResult struct {
	OrderID            string          `json:"orderId"`
	Symbol             string          `json:"symbol"`
	Side               OrderSide       `json:"side"`
	Status             string          `json:"status"`
	ExecutedQty        decimal.Decimal `json:"executedQty"`
	CumulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Price              decimal.Decimal `json:"price"`
	Fills              []Fill          `json:"fills"`
	TransactTime       time.Time       `json:"transactTime"`
}

// MarketData 提供行情查询。
type MarketData interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Fetch24hStats(ctx context.Context, symbol string) (Ticker24h, error)
}

// Trading 提供账户余额与下单能力。
type Trading interface {
	FetchBalances(ctx context.Context) ([]Balance, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal) (OrderResult, error)
}

// Gateway 聚合行情与交易两类能力。
type Gateway interface {
	MarketData
	Trading
}

// Snapshot 为单轮评估所需的行情与账户快照。
type Snapshot struct {
	Symbol      string    `json:"symbol"`
	Interval    string    `json:"interval"`
	Candles     []Candle  `json:"candles"`
	Ticker      Ticker24h `json:"ticker"`
	Balances    []Balance `json:"balances"`
	RetrievedAt time.Time `json:"retrievedAt"`
}

// SnapshotRequest 控制一次快照采集的参数。
type SnapshotRequest struct {
	Symbol   string
	Interval string
	Limit    int
}
