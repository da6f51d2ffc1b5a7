package backtest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
)

// Simulator 模拟单一交易对的现货账户，按当前K线收盘价即时成交。
type Simulator struct {
	symbol  exchange.Symbol
	feeRate decimal.Decimal

	base  decimal.Decimal
	quote decimal.Decimal
	price decimal.Decimal
	now   time.Time

	nextID        int
	equityHistory []float64
	returnHistory []float64
	tradeCount    int
}

var _ exchange.Trading = (*Simulator)(nil)

func NewSimulator(symbol exchange.Symbol, initialBase, initialQuote, feeRate float64) *Simulator {
	return &Simulator{
		symbol:  symbol,
		feeRate: decimal.NewFromFloat(feeRate),
		base:    decimal.NewFromFloat(initialBase),
		quote:   decimal.NewFromFloat(initialQuote),
	}
}

// Advance 推进到新K线并记录权益。
func (s *Simulator) Advance(candle exchange.Candle) {
	if candle.Close <= 0 {
		return
	}
	prev := 0.0
	if n := len(s.equityHistory); n > 0 {
		prev = s.equityHistory[n-1]
	}

	s.price = decimal.NewFromFloat(candle.Close)
	s.now = candle.CloseTime
	equity := s.Equity()
	if prev > 0 {
		s.returnHistory = append(s.returnHistory, equity/prev-1)
	}
	s.equityHistory = append(s.equityHistory, equity)
}

// FetchBalances 返回非零余额。
func (s *Simulator) FetchBalances(ctx context.Context) ([]exchange.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	balances := make([]exchange.Balance, 0, 2)
	if s.base.IsPositive() {
		balances = append(balances, exchange.Balance{Asset: s.symbol.Base, Free: s.base})
	}
	if s.quote.IsPositive() {
		balances = append(balances, exchange.Balance{Asset: s.symbol.Quote, Free: s.quote})
	}
	return balances, nil
}

// PlaceMarketOrder 以当前价全部成交，手续费按计价资产扣除。
func (s *Simulator) PlaceMarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, qty decimal.Decimal) (exchange.OrderResult, error) {
	if symbol != s.symbol.String() {
		return exchange.OrderResult{}, fmt.Errorf("backtest: 模拟账户只支持 %s，收到 %s", s.symbol, symbol)
	}
	if !s.price.IsPositive() {
		return exchange.OrderResult{}, fmt.Errorf("backtest: 尚无成交价格")
	}
	if !qty.IsPositive() {
		return exchange.OrderResult{}, fmt.Errorf("backtest: 下单数量必须为正: %s", qty)
	}

	notional := qty.Mul(s.price)
	fee := notional.Mul(s.feeRate)

	switch side {
	case exchange.SideBuy:
		cost := notional.Add(fee)
		if s.quote.LessThan(cost) {
			return exchange.OrderResult{}, fmt.Errorf("backtest: %s 余额不足: 需要 %s，可用 %s", s.symbol.Quote, cost, s.quote)
		}
		s.quote = s.quote.Sub(cost)
		s.base = s.base.Add(qty)
	case exchange.SideSell:
		if s.base.LessThan(qty) {
			return exchange.OrderResult{}, fmt.Errorf("backtest: %s 余额不足: 需要 %s，可用 %s", s.symbol.Base, qty, s.base)
		}
		s.base = s.base.Sub(qty)
		s.quote = s.quote.Add(notional.Sub(fee))
	default:
		return exchange.OrderResult{}, fmt.Errorf("backtest: 非法下单方向 %q", side)
	}

	s.nextID++
	s.tradeCount++
	return exchange.OrderResult{
		OrderID:            "sim-" + strconv.Itoa(s.nextID),
		Symbol:             s.symbol.String(),
		Side:               side,
		Status:             "FILLED",
		ExecutedQty:        qty,
		CumulativeQuoteQty: notional,
		Price:              s.price,
		Fills: []exchange.Fill{{
			Price:           s.price,
			Quantity:        qty,
			Commission:      fee,
			CommissionAsset: s.symbol.Quote,
		}},
		TransactTime: s.now,
	}, nil
}

// Equity 以当前价计算账户总权益。
func (s *Simulator) Equity() float64 {
	return s.quote.Add(s.base.Mul(s.price)).InexactFloat64()
}

func (s *Simulator) TradeCount() int {
	return s.tradeCount
}

func (s *Simulator) EquityHistory() []float64 {
	return append([]float64(nil), s.equityHistory...)
}

func (s *Simulator) ReturnHistory() []float64 {
	return append([]float64(nil), s.returnHistory...)
}
