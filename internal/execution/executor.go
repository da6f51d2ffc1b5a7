// Package execution 提交市价单并把回执写入成交账本。
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"auto-trade/internal/exchange"
	"auto-trade/internal/fault"
)

const saveTimeout = 5 * time.Second

// Executor 将订单请求转化为交易所市价单与成交记录。
type Executor struct {
	trading exchange.Trading
	sink    TradeSink
	logger  *zap.Logger
}

// NewExecutor 创建执行器，sink 为空时只下单不记账。
func NewExecutor(trading exchange.Trading, sink TradeSink, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		trading: trading,
		sink:    sink,
		logger:  logger,
	}
}

// Execute 提交单笔市价单。
// 下单失败返回 fault.KindUpstream；下单成功但记账失败时返回结果与 fault.KindPersistence。
func (e *Executor) Execute(ctx context.Context, req OrderRequest) (Result, error) {
	result := Result{Request: req}

	if !req.Quantity.IsPositive() {
		return result, fault.Constraint("execution", "下单数量必须为正: %s", req.Quantity)
	}
	if req.Side != exchange.SideBuy && req.Side != exchange.SideSell {
		return result, fault.Constraint("execution", "非法下单方向 %q", req.Side)
	}

	order, err := e.trading.PlaceMarketOrder(ctx, req.Symbol.String(), req.Side, req.Quantity)
	if err != nil {
		return result, fault.Upstream("execution", fmt.Errorf("提交 %s %s 失败: %w", req.Side, req.Symbol, err))
	}
	if order.OrderID == "" {
		return result, fault.Upstream("execution", errors.New("交易所回执缺少订单号"))
	}

	result.Order = order
	result.Trade = ToTrade(order, req.Symbol, req.Side, req.Quantity)
	result.ExecutedAt = time.Now().UTC()

	e.logger.Info("订单已执行",
		zap.String("source", string(req.Source)),
		zap.String("symbol", result.Trade.Symbol),
		zap.String("side", string(result.Trade.Side)),
		zap.String("order_id", result.Trade.OrderID),
		zap.String("status", order.Status),
		zap.String("price", result.Trade.Price.String()),
		zap.String("quantity", result.Trade.Quantity.String()),
	)

	if e.sink == nil || !Recordable(order.Status) {
		return result, nil
	}
	// 已成交的订单必须入账，不受下单超时影响
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := e.sink.SaveTrade(saveCtx, result.Trade); err != nil {
		return result, fault.Persistence("execution", err)
	}
	result.Recorded = true
	return result, nil
}
