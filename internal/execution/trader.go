package execution

import (
	"context"

	"auto-trade/internal/ledger"
)

// Trader 抽象执行器接口，方便切换真实或模拟下单。
type Trader interface {
	Execute(ctx context.Context, req OrderRequest) (Result, error)
}

// TradeSink 接收成交记录，实现方须按订单号幂等写入。
type TradeSink interface {
	SaveTrade(ctx context.Context, trade ledger.Trade) error
}

var (
	_ Trader    = (*Executor)(nil)
	_ TradeSink = (*ledger.Store)(nil)
)
