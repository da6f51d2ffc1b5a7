// Package metrics 把指标快照与成交镜像到时序库。
package metrics

import (
	"context"

	"go.uber.org/zap"

	"auto-trade/internal/config"
	"auto-trade/internal/indicator"
	"auto-trade/internal/ledger"
)

// Sink 接收每个周期的指标与成交。写入失败只记录日志，不影响交易链路。
type Sink interface {
	RecordSnapshot(symbol, interval string, snapshot indicator.Snapshot, strength indicator.Strength)
	RecordTrade(trade ledger.Trade)
	Close()
}

// Nop 丢弃全部数据。
type Nop struct{}

func (Nop) RecordSnapshot(string, string, indicator.Snapshot, indicator.Strength) {}
func (Nop) RecordTrade(ledger.Trade) {}
func (Nop) Close() {}

// New 按配置创建 Sink，未启用时返回 Nop。
func New(ctx context.Context, cfg config.MetricsConfig, logger *zap.Logger) (Sink, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewInflux(ctx, cfg.Influx, logger)
}
