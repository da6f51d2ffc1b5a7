package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"auto-trade/internal/config"
	"auto-trade/internal/indicator"
	"auto-trade/internal/ledger"
)

const (
	measurementIndicators = "indicators"
	measurementTrades     = "trades"
)

// Influx 使用非阻塞 WriteAPI 写入 InfluxDB。
type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *zap.Logger
	done     chan struct{}
}

var _ Sink = (*Influx)(nil)

// NewInflux 连接 InfluxDB 并检查健康状态。
func NewInflux(ctx context.Context, cfg config.InfluxConfig, logger *zap.Logger) (*Influx, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	health, err := client.Health(healthCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("metrics: 连接 InfluxDB 失败: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("metrics: InfluxDB 状态异常: %+v", health)
	}

	s := &Influx{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.drainErrors()

	logger.Info("InfluxDB 指标镜像已启用",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket),
	)
	return s, nil
}

func (s *Influx) drainErrors() {
	errs := s.writeAPI.Errors()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			s.logger.Warn("写入 InfluxDB 失败", zap.Error(err))
		case <-s.done:
			return
		}
	}
}

// RecordSnapshot 写入指标快照。
func (s *Influx) RecordSnapshot(symbol, interval string, snapshot indicator.Snapshot, strength indicator.Strength) {
	s.writeAPI.WritePoint(snapshotPoint(symbol, interval, snapshot, strength))
	s.writeAPI.Flush()
}

// RecordTrade 写入成交。
func (s *Influx) RecordTrade(trade ledger.Trade) {
	s.writeAPI.WritePoint(tradePoint(trade))
	s.writeAPI.Flush()
}

// Close 刷新缓冲并关闭连接。
func (s *Influx) Close() {
	s.writeAPI.Flush()
	close(s.done)
	s.client.Close()
}

func snapshotPoint(symbol, interval string, snapshot indicator.Snapshot, strength indicator.Strength) *write.Point {
	ts := snapshot.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return influxdb2.NewPoint(
		measurementIndicators,
		map[string]string{
			"symbol":         symbol,
			"interval":       interval,
			"recommendation": string(strength.Recommendation),
		},
		map[string]interface{}{
			"price":          snapshot.Price,
			"rsi":            snapshot.RSI.Value,
			"macd":           snapshot.MACD.Value,
			"macd_signal":    snapshot.MACD.Signal,
			"macd_histogram": snapshot.MACD.Histogram,
			"bb_upper":       snapshot.Bollinger.Upper,
			"bb_middle":      snapshot.Bollinger.Middle,
			"bb_lower":       snapshot.Bollinger.Lower,
			"stoch_k":        snapshot.Stochastic.K,
			"stoch_d":        snapshot.Stochastic.D,
			"atr":            snapshot.ATR,
			"sma20":          snapshot.SMA.SMA20,
			"sma50":          snapshot.SMA.SMA50,
			"ema12":          snapshot.EMA.EMA12,
			"ema26":          snapshot.EMA.EMA26,
			"vwap":           snapshot.VWAP.Value,
			"bullish":        strength.Bullish,
			"bearish":        strength.Bearish,
		},
		ts,
	)
}

func tradePoint(trade ledger.Trade) *write.Point {
	return influxdb2.NewPoint(
		measurementTrades,
		map[string]string{
			"symbol": trade.Symbol,
			"side":   string(trade.Side),
			"status": trade.Status,
		},
		map[string]interface{}{
			"order_id":   trade.OrderID,
			"price":      trade.Price.InexactFloat64(),
			"quantity":   trade.Quantity.InexactFloat64(),
			"quote_qty":  trade.QuoteQty.InexactFloat64(),
			"commission": trade.Commission.InexactFloat64(),
		},
		trade.Time,
	)
}
