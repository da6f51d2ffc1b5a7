package exchange

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"auto-trade/internal/config"
)

// New 按 driver 构造交易所实现。
func New(cfg config.ExchangeConfig, logger *zap.Logger) (Gateway, error) {
	switch cfg.Driver {
	case config.DriverBinance:
		return NewBinanceClient(cfg, logger)
	case config.DriverCCXT, "":
		return NewClient(cfg, logger)
	default:
		return nil, fmt.Errorf("exchange: 不支持的 driver %q", cfg.Driver)
	}
}

// MarketDataService 聚合K线、24小时统计与账户余额获取。
type MarketDataService struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewMarketDataService 创建市场数据服务。
func NewMarketDataService(gateway Gateway, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		gateway: gateway,
		logger:  logger,
	}
}

// GetSnapshot 并发拉取K线、24小时统计与余额，任一失败即整体失败。
func (s *MarketDataService) GetSnapshot(ctx context.Context, req SnapshotRequest) (Snapshot, error) {
	if req.Limit <= 0 {
		req.Limit = 100
	}
	if req.Interval == "" {
		req.Interval = "1h"
	}

	var (
		candles  []Candle
		ticker   Ticker24h
		balances []Balance
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		data, err := s.gateway.FetchCandles(groupCtx, req.Symbol, req.Interval, req.Limit)
		if err != nil {
			return fmt.Errorf("获取K线失败: %w", err)
		}
		candles = data
		return nil
	})

	group.Go(func() error {
		data, err := s.gateway.Fetch24hStats(groupCtx, req.Symbol)
		if err != nil {
			return fmt.Errorf("获取24小时统计失败: %w", err)
		}
		ticker = data
		return nil
	})

	group.Go(func() error {
		data, err := s.gateway.FetchBalances(groupCtx)
		if err != nil {
			return fmt.Errorf("获取账户余额失败: %w", err)
		}
		balances = data
		return nil
	})

	if err := group.Wait(); err != nil {
		return Snapshot{}, err
	}

	snapshot := Snapshot{
		Symbol:      req.Symbol,
		Interval:    req.Interval,
		Candles:     candles,
		Ticker:      ticker,
		Balances:    balances,
		RetrievedAt: time.Now().UTC(),
	}

	s.logger.Debug("市场数据快照获取完成",
		zap.String("symbol", snapshot.Symbol),
		zap.Time("retrieved_at", snapshot.RetrievedAt),
		zap.Int("candle_count", len(snapshot.Candles)),
		zap.Int("balance_count", len(snapshot.Balances)),
		zap.Float64("last_price", snapshot.Ticker.LastPrice),
	)

	return snapshot, nil
}

// GetCandles 仅拉取K线，供报表与回放使用。
func (s *MarketDataService) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return s.gateway.FetchCandles(ctx, symbol, interval, limit)
}
