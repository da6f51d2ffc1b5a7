package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auto-trade/internal/config"
)

type spotClient interface {
	FetchOHLCV(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error)
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
}

// Client 通过 ccxt 访问 Binance 现货，并实现超时与重试。
type Client struct {
	caller      caller
	logger      *zap.Logger
	exchange    spotClient
	loadMarkets func() error

	marketsMu     sync.Mutex
	marketsLoaded bool
}

var _ Gateway = (*Client)(nil)

// NewClient 构造 Binance 现货客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"timeout":         cfg.RequestTimeout.Milliseconds(),
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return newClient(cfg, ex, func() error {
		_, err := ex.LoadMarkets()
		return err
	}, logger), nil
}

func newClient(cfg config.ExchangeConfig, ex spotClient, loadMarkets func() error, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loadMarkets == nil {
		loadMarkets = func() error { return nil }
	}
	return &Client{
		caller:      newCaller(cfg, logger),
		logger:      logger,
		exchange:    ex,
		loadMarkets: loadMarkets,
	}
}

// FetchCandles 获取指定周期的K线数据。
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	sym, err := ParseSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}
	span, err := IntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	var raw []ccxt.OHLCV
	err = c.caller.call(ctx, fmt.Sprintf("fetch_ohlcv_%s", interval), func(ctx context.Context) error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}

		result, err := c.exchange.FetchOHLCV(
			sym.Pair(),
			ccxt.WithFetchOHLCVTimeframe(interval),
			ccxt.WithFetchOHLCVLimit(int64(limit)),
		)
		if err != nil {
			return err
		}

		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		open := time.UnixMilli(item.Timestamp).UTC()
		candles = append(candles, Candle{
			OpenTime:  open,
			CloseTime: open.Add(span - time.Millisecond),
			Open:      item.Open,
			High:      item.High,
			Low:       item.Low,
			Close:     item.Close,
			Volume:    item.Volume,
		})
	}

	return candles, nil
}

// Fetch24hStats 获取24小时行情统计。
func (c *Client) Fetch24hStats(ctx context.Context, symbol string) (Ticker24h, error) {
	sym, err := ParseSymbol(symbol)
	if err != nil {
		return Ticker24h{}, err
	}

	var raw ccxt.Ticker
	err = c.caller.call(ctx, "fetch_ticker", func(ctx context.Context) error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		ticker, err := c.exchange.FetchTicker(sym.Pair())
		if err != nil {
			return err
		}
		raw = ticker
		return nil
	})
	if err != nil {
		return Ticker24h{}, err
	}

	return Ticker24h{
		Symbol:             sym.String(),
		LastPrice:          derefFloat(raw.Last),
		PriceChangePercent: derefFloat(raw.Percentage),
		HighPrice:          derefFloat(raw.High),
		LowPrice:           derefFloat(raw.Low),
		Volume:             derefFloat(raw.BaseVolume),
	}, nil
}

// FetchBalances 获取非零余额，冻结部分由 total-free 推出。
func (c *Client) FetchBalances(ctx context.Context) ([]Balance, error) {
	var raw ccxt.Balances
	err := c.caller.call(ctx, "fetch_balance", func(ctx context.Context) error {
		balances, err := c.exchange.FetchBalance()
		if err != nil {
			return err
		}
		raw = balances
		return nil
	})
	if err != nil {
		return nil, err
	}

	assets := make(map[string]struct{}, len(raw.Total)+len(raw.Free))
	for code := range raw.Total {
		assets[code] = struct{}{}
	}
	for code := range raw.Free {
		assets[code] = struct{}{}
	}

	balances := make([]Balance, 0, len(assets))
	for code := range assets {
		free := decimalFromPtr(raw.Free[code])
		total := decimalFromPtr(raw.Total[code])
		locked := total.Sub(free)
		if locked.IsNegative() {
			locked = decimal.Zero
		}
		if !free.IsPositive() && !locked.IsPositive() {
			continue
		}
		balances = append(balances, Balance{
			Asset:  strings.ToUpper(code),
			Free:   free,
			Locked: locked,
		})
	}
	sortBalances(balances)

	return balances, nil
}

// PlaceMarketOrder 提交市价单，不做重试以免重复下单。
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal) (OrderResult, error) {
	sym, err := ParseSymbol(symbol)
	if err != nil {
		return OrderResult{}, err
	}
	if !qty.IsPositive() {
		return OrderResult{}, fmt.Errorf("exchange: 下单数量必须为正: %s", qty)
	}

	var raw ccxt.Order
	// 下单只尝试一次：超时后无法确认是否成交，重试可能重复建仓
	err = c.caller.attempt(ctx, func(ctx context.Context) error {
		if err := c.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		order, err := c.exchange.CreateMarketOrder(sym.Pair(), strings.ToLower(string(side)), qty.InexactFloat64())
		if err != nil {
			return err
		}
		raw = order
		return nil
	})
	if err != nil {
		normalized, _ := classifyError(err)
		c.logger.Error("市价单提交失败",
			zap.String("symbol", sym.String()),
			zap.String("side", string(side)),
			zap.String("qty", qty.String()),
			zap.Error(normalized),
		)
		return OrderResult{}, normalized
	}

	result := convertOrder(sym, side, raw)
	c.logger.Info("市价单已提交",
		zap.String("symbol", result.Symbol),
		zap.String("order_id", result.OrderID),
		zap.String("status", result.Status),
		zap.String("executed_qty", result.ExecutedQty.String()),
	)
	return result, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.loadMarkets(); err != nil {
		return err
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载")
	return nil
}
