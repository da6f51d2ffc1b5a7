package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auto-trade/internal/config"
)

const binanceTestnetURL = "https://testnet.binance.vision"

// BinanceClient 基于 go-binance 原生 SDK 的现货实现，回执自带逐笔成交与手续费。
type BinanceClient struct {
	caller caller
	logger *zap.Logger
	spot   *binance.Client
}

var _ Gateway = (*BinanceClient)(nil)

// NewBinanceClient 创建 go-binance 现货客户端。
func NewBinanceClient(cfg config.ExchangeConfig, logger *zap.Logger) (*BinanceClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	spot := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.UseSandbox {
		spot.BaseURL = binanceTestnetURL
	}

	return &BinanceClient{
		caller: newCaller(cfg, logger),
		logger: logger,
		spot:   spot,
	}, nil
}

// FetchCandles 获取K线。
func (c *BinanceClient) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	sym, err := ParseSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	var klines []*binance.Kline
	err = c.caller.call(ctx, fmt.Sprintf("klines_%s", interval), func(ctx context.Context) error {
		res, err := c.spot.NewKlinesService().
			Symbol(sym.String()).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		if err != nil {
			return err
		}
		klines = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		candles = append(candles, Candle{
			OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
			CloseTime: time.UnixMilli(k.CloseTime).UTC(),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
		})
	}
	return candles, nil
}

// Fetch24hStats 获取24小时统计。
func (c *BinanceClient) Fetch24hStats(ctx context.Context, symbol string) (Ticker24h, error) {
	sym, err := ParseSymbol(symbol)
	if err != nil {
		return Ticker24h{}, err
	}

	var stats []*binance.PriceChangeStats
	err = c.caller.call(ctx, "ticker_24h", func(ctx context.Context) error {
		res, err := c.spot.NewListPriceChangeStatsService().Symbol(sym.String()).Do(ctx)
		if err != nil {
			return err
		}
		stats = res
		return nil
	})
	if err != nil {
		return Ticker24h{}, err
	}
	if len(stats) == 0 || stats[0] == nil {
		return Ticker24h{}, fmt.Errorf("exchange: %s 无24小时统计数据", sym)
	}

	s := stats[0]
	return Ticker24h{
		Symbol:             sym.String(),
		LastPrice:          parseFloat(s.LastPrice),
		PriceChangePercent: parseFloat(s.PriceChangePercent),
		HighPrice:          parseFloat(s.HighPrice),
		LowPrice:           parseFloat(s.LowPrice),
		Volume:             parseFloat(s.Volume),
	}, nil
}

// FetchBalances 返回 free 或 locked 大于零的资产。
func (c *BinanceClient) FetchBalances(ctx context.Context) ([]Balance, error) {
	var account *binance.Account
	err := c.caller.call(ctx, "account", func(ctx context.Context) error {
		res, err := c.spot.NewGetAccountService().Do(ctx)
		if err != nil {
			return err
		}
		account = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	balances := make([]Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		free := parseDecimal(b.Free)
		locked := parseDecimal(b.Locked)
		if !free.IsPositive() && !locked.IsPositive() {
			continue
		}
		balances = append(balances, Balance{
			Asset:  strings.ToUpper(b.Asset),
			Free:   free,
			Locked: locked,
		})
	}
	sortBalances(balances)
	return balances, nil
}

// PlaceMarketOrder 提交市价单，只尝试一次。
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol string, side OrderSide, qty decimal.Decimal) (OrderResult, error) {
	sym, err := ParseSymbol(symbol)
	if err != nil {
		return OrderResult{}, err
	}
	if !qty.IsPositive() {
		return OrderResult{}, fmt.Errorf("exchange: 下单数量必须为正: %s", qty)
	}

	sideType := binance.SideTypeBuy
	if side == SideSell {
		sideType = binance.SideTypeSell
	}

	var resp *binance.CreateOrderResponse
	err = c.caller.attempt(ctx, func(ctx context.Context) error {
		res, err := c.spot.NewCreateOrderService().
			Symbol(sym.String()).
			Side(sideType).
			Type(binance.OrderTypeMarket).
			Quantity(qty.String()).
			Do(ctx)
		if err != nil {
			return err
		}
		resp = res
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

	result := convertBinanceOrder(side, resp)
	c.logger.Info("市价单已提交",
		zap.String("symbol", result.Symbol),
		zap.String("order_id", result.OrderID),
		zap.String("status", result.Status),
		zap.String("executed_qty", result.ExecutedQty.String()),
	)
	return result, nil
}

func convertBinanceOrder(side OrderSide, resp *binance.CreateOrderResponse) OrderResult {
	if resp == nil {
		return OrderResult{Side: side}
	}

	result := OrderResult{
		OrderID:            strconv.FormatInt(resp.OrderID, 10),
		Symbol:             resp.Symbol,
		Side:               side,
		Status:             string(resp.Status),
		ExecutedQty:        parseDecimal(resp.ExecutedQuantity),
		CumulativeQuoteQty: parseDecimal(resp.CummulativeQuoteQuantity),
		Price:              parseDecimal(resp.Price),
		TransactTime:       time.UnixMilli(resp.TransactTime).UTC(),
	}
	for _, f := range resp.Fills {
		if f == nil {
			continue
		}
		result.Fills = append(result.Fills, Fill{
			Price:           parseDecimal(f.Price),
			Quantity:        parseDecimal(f.Quantity),
			Commission:      parseDecimal(f.Commission),
			CommissionAsset: strings.ToUpper(f.CommissionAsset),
		})
	}
	return result
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
