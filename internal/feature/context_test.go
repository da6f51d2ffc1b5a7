package feature

import (
	"testing"
	"time"

	"auto-trade/internal/exchange"
	"auto-trade/internal/indicator"
)

func TestBuild(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]exchange.Candle, 30)
	for i := range candles {
		candles[i] = exchange.Candle{OpenTime: start.Add(time.Duration(i) * time.Hour), Close: float64(100 + i)}
	}

	snapshot := exchange.Snapshot{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Candles:  candles,
		Ticker:   exchange.Ticker24h{PriceChangePercent: 1.5, HighPrice: 130, LowPrice: 99},
	}
	ind := indicator.Snapshot{
		Price: 129,
		RSI:   indicator.RSIReading{Signal: indicator.SignalOversold},
		MACD:  indicator.MACDReading{Trend: indicator.SignalBullish},
		SMA:   indicator.SMAReading{Trend: indicator.SignalUptrend},
		EMA:   indicator.EMAReading{Momentum: indicator.SignalBullish},
	}

	ctx := Build(snapshot, ind, 20)
	if ctx.CurrentPrice != 129 {
		t.Errorf("missing ticker price should fall back to last close, got %f", ctx.CurrentPrice)
	}
	if len(ctx.Candles) != 20 || ctx.Candles[0].Close != 110 {
		t.Fatalf("expected trailing 20 candles, got %d starting at %f", len(ctx.Candles), ctx.Candles[0].Close)
	}
	if ctx.Strength.Recommendation != indicator.RecommendBuy || ctx.Strength.Bullish != 4 {
		t.Errorf("unexpected strength %+v", ctx.Strength)
	}
	recent := ctx.Recent(5)
	if len(recent) != 5 || recent[4].Close != 129 {
		t.Errorf("unexpected recent candles %+v", recent)
	}
}
