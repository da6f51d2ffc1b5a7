package indicator

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"auto-trade/internal/exchange"
	"auto-trade/internal/fault"
)

const (
	// MinCandles 指标计算所需的最少K线数量。
	MinCandles = 50

	rsiPeriod        = 14
	macdFast         = 12
	macdSlow         = 26
	macdSignalPeriod = 9
	bollingerPeriod  = 20
	bollingerK       = 2.0
	atrPeriod        = 14
	stochKPeriod     = 14
	stochDPeriod     = 3
	rawTail          = 20
)

var (
	// ErrInsufficientData K线数量不足。
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnorderedSeries K线未按时间严格递增。
	ErrUnorderedSeries = errors.New("candle series not strictly increasing")
)

// Signal 为指标阈值判断得出的分类读数。
type Signal string

const (
	SignalOversold   Signal = "OVERSOLD"
	SignalOverbought Signal = "OVERBOUGHT"
	SignalNeutral    Signal = "NEUTRAL"
	SignalBullish    Signal = "BULLISH"
	SignalBearish    Signal = "BEARISH"
	SignalUptrend    Signal = "UPTREND"
	SignalDowntrend  Signal = "DOWNTREND"
	SignalAboveVWAP  Signal = "ABOVE_VWAP"
	SignalBelowVWAP  Signal = "BELOW_VWAP"
)

type RSIReading struct {
	Value  float64 `json:"value"`
	Signal Signal  `json:"signal"`
}

type MACDReading struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Trend     Signal  `json:"trend"`
}

type BollingerReading struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Signal Signal  `json:"signal"`
}

type StochasticReading struct {
	K      float64 `json:"k"`
	D      float64 `json:"d"`
	Signal Signal  `json:"signal"`
}

type SMAReading struct {
	SMA20 float64 `json:"sma20"`
	SMA50 float64 `json:"sma50"`
	Trend Signal  `json:"trend"`
}

type EMAReading struct {
	EMA12    float64 `json:"ema12"`
	EMA26    float64 `json:"ema26"`
	Momentum Signal  `json:"momentum"`
}

type VWAPReading struct {
	Value  float64 `json:"value"`
	Signal Signal  `json:"signal"`
}

// RawSeries 保存最近若干期的指标序列，供行情展示与提示词使用。
type RawSeries struct {
	RSI        []float64 `json:"rsi"`
	MACDLine   []float64 `json:"macd_line"`
	MACDSignal []float64 `json:"macd_signal"`
	Histogram  []float64 `json:"histogram"`
}

// Snapshot 为最新K线窗口上的一次指标计算结果。
type Snapshot struct {
	Time       time.Time         `json:"time"`
	Price      float64           `json:"current_price"`
	RSI        RSIReading        `json:"rsi"`
	MACD       MACDReading       `json:"macd"`
	Bollinger  BollingerReading  `json:"bollinger_bands"`
	Stochastic StochasticReading `json:"stochastic"`
	ATR        float64           `json:"atr"`
	SMA        SMAReading        `json:"sma"`
	EMA        EMAReading        `json:"ema"`
	VWAP       VWAPReading       `json:"vwap"`
	Raw        RawSeries         `json:"raw"`
}

// Signals 汇总各指标的分类读数。
type Signals struct {
	RSI        Signal `json:"rsi"`
	MACD       Signal `json:"macd"`
	Bollinger  Signal `json:"bb"`
	Stochastic Signal `json:"stoch"`
	Trend      Signal `json:"trend"`
	Momentum   Signal `json:"momentum"`
	VWAP       Signal `json:"vwap"`
}

// Signals 返回快照中的分类读数。
func (s Snapshot) Signals() Signals {
	return Signals{
		RSI:        s.RSI.Signal,
		MACD:       s.MACD.Trend,
		Bollinger:  s.Bollinger.Signal,
		Stochastic: s.Stochastic.Signal,
		Trend:      s.SMA.Trend,
		Momentum:   s.EMA.Momentum,
		VWAP:       s.VWAP.Signal,
	}
}

// Analyze 计算全部指标。K线少于 MinCandles 或时间非递增时返回数据错误，不返回部分结果。
func Analyze(candles []exchange.Candle) (Snapshot, error) {
	if len(candles) < MinCandles {
		return Snapshot{}, fault.Data("indicator.Analyze",
			fmt.Errorf("%w: 需要至少 %d 根K线，实际 %d 根", ErrInsufficientData, MinCandles, len(candles)))
	}

	series, err := NewSeries(candles)
	if err != nil {
		return Snapshot{}, fault.Data("indicator.Analyze", err)
	}

	snapshot := compute(series)
	if !snapshot.valid() {
		return Snapshot{}, fault.Data("indicator.Analyze",
			fmt.Errorf("%w: 指标结果包含非有限值", ErrInsufficientData))
	}
	return snapshot, nil
}

func compute(series Series) Snapshot {
	closes := series.Close
	price := Last(closes)

	rsi := RSI(closes, rsiPeriod)
	macd := MACD(closes, macdFast, macdSlow, macdSignalPeriod)
	bands := Bollinger(closes, bollingerPeriod, bollingerK)
	stoch := Stochastic(series.High, series.Low, closes, stochKPeriod, stochDPeriod)
	atr := ATR(series.High, series.Low, closes, atrPeriod)
	sma20 := SMA(closes, 20)
	sma50 := SMA(closes, 50)
	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	vwap := VWAP(series.High, series.Low, closes, series.Volume)

	snapshot := Snapshot{
		Time:  series.Timestamps[len(series.Timestamps)-1],
		Price: price,
		RSI: RSIReading{
			Value: Last(rsi),
		},
		MACD: MACDReading{
			Value:     Last(macd.Line),
			Signal:    Last(macd.Signal),
			Histogram: Last(macd.Histogram),
		},
		Bollinger: BollingerReading{
			Upper:  Last(bands.Upper),
			Middle: Last(bands.Middle),
			Lower:  Last(bands.Lower),
		},
		Stochastic: StochasticReading{
			K: Last(stoch.K),
			D: Last(stoch.D),
		},
		ATR:  Last(atr),
		SMA:  SMAReading{SMA20: Last(sma20), SMA50: Last(sma50)},
		EMA:  EMAReading{EMA12: Last(ema12), EMA26: Last(ema26)},
		VWAP: VWAPReading{Value: Last(vwap)},
		Raw: RawSeries{
			RSI:        SliceTail(rsi, rawTail),
			MACDLine:   SliceTail(macd.Line, rawTail),
			MACDSignal: SliceTail(macd.Signal, rawTail),
			Histogram:  SliceTail(macd.Histogram, rawTail),
		},
	}

	snapshot.RSI.Signal = band(snapshot.RSI.Value, 30, 70)
	snapshot.MACD.Trend = pick(snapshot.MACD.Value > snapshot.MACD.Signal, SignalBullish, SignalBearish)
	switch {
	case price < snapshot.Bollinger.Lower:
		snapshot.Bollinger.Signal = SignalOversold
	case price > snapshot.Bollinger.Upper:
		snapshot.Bollinger.Signal = SignalOverbought
	default:
		snapshot.Bollinger.Signal = SignalNeutral
	}
	snapshot.Stochastic.Signal = band(snapshot.Stochastic.K, 20, 80)
	snapshot.SMA.Trend = pick(snapshot.SMA.SMA20 > snapshot.SMA.SMA50, SignalUptrend, SignalDowntrend)
	snapshot.EMA.Momentum = pick(snapshot.EMA.EMA12 > snapshot.EMA.EMA26, SignalBullish, SignalBearish)
	snapshot.VWAP.Signal = pick(price > snapshot.VWAP.Value, SignalAboveVWAP, SignalBelowVWAP)

	return snapshot
}

func band(value, low, high float64) Signal {
	switch {
	case value < low:
		return SignalOversold
	case value > high:
		return SignalOverbought
	default:
		return SignalNeutral
	}
}

func pick(cond bool, yes, no Signal) Signal {
	if cond {
		return yes
	}
	return no
}

func (s Snapshot) valid() bool {
	values := []float64{
		s.Price, s.RSI.Value,
		s.MACD.Value, s.MACD.Signal, s.MACD.Histogram,
		s.Bollinger.Upper, s.Bollinger.Middle, s.Bollinger.Lower,
		s.Stochastic.K, s.Stochastic.D,
		s.ATR, s.SMA.SMA20, s.SMA.SMA50, s.EMA.EMA12, s.EMA.EMA26, s.VWAP.Value,
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type cacheEntry struct {
	key      string
	snapshot Snapshot
}

// Engine 在 Analyze 之上按 symbol/interval 缓存最近一次结果，报表与控制器可并发调用。
type Engine struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewEngine 创建 Engine。
func NewEngine() *Engine {
	return &Engine{
		cache: make(map[string]cacheEntry),
	}
}

// Analyze 计算指标，K线窗口未变化时直接返回缓存。
func (e *Engine) Analyze(name string, candles []exchange.Candle) (Snapshot, error) {
	if len(candles) == 0 {
		return Analyze(candles)
	}

	last := candles[len(candles)-1]
	// 未收盘的最后一根K线高低点与成交量仍会变化
	cacheKey := fmt.Sprintf("%d:%d:%d:%g:%g:%g:%g:%g", len(candles), candles[0].OpenTime.UnixMilli(), last.OpenTime.UnixMilli(),
		last.Open, last.High, last.Low, last.Close, last.Volume)

	e.mu.Lock()
	if entry, ok := e.cache[name]; ok && entry.key == cacheKey {
		e.mu.Unlock()
		return entry.snapshot, nil
	}
	e.mu.Unlock()

	snapshot, err := Analyze(candles)
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	e.cache[name] = cacheEntry{key: cacheKey, snapshot: snapshot}
	e.mu.Unlock()

	return snapshot, nil
}
