package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// 所有函数只返回有定义的部分：第一个输出对应第一个完整窗口，数据不足时返回 nil。

// SMA 简单移动平均，输出长度为 len(values)-period+1。
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	return trimLookback(talib.Sma(values, period), period-1)
}

// EMA 指数移动平均，以前 period 个值的 SMA 为种子，乘数 2/(period+1)。
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	return trimLookback(talib.Ema(values, period), period-1)
}

// RSI 使用 Wilder 平滑，首个输出对应第 period 根K线；平均亏损为0时记为100。
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) <= period {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiValue(avgGain, avgLoss))
	for i := period + 1; i < len(closes); i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

func splitChange(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACDSeries 保存右对齐后的 MACD 线、信号线与柱状图。
// Histogram 与 Signal 等长，Line 更长，三者末尾对应同一根K线。
type MACDSeries struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD 计算快慢 EMA 之差及其信号线。
func MACD(closes []float64, fast, slow, signal int) MACDSeries {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	if len(fastEMA) == 0 || len(slowEMA) == 0 {
		return MACDSeries{}
	}

	// 两条 EMA 起点不同，按较短者右对齐
	n := min(len(fastEMA), len(slowEMA))
	fastEMA = fastEMA[len(fastEMA)-n:]
	slowEMA = slowEMA[len(slowEMA)-n:]

	line := make([]float64, n)
	for i := range line {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := EMA(line, signal)
	if len(signalLine) == 0 {
		return MACDSeries{Line: line}
	}

	offset := len(line) - len(signalLine)
	hist := make([]float64, len(signalLine))
	for i := range hist {
		hist[i] = line[i+offset] - signalLine[i]
	}

	return MACDSeries{Line: line, Signal: signalLine, Histogram: hist}
}

// BandSeries 保存布林带上中下轨。
type BandSeries struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger 中轨为 SMA，带宽为 k 倍总体标准差。
func Bollinger(closes []float64, period int, k float64) BandSeries {
	if period <= 0 || len(closes) < period {
		return BandSeries{}
	}
	upper, middle, lower := talib.BBands(closes, period, k, k, talib.SMA)
	return BandSeries{
		Upper:  trimLookback(upper, period-1),
		Middle: trimLookback(middle, period-1),
		Lower:  trimLookback(lower, period-1),
	}
}

// ATR 真实波幅的 Wilder 平均，首个输出为前 period 个真实波幅的均值。
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := min(len(highs), len(lows), len(closes))
	if period <= 0 || n <= period {
		return nil
	}

	trueRanges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		tr := math.Max(highs[i]-lows[i], math.Max(
			math.Abs(highs[i]-closes[i-1]),
			math.Abs(lows[i]-closes[i-1]),
		))
		trueRanges = append(trueRanges, tr)
	}

	atr := 0.0
	for _, tr := range trueRanges[:period] {
		atr += tr
	}
	atr /= float64(period)

	out := make([]float64, 0, len(trueRanges)-period+1)
	out = append(out, atr)
	for _, tr := range trueRanges[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
		out = append(out, atr)
	}
	return out
}

// StochasticSeries 保存 %K 与 %D。
type StochasticSeries struct {
	K []float64
	D []float64
}

// Stochastic 计算随机指标；窗口内最高价等于最低价时 %K 取 50。
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) StochasticSeries {
	n := min(len(highs), len(lows), len(closes))
	if kPeriod <= 0 || n < kPeriod {
		return StochasticSeries{}
	}

	k := make([]float64, 0, n-kPeriod+1)
	for i := kPeriod - 1; i < n; i++ {
		highest := highs[i-kPeriod+1]
		lowest := lows[i-kPeriod+1]
		for j := i - kPeriod + 2; j <= i; j++ {
			highest = math.Max(highest, highs[j])
			lowest = math.Min(lowest, lows[j])
		}
		if highest == lowest {
			k = append(k, 50)
			continue
		}
		k = append(k, (closes[i]-lowest)/(highest-lowest)*100)
	}

	return StochasticSeries{K: k, D: SMA(k, dPeriod)}
}

// VWAP 从序列起点累计的成交量加权均价，典型价为 (high+low+close)/3。
// 累计成交量仍为0时沿用典型价。
func VWAP(highs, lows, closes, volumes []float64) []float64 {
	n := min(len(highs), len(lows), len(closes), len(volumes))
	if n == 0 {
		return nil
	}

	out := make([]float64, n)
	var cumPV, cumVolume float64
	for i := 0; i < n; i++ {
		typical := (highs[i] + lows[i] + closes[i]) / 3
		cumPV += typical * volumes[i]
		cumVolume += volumes[i]
		if cumVolume == 0 {
			out[i] = typical
			continue
		}
		out[i] = cumPV / cumVolume
	}
	return out
}

func trimLookback(values []float64, lookback int) []float64 {
	if lookback >= len(values) {
		return nil
	}
	out := make([]float64, len(values)-lookback)
	copy(out, values[lookback:])
	return out
}
