package indicator

// Recommendation 为信号汇总后的方向建议。
type Recommendation string

const (
	RecommendBuy  Recommendation = "BUY"
	RecommendSell Recommendation = "SELL"
	RecommendHold Recommendation = "HOLD"
)

// Strength 统计多空信号数量。
type Strength struct {
	Bullish        int            `json:"bullish"`
	Bearish        int            `json:"bearish"`
	Total          int            `json:"total"`
	Recommendation Recommendation `json:"recommendation"`
}

// Margin 返回多空计数之差的绝对值。
func (s Strength) Margin() int {
	if s.Bullish > s.Bearish {
		return s.Bullish - s.Bearish
	}
	return s.Bearish - s.Bullish
}

// Aggregate 对六个方向性信号计票，VWAP 只做展示不参与计票。
// 一方需领先超过1票才给出 BUY/SELL，否则 HOLD。
func Aggregate(signals Signals) Strength {
	var s Strength

	vote := func(sig, bullish, bearish Signal) {
		switch sig {
		case bullish:
			s.Bullish++
		case bearish:
			s.Bearish++
		}
	}

	vote(signals.RSI, SignalOversold, SignalOverbought)
	vote(signals.MACD, SignalBullish, SignalBearish)
	vote(signals.Bollinger, SignalOversold, SignalOverbought)
	vote(signals.Stochastic, SignalOversold, SignalOverbought)
	vote(signals.Trend, SignalUptrend, SignalDowntrend)
	vote(signals.Momentum, SignalBullish, SignalBearish)

	s.Total = s.Bullish + s.Bearish
	switch {
	case s.Bullish > s.Bearish+1:
		s.Recommendation = RecommendBuy
	case s.Bearish > s.Bullish+1:
		s.Recommendation = RecommendSell
	default:
		s.Recommendation = RecommendHold
	}
	return s
}

// Strength 返回快照的信号汇总。
func (s Snapshot) Strength() Strength {
	return Aggregate(s.Signals())
}
