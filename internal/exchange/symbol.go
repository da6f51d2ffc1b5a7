package exchange

import (
	"fmt"
	"strings"
	"time"
)

// 按长度降序匹配，避免 USDT 被 USD 截断
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY"}

// Symbol 拆分后的交易对。
type Symbol struct {
	Base  string
	Quote string
}

// ParseSymbol 解析 BTCUSDT 或 BTC/USDT 形式的交易对。
func ParseSymbol(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return Symbol{}, fmt.Errorf("exchange: 交易对不能为空")
	}
	if idx := strings.Index(s, ":"); idx > 0 {
		s = s[:idx]
	}
	if base, quote, ok := strings.Cut(s, "/"); ok {
		if base == "" || quote == "" {
			return Symbol{}, fmt.Errorf("exchange: 无法解析交易对 %q", raw)
		}
		return Symbol{Base: base, Quote: quote}, nil
	}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: strings.TrimSuffix(s, quote), Quote: quote}, nil
		}
	}
	return Symbol{}, fmt.Errorf("exchange: 无法识别计价资产 %q", raw)
}

// String 返回 Binance 原生格式，例如 BTCUSDT。
func (s Symbol) String() string {
	return s.Base + s.Quote
}

// Pair 返回 ccxt 统一格式，例如 BTC/USDT。
func (s Symbol) Pair() string {
	return s.Base + "/" + s.Quote
}

// WithBase 以相同计价资产构造另一交易对。
func (s Symbol) WithBase(base string) Symbol {
	return Symbol{Base: strings.ToUpper(base), Quote: s.Quote}
}

// IntervalDuration 将 1m/1h/1d/1w 等周期转换为时长。
func IntervalDuration(interval string) (time.Duration, error) {
	s := strings.TrimSpace(interval)
	if len(s) < 2 {
		return 0, fmt.Errorf("exchange: 非法K线周期 %q", interval)
	}
	var n int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("exchange: 非法K线周期 %q", interval)
	}
	unit := s[len(s)-1]
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'M':
		return time.Duration(n) * 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("exchange: 非法K线周期 %q", interval)
	}
}
