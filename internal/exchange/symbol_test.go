package exchange

import (
	"testing"
	"time"
)

func TestParseSymbol(t *testing.T) {
	cases := []struct {
		raw   string
		base  string
		quote string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"btc/usdt", "BTC", "USDT"},
		{"ETH/USDC:USDC", "ETH", "USDC"},
		{"ETHBTC", "ETH", "BTC"},
		{"SOLFDUSD", "SOL", "FDUSD"},
	}
	for _, tc := range cases {
		sym, err := ParseSymbol(tc.raw)
		if err != nil {
			t.Fatalf("ParseSymbol(%q) error: %v", tc.raw, err)
		}
		if sym.Base != tc.base || sym.Quote != tc.quote {
			t.Errorf("ParseSymbol(%q) = %+v, want %s/%s", tc.raw, sym, tc.base, tc.quote)
		}
	}

	if _, err := ParseSymbol("XYZ"); err == nil {
		t.Errorf("expected error for unknown quote")
	}

	sym, _ := ParseSymbol("BTCUSDT")
	if sym.Pair() != "BTC/USDT" || sym.WithBase("eth").String() != "ETHUSDT" {
		t.Errorf("unexpected formatting: %s %s", sym.Pair(), sym.WithBase("eth"))
	}
}

func TestIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"1m":  time.Minute,
		"15m": 15 * time.Minute,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := IntervalDuration(in)
		if err != nil || got != want {
			t.Errorf("IntervalDuration(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := IntervalDuration("h"); err == nil {
		t.Errorf("expected error for malformed interval")
	}
}
