package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
bot:
  symbol: ethusdt
  decision_mode: SINGLE
  cycle_timeout: 90s
exchange:
  driver: Binance
database:
  in_memory: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Bot.Symbol != "ETHUSDT" {
		t.Errorf("expected normalized symbol ETHUSDT, got %s", cfg.Bot.Symbol)
	}
	if cfg.Bot.DecisionMode != DecisionModeSingle {
		t.Errorf("expected decision mode single, got %s", cfg.Bot.DecisionMode)
	}
	if cfg.Exchange.Driver != DriverBinance {
		t.Errorf("expected driver binance, got %s", cfg.Exchange.Driver)
	}
	if cfg.Bot.CycleTimeout != 90*time.Second {
		t.Errorf("expected cycle timeout 90s, got %s", cfg.Bot.CycleTimeout)
	}
	if cfg.Bot.PortfolioMinConfidence != 0.6 || cfg.Bot.SingleMinConfidence != 0.75 {
		t.Errorf("unexpected confidence defaults: %+v", cfg.Bot)
	}
	if cfg.Bot.MaxOpenPositions != 3 {
		t.Errorf("expected max open positions 3, got %d", cfg.Bot.MaxOpenPositions)
	}
	if cfg.Exchange.Retry.MaxAttempts != 1 {
		t.Errorf("expected single attempt by default, got %d", cfg.Exchange.Retry.MaxAttempts)
	}
	if cfg.OpenAI.Enabled() {
		t.Errorf("expected oracle disabled without api key")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	cfg.Exchange.Driver = "kraken"
	cfg.Bot.CandleLimit = 20
	cfg.Bot.SingleMinConfidence = 1.5
	cfg.Cache.Driver = CacheDriverRedis
	cfg.Cache.Redis.Addr = ""

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"exchange.driver", "bot.candle_limit", "bot.single_min_confidence", "cache.redis.addr"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error, got %s", want, msg)
		}
	}
}

func TestValidate_RequiresModelWhenOracleEnabled(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.Model = ""

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "openai.model") {
		t.Fatalf("expected openai.model error, got %v", err)
	}
}
