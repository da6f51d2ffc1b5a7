package app

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auto-trade/internal/ai"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/ledger"
	"auto-trade/internal/monitor"
	"auto-trade/internal/state"
	"auto-trade/internal/store"
)

// mockGateway 并发安全，GetSnapshot 会在多个 goroutine 中调用它。
type mockGateway struct {
	mu         sync.Mutex
	calls      []string
	orders     []string
	candles    []exchange.Candle
	ticker     exchange.Ticker24h
	balances   []exchange.Balance
	candleErr  error
	balanceErr error
	orderErr   map[string]error // 键为 "SYMBOL:SIDE:QTY"
	block      bool
	fillPrice  decimal.Decimal
	nextID     int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		candles:   makeCandles(linear(100, 100, 1)),
		ticker:    exchange.Ticker24h{Symbol: "BTCUSDT", LastPrice: 199, PriceChangePercent: 1.2, HighPrice: 200, LowPrice: 180, Volume: 1000},
		balances:  []exchange.Balance{{Asset: "USDT", Free: decimal.NewFromInt(1000)}},
		fillPrice: decimal.NewFromInt(110),
	}
}

func (m *mockGateway) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockGateway) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockGateway) placed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.orders...)
}

func (m *mockGateway) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	m.record("FetchCandles:" + symbol)
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.candleErr != nil {
		return nil, m.candleErr
	}
	return m.candles, nil
}

func (m *mockGateway) Fetch24hStats(ctx context.Context, symbol string) (exchange.Ticker24h, error) {
	m.record("Fetch24hStats:" + symbol)
	return m.ticker, nil
}

func (m *mockGateway) FetchBalances(ctx context.Context) ([]exchange.Balance, error) {
	m.record("FetchBalances")
	if m.balanceErr != nil {
		return nil, m.balanceErr
	}
	return m.balances, nil
}

func (m *mockGateway) PlaceMarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, qty decimal.Decimal) (exchange.OrderResult, error) {
	m.record("PlaceMarketOrder:" + symbol)
	m.mu.Lock()
	defer m.mu.Unlock()

	key := symbol + ":" + string(side) + ":" + qty.String()
	m.orders = append(m.orders, key)
	if err := m.orderErr[key]; err != nil {
		return exchange.OrderResult{}, err
	}
	m.nextID++
	return exchange.OrderResult{
		OrderID:            "order-" + strconv.Itoa(m.nextID),
		Symbol:             symbol,
		Side:               side,
		Status:             "FILLED",
		ExecutedQty:        qty,
		CumulativeQuoteQty: qty.Mul(m.fillPrice),
		TransactTime:       time.Date(2024, 1, 5, 0, m.nextID, 0, 0, time.UTC),
	}, nil
}

// scriptedOracle 返回预设决策并记录请求。
type scriptedOracle struct {
	decision ai.Decision
	err      error
	requests []ai.Request
}

func (o *scriptedOracle) Decide(ctx context.Context, req ai.Request) (ai.Decision, error) {
	o.requests = append(o.requests, req)
	if o.err != nil {
		return ai.Decision{}, o.err
	}
	return o.decision, nil
}

func portfolioBuy(qty, confidence float64) ai.Decision {
	return ai.NewPortfolio(ai.PortfolioDecision{
		NewOrder:        ai.NewOrder{ShouldOpen: true, Side: ai.ActionBuy, Quantity: ai.Price(qty), Reason: "breakout"},
		OverallStrategy: "trend follow",
		MarketOutlook:   "bullish",
		Confidence:      confidence,
	}, ai.SourceOracle)
}

type fixture struct {
	ctrl   *Controller
	gw     *mockGateway
	db     *store.Store
	states *state.Store
	trades *ledger.Store
	logs   *monitor.Service
}

func testBotConfig() config.BotConfig {
	return config.BotConfig{
		ID:                     state.DefaultBotID,
		Symbol:                 "BTCUSDT",
		Interval:               "1h",
		CandleLimit:            100,
		DecisionMode:           config.DecisionModePortfolio,
		OrderQuantity:          0.01,
		PortfolioMinConfidence: 0.6,
		SingleMinConfidence:    0.75,
		MinQuoteBalance:        10,
		MinPositionQty:         0.0001,
		MaxOpenPositions:       3,
		CycleTimeout:           5 * time.Second,
		UpstreamTimeout:        2 * time.Second,
		PromptCandles:          20,
		RecentTrades:           5,
	}
}

func newFixture(t *testing.T, oracle ai.Oracle, mutate func(*config.BotConfig)) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	states, err := state.NewStore(ctx, db, nil)
	if err != nil {
		t.Fatalf("state.NewStore: %v", err)
	}
	trades, err := ledger.NewStore(ctx, db, nil)
	if err != nil {
		t.Fatalf("ledger.NewStore: %v", err)
	}
	logs, err := monitor.NewService(ctx, db, nil)
	if err != nil {
		t.Fatalf("monitor.NewService: %v", err)
	}

	cfg := testBotConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	gw := newMockGateway()
	ctrl, err := NewController(cfg, Dependencies{
		Gateway: gw,
		Oracle:  oracle,
		States:  states,
		Trades:  trades,
		Logs:    logs,
	}, nil)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return &fixture{ctrl: ctrl, gw: gw, db: db, states: states, trades: trades, logs: logs}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if _, err := f.ctrl.Start(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (f *fixture) latest(t *testing.T, typ monitor.EntryType) monitor.Entry {
	t.Helper()
	entry, ok, err := f.logs.Latest(context.Background(), typ)
	if err != nil || !ok {
		t.Fatalf("Latest(%s): ok=%v err=%v", typ, ok, err)
	}
	return entry
}

func (f *fixture) count(t *testing.T, typ monitor.EntryType) int {
	t.Helper()
	n, err := f.logs.Count(context.Background(), typ)
	if err != nil {
		t.Fatalf("Count(%s): %v", typ, err)
	}
	return n
}

func makeCandles(closes []float64) []exchange.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		open := start.Add(time.Duration(i) * time.Hour)
		candles[i] = exchange.Candle{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		}
	}
	return candles
}

func linear(n int, start, step float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = start + float64(i)*step
	}
	return values
}

var errBoom = errors.New("boom: connection reset")
