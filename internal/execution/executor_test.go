package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"auto-trade/internal/exchange"
	"auto-trade/internal/fault"
	"auto-trade/internal/ledger"
)

type mockTrading struct {
	calls  []string
	result exchange.OrderResult
	err    error
}

func (m *mockTrading) FetchBalances(ctx context.Context) ([]exchange.Balance, error) {
	m.calls = append(m.calls, "FetchBalances")
	return nil, nil
}

func (m *mockTrading) PlaceMarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, qty decimal.Decimal) (exchange.OrderResult, error) {
	m.calls = append(m.calls, "PlaceMarketOrder:"+symbol+":"+string(side)+":"+qty.String())
	return m.result, m.err
}

type mockSink struct {
	trades []ledger.Trade
	err    error
}

func (m *mockSink) SaveTrade(ctx context.Context, trade ledger.Trade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.err != nil {
		return m.err
	}
	m.trades = append(m.trades, trade)
	return nil
}

func TestExecutorExecute_RecordsFilledTrade(t *testing.T) {
	trading := &mockTrading{result: exchange.OrderResult{
		OrderID: "99", Status: "FILLED", ExecutedQty: d("2"), CumulativeQuoteQty: d("220"),
	}}
	sink := &mockSink{}
	exec := NewExecutor(trading, sink, nil)

	result, err := exec.Execute(context.Background(), OrderRequest{
		Symbol: btcusdt, Side: exchange.SideBuy, Quantity: d("2"), Source: SourceCycle,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.Recorded || len(sink.trades) != 1 {
		t.Fatalf("expected trade to be recorded, got %+v", result)
	}
	if !sink.trades[0].Price.Equal(d("110")) {
		t.Errorf("expected recorded price 110, got %s", sink.trades[0].Price)
	}
	if len(trading.calls) != 1 || trading.calls[0] != "PlaceMarketOrder:BTCUSDT:BUY:2" {
		t.Errorf("unexpected calls %v", trading.calls)
	}
}

func TestExecutorExecute_RecordsFillAfterDeadline(t *testing.T) {
	trading := &mockTrading{result: exchange.OrderResult{
		OrderID: "100", Status: "FILLED", ExecutedQty: d("1"), CumulativeQuoteQty: d("105"),
	}}
	sink := &mockSink{}
	exec := NewExecutor(trading, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := exec.Execute(ctx, OrderRequest{Symbol: btcusdt, Side: exchange.SideBuy, Quantity: d("1"), Source: SourceCycle})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.Recorded || len(sink.trades) != 1 || sink.trades[0].OrderID != "100" {
		t.Fatalf("filled order must reach the ledger after the caller's deadline, got %+v", result)
	}
}

func TestExecutorExecute_SkipsRejectedOrders(t *testing.T) {
	sink := &mockSink{}
	exec := NewExecutor(&mockTrading{result: exchange.OrderResult{OrderID: "1", Status: "REJECTED"}}, sink, nil)

	result, err := exec.Execute(context.Background(), OrderRequest{Symbol: btcusdt, Side: exchange.SideSell, Quantity: d("1")})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.Recorded || len(sink.trades) != 0 {
		t.Errorf("rejected order must not be recorded")
	}
}

func TestExecutorExecute_ClassifiesErrors(t *testing.T) {
	exec := NewExecutor(&mockTrading{err: errors.New("boom")}, nil, nil)
	_, err := exec.Execute(context.Background(), OrderRequest{Symbol: btcusdt, Side: exchange.SideBuy, Quantity: d("1")})
	if !fault.Is(err, fault.KindUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	trading := &mockTrading{result: exchange.OrderResult{OrderID: "1", Status: "FILLED", ExecutedQty: d("1"), CumulativeQuoteQty: d("100")}}
	exec = NewExecutor(trading, &mockSink{err: errors.New("disk full")}, nil)
	result, err := exec.Execute(context.Background(), OrderRequest{Symbol: btcusdt, Side: exchange.SideBuy, Quantity: d("1")})
	if !fault.Is(err, fault.KindPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if result.Trade.OrderID != "1" {
		t.Errorf("result should still carry the executed trade")
	}

	_, err = exec.Execute(context.Background(), OrderRequest{Symbol: btcusdt, Side: exchange.SideBuy})
	if !fault.Is(err, fault.KindConstraint) || len(trading.calls) != 1 {
		t.Fatalf("zero quantity must be rejected before submission, err=%v calls=%v", err, trading.calls)
	}
}
