package state

import (
	"context"
	"testing"
	"time"

	"auto-trade/internal/config"
	"auto-trade/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s, err := NewStore(context.Background(), st, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestGet_DefaultsToStopped(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get(context.Background(), "", "BTCUSDT")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != DefaultBotID || got.IsRunning || got.Symbol != "BTCUSDT" {
		t.Errorf("unexpected default state %+v", got)
	}
}

func TestSave_UpsertsByID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.Save(ctx, BotState{IsRunning: true, Symbol: "BTCUSDT", UpdatedAt: ts}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Save(ctx, BotState{IsRunning: true, Symbol: "ETHUSDT", UpdatedAt: ts.Add(time.Minute)}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, DefaultBotID, "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsRunning || got.Symbol != "ETHUSDT" || !got.UpdatedAt.Equal(ts.Add(time.Minute)) {
		t.Errorf("unexpected state %+v", got)
	}

	var rows int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bot_state`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected single row, got %d", rows)
	}
}
