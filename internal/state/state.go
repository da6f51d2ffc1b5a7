// Package state 持久化机器人运行状态。
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"auto-trade/internal/store"
)

// DefaultBotID 为单实例机器人的状态主键。
const DefaultBotID = "global"

// BotState 描述机器人是否在运行以及跟踪的交易对。
type BotState struct {
	ID        string    `json:"id"`
	IsRunning bool      `json:"is_running"`
	Symbol    string    `json:"symbol"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store 以 id 为键读写 BotState。
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore 创建状态存储并初始化表结构。
func NewStore(ctx context.Context, st *store.Store, logger *zap.Logger) (*Store, error) {
	if st == nil {
		return nil, errors.New("state: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := st.Migrate(ctx, "state",
		`CREATE TABLE IF NOT EXISTS bot_state (
			id TEXT PRIMARY KEY,
			is_running INTEGER NOT NULL DEFAULT 0,
			symbol TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	)
	if err != nil {
		return nil, err
	}

	return &Store{db: st.DB(), logger: logger}, nil
}

// Get 读取状态，不存在时返回以 fallbackSymbol 初始化的停止状态。
func (s *Store) Get(ctx context.Context, id, fallbackSymbol string) (BotState, error) {
	if id == "" {
		id = DefaultBotID
	}

	var (
		running int
		symbol  string
		updated string
	)
	row := s.db.QueryRowContext(ctx, `SELECT is_running, symbol, updated_at FROM bot_state WHERE id = ?`, id)
	switch err := row.Scan(&running, &symbol, &updated); {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return BotState{ID: id, Symbol: fallbackSymbol}, nil
	default:
		return BotState{}, fmt.Errorf("state: 查询状态失败: %w", err)
	}

	ts, parseErr := time.Parse(time.RFC3339Nano, updated)
	if parseErr != nil {
		s.logger.Warn("状态更新时间解析失败", zap.String("updated_at", updated), zap.Error(parseErr))
	}

	return BotState{
		ID:        id,
		IsRunning: running == 1,
		Symbol:    symbol,
		UpdatedAt: ts,
	}, nil
}

// Save 写入状态，同一 id 重复写入只覆盖字段。
func (s *Store) Save(ctx context.Context, st BotState) (BotState, error) {
	if st.ID == "" {
		st.ID = DefaultBotID
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	running := 0
	if st.IsRunning {
		running = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_state (id, is_running, symbol, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET is_running = excluded.is_running, symbol = excluded.symbol, updated_at = excluded.updated_at`,
		st.ID, running, st.Symbol, st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return BotState{}, fmt.Errorf("state: 写入状态失败: %w", err)
	}

	s.logger.Debug("机器人状态已保存",
		zap.String("id", st.ID),
		zap.Bool("running", st.IsRunning),
		zap.String("symbol", st.Symbol),
	)
	return st, nil
}
