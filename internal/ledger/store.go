package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auto-trade/internal/exchange"
	"auto-trade/internal/store"
)

const statusFilled = "FILLED"

// Store 持久化成交流水，按订单号幂等写入。
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore 创建成交存储并初始化表结构。
func NewStore(ctx context.Context, st *store.Store, logger *zap.Logger) (*Store, error) {
	if st == nil {
		return nil, errors.New("ledger: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := st.Migrate(ctx, "ledger",
		`CREATE TABLE IF NOT EXISTS trades (
			order_id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity TEXT NOT NULL,
			quote_qty TEXT NOT NULL,
			commission TEXT NOT NULL,
			commission_asset TEXT NOT NULL,
			trade_time INTEGER NOT NULL,
			status TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades(symbol, trade_time);`,
	)
	if err != nil {
		return nil, err
	}

	return &Store{db: st.DB(), logger: logger}, nil
}

// SaveTrade 以订单号为键写入成交。未 FILLED 的记录在重复写入时以最新回执更新成交字段与状态，已 FILLED 的记录保持不变。
func (s *Store) SaveTrade(ctx context.Context, trade Trade) error {
	if strings.TrimSpace(trade.OrderID) == "" {
		return errors.New("ledger: 订单号不能为空")
	}
	if trade.Time.IsZero() {
		trade.Time = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (order_id, symbol, side, price, quantity, quote_qty, commission, commission_asset, trade_time, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET
			price = excluded.price,
			quantity = excluded.quantity,
			quote_qty = excluded.quote_qty,
			commission = excluded.commission,
			commission_asset = excluded.commission_asset,
			status = excluded.status
		 WHERE trades.status <> ?`,
		trade.OrderID,
		trade.Symbol,
		string(trade.Side),
		trade.Price.String(),
		trade.Quantity.String(),
		trade.QuoteQty.String(),
		trade.Commission.String(),
		trade.CommissionAsset,
		trade.Time.UTC().UnixMilli(),
		trade.Status,
		statusFilled,
	)
	if err != nil {
		return fmt.Errorf("ledger: 写入成交失败: %w", err)
	}

	s.logger.Debug("成交已记录",
		zap.String("order_id", trade.OrderID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.String("price", trade.Price.String()),
		zap.String("quantity", trade.Quantity.String()),
	)
	return nil
}

// ListTrades 返回成交，按时间升序。symbol 为空时返回全部；limit>0 时只取最近 limit 笔。
func (s *Store) ListTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	query := `SELECT order_id, symbol, side, price, quantity, quote_qty, commission, commission_asset, trade_time, status
		FROM trades`
	args := make([]interface{}, 0, 2)
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY trade_time DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: 查询成交失败: %w", err)
	}
	defer rows.Close()

	trades := make([]Trade, 0)
	for rows.Next() {
		var (
			t                                     Trade
			side                                  string
			price, quantity, quoteQty, commission string
			tradeTime                             int64
		)
		if scanErr := rows.Scan(&t.OrderID, &t.Symbol, &side, &price, &quantity, &quoteQty, &commission, &t.CommissionAsset, &tradeTime, &t.Status); scanErr != nil {
			return nil, fmt.Errorf("ledger: 解析成交失败: %w", scanErr)
		}
		t.Side = exchange.OrderSide(side)
		t.Price = parseStored(price)
		t.Quantity = parseStored(quantity)
		t.QuoteQty = parseStored(quoteQty)
		t.Commission = parseStored(commission)
		t.Time = time.UnixMilli(tradeTime).UTC()
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: 读取成交失败: %w", err)
	}

	// 倒序查询便于 LIMIT 取最近记录，返回前恢复为升序
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

// Count 返回成交笔数。
func (s *Store) Count(ctx context.Context, symbol string) (int, error) {
	query := `SELECT COUNT(*) FROM trades`
	args := make([]interface{}, 0, 1)
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger: 统计成交失败: %w", err)
	}
	return n, nil
}

func parseStored(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
