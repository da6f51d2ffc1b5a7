// Package monitor 持久化只追加的分析日志，供状态报表与审计回放使用。
package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"auto-trade/internal/store"
)

const writeTimeout = 5 * time.Second

// Service 负责写入与查询分析日志。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService 初始化日志服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := st.Migrate(ctx, "monitor",
		`CREATE TABLE IF NOT EXISTS analysis_logs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			log_type TEXT NOT NULL,
			message TEXT NOT NULL,
			market_outlook TEXT,
			confidence REAL,
			data TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_logs_type ON analysis_logs(log_type);`,
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		db:     st.DB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Append 追加一条日志，缺省 ID 与时间由服务补全。
func (s *Service) Append(ctx context.Context, entry Entry) (Entry, error) {
	if !entry.Type.Valid() {
		return Entry{}, fmt.Errorf("monitor: 非法日志类型 %q", entry.Type)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Time.IsZero() {
		entry.Time = s.now()
	}

	var data interface{}
	if len(entry.Data) > 0 {
		data = string(entry.Data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analysis_logs (id, log_type, message, market_outlook, confidence, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		string(entry.Type),
		entry.Message,
		nullString(entry.MarketOutlook),
		nullFloat(entry.Confidence),
		data,
		entry.Time.UTC().UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("monitor: 写入日志失败: %w", err)
	}
	return entry, nil
}

// Record 序列化 payload 后追加，失败只告警不返回。
func (s *Service) Record(ctx context.Context, typ EntryType, message string, payload interface{}) {
	s.record(ctx, Entry{Type: typ, Message: message}, payload)
}

// RecordDecision 记录周期决策。
func (s *Service) RecordDecision(ctx context.Context, message, outlook string, confidence float64, payload DecisionPayload) {
	s.record(ctx, Entry{
		Type:          EntryDecision,
		Message:       message,
		MarketOutlook: &outlook,
		Confidence:    &confidence,
	}, payload)
}

// RecordTrade 记录成交。
func (s *Service) RecordTrade(ctx context.Context, message string, payload TradePayload) {
	s.record(ctx, Entry{Type: EntryTrade, Message: message}, payload)
}

// RecordError 记录异常，message 保留原始错误信息。
func (s *Service) RecordError(ctx context.Context, message string, payload ErrorPayload) {
	s.record(ctx, Entry{Type: EntryError, Message: message}, payload)
}

// RecordInfo 记录一般事件。
func (s *Service) RecordInfo(ctx context.Context, message string, payload interface{}) {
	s.record(ctx, Entry{Type: EntryInfo, Message: message}, payload)
}

func (s *Service) record(ctx context.Context, entry Entry, payload interface{}) {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("序列化日志数据失败", zap.String("type", string(entry.Type)), zap.Error(err))
		} else {
			entry.Data = raw
		}
	}
	// 周期超时或请求断开后仍要落审计日志
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if _, err := s.Append(writeCtx, entry); err != nil {
		s.logger.Warn("写入分析日志失败",
			zap.String("type", string(entry.Type)),
			zap.String("message", entry.Message),
			zap.Error(err),
		)
	}
}

// List 按写入顺序倒序返回最近日志，typ 为空时不过滤。
func (s *Service) List(ctx context.Context, typ EntryType, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, log_type, message, market_outlook, confidence, data, created_at FROM analysis_logs`
	args := make([]interface{}, 0, 2)
	if typ != "" {
		query += ` WHERE log_type = ?`
		args = append(args, string(typ))
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询日志失败: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			logType    string
			outlook    sql.NullString
			confidence sql.NullFloat64
			data       sql.NullString
			created    int64
		)
		if scanErr := rows.Scan(&e.ID, &logType, &e.Message, &outlook, &confidence, &data, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析日志失败: %w", scanErr)
		}
		e.Type = EntryType(logType)
		if outlook.Valid {
			v := outlook.String
			e.MarketOutlook = &v
		}
		if confidence.Valid {
			v := confidence.Float64
			e.Confidence = &v
		}
		if data.Valid && data.String != "" {
			e.Data = json.RawMessage(data.String)
		}
		e.Time = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取日志失败: %w", err)
	}
	return entries, nil
}

// Latest 返回指定类型的最新一条日志。
func (s *Service) Latest(ctx context.Context, typ EntryType) (Entry, bool, error) {
	entries, err := s.List(ctx, typ, 1)
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		return Entry{}, false, nil
	}
	return entries[0], true, nil
}

// Count 统计日志条数，typ 为空时统计全部。
func (s *Service) Count(ctx context.Context, typ EntryType) (int, error) {
	query := `SELECT COUNT(*) FROM analysis_logs`
	args := make([]interface{}, 0, 1)
	if typ != "" {
		query += ` WHERE log_type = ?`
		args = append(args, string(typ))
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("monitor: 统计日志失败: %w", err)
	}
	return n, nil
}

func nullString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
