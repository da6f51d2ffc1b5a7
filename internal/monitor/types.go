package monitor

import (
	"encoding/json"
	"time"

	"auto-trade/internal/ai"
	"auto-trade/internal/indicator"
)

// EntryType 表示审计日志类型。
type EntryType string

const (
	EntryDecision EntryType = "decision"
	EntryTrade    EntryType = "trade"
	EntryError    EntryType = "error"
	EntryInfo     EntryType = "info"
)

// Valid 判断类型是否合法。
func (t EntryType) Valid() bool {
	switch t {
	case EntryDecision, EntryTrade, EntryError, EntryInfo:
		return true
	}
	return false
}

// Entry 为一条只追加的审计日志。
type Entry struct {
	ID            string          `json:"id"`
	Type          EntryType       `json:"type"`
	Message       string          `json:"message"`
	MarketOutlook *string         `json:"market_outlook,omitempty"`
	Confidence    *float64        `json:"confidence,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Time          time.Time       `json:"time"`
}

// ActionStatus 表示一次执行动作的结果。
type ActionStatus string

const (
	ActionExecuted ActionStatus = "executed"
	ActionSkipped  ActionStatus = "skipped"
	ActionFailed   ActionStatus = "failed"
)

// Action 记录周期内实际处理过的动作，包括被跳过和失败的。
type Action struct {
	Kind     string       `json:"kind"`
	Asset    string       `json:"asset,omitempty"`
	Side     string       `json:"side,omitempty"`
	Quantity string       `json:"quantity,omitempty"`
	Price    string       `json:"price,omitempty"`
	OrderID  string       `json:"order_id,omitempty"`
	Status   ActionStatus `json:"status"`
	Reason   string       `json:"reason,omitempty"`
}

// DecisionPayload 记录一个周期的决策上下文与执行动作。
type DecisionPayload struct {
	CycleID    string             `json:"cycle_id"`
	Symbol     string             `json:"symbol"`
	Decision   ai.Decision        `json:"decision"`
	Indicators indicator.Snapshot `json:"indicators"`
	Strength   indicator.Strength `json:"strength"`
	Actions    []Action           `json:"actions"`
}

// TradePayload 记录成交详情。
type TradePayload struct {
	CycleID  string `json:"cycle_id,omitempty"`
	Source   string `json:"source"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	OrderID  string `json:"order_id"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	QuoteQty string `json:"quote_qty"`
	Status   string `json:"status"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	CycleID string                 `json:"cycle_id,omitempty"`
	Kind    string                 `json:"kind,omitempty"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
