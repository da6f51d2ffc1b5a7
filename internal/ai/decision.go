package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind 区分决策形态。
type Kind string

const (
	// KindSingle 单标的 BUY/SELL/HOLD。
	KindSingle Kind = "single"
	// KindPortfolio 逐仓位 CLOSE/HOLD 加新开单建议。
	KindPortfolio Kind = "portfolio"
)

// Source 标识决策来源。
type Source string

const (
	SourceOracle   Source = "oracle"
	SourceFallback Source = "indicator-fallback"
)

// Action 为决策动作。
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionHold  Action = "HOLD"
	ActionClose Action = "CLOSE"
)

// Price 兼容模型输出的数字、数字字符串与 null，缺省为0。
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*p = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	raw = strings.TrimPrefix(raw, "$")
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return fmt.Errorf("无法解析价格 %s", string(data))
	}
	*p = Price(v)
	return nil
}

// SingleDecision 单标的决策。
type SingleDecision struct {
	Action          Action   `json:"action"`
	Confidence      float64  `json:"confidence"`
	Reason          string   `json:"reason"`
	EntryPrice      Price    `json:"entryPrice,omitempty"`
	StopLoss        Price    `json:"stopLoss,omitempty"`
	TakeProfit      Price    `json:"takeProfit,omitempty"`
	RiskRewardRatio Price    `json:"riskRewardRatio,omitempty"`
	Timeframe       string   `json:"timeframe,omitempty"`
	KeyFactors      []string `json:"keyFactors"`
}

// PositionAction 对单个持仓的处理建议。
type PositionAction struct {
	Asset  string `json:"asset"`
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// NewOrder 新开单建议，ShouldOpen 为 false 时其余字段无意义。
type NewOrder struct {
	ShouldOpen bool   `json:"shouldOpen"`
	Side       Action `json:"side,omitempty"`
	Quantity   Price  `json:"quantity"`
	StopLoss   Price  `json:"stopLoss,omitempty"`
	TakeProfit Price  `json:"takeProfit,omitempty"`
	Reason     string `json:"reason"`
}

// PortfolioDecision 组合决策。
type PortfolioDecision struct {
	PositionActions []PositionAction `json:"positionActions"`
	NewOrder        NewOrder         `json:"newOrder"`
	OverallStrategy string           `json:"overallStrategy"`
	MarketOutlook   string           `json:"marketOutlook"`
	Confidence      float64          `json:"confidence"`
	NextCheck       string           `json:"nextCheckRecommendation,omitempty"`
}

// Decision 为两种决策形态的带标签联合，Kind 决定哪个分支有效。
type Decision struct {
	Kind        Kind               `json:"kind"`
	Source      Source             `json:"source"`
	Single      *SingleDecision    `json:"single,omitempty"`
	Portfolio   *PortfolioDecision `json:"portfolio,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// NewSingle 构造单标的决策。
func NewSingle(d SingleDecision, source Source) Decision {
	return Decision{Kind: KindSingle, Source: source, Single: &d, GeneratedAt: time.Now().UTC()}
}

// NewPortfolio 构造组合决策。
func NewPortfolio(d PortfolioDecision, source Source) Decision {
	return Decision{Kind: KindPortfolio, Source: source, Portfolio: &d, GeneratedAt: time.Now().UTC()}
}

// Confidence 返回决策信心度。
func (d Decision) Confidence() float64 {
	switch d.Kind {
	case KindSingle:
		if d.Single != nil {
			return d.Single.Confidence
		}
	case KindPortfolio:
		if d.Portfolio != nil {
			return d.Portfolio.Confidence
		}
	}
	return 0
}

// Headline 返回用于审计日志的主动作：单标的为 action，组合为新开单方向或 HOLD。
func (d Decision) Headline() Action {
	switch d.Kind {
	case KindSingle:
		if d.Single != nil {
			return d.Single.Action
		}
	case KindPortfolio:
		if d.Portfolio != nil && d.Portfolio.NewOrder.ShouldOpen {
			return d.Portfolio.NewOrder.Side
		}
	}
	return ActionHold
}

// Intent 返回决策中的新开单建议。quantity 为0时由调用方使用默认下单量。
func (d Decision) Intent() (side Action, quantity float64, reason string, ok bool) {
	switch d.Kind {
	case KindSingle:
		if d.Single != nil && (d.Single.Action == ActionBuy || d.Single.Action == ActionSell) {
			return d.Single.Action, 0, d.Single.Reason, true
		}
	case KindPortfolio:
		if d.Portfolio != nil && d.Portfolio.NewOrder.ShouldOpen {
			order := d.Portfolio.NewOrder
			if order.Side == ActionBuy || order.Side == ActionSell {
				return order.Side, float64(order.Quantity), order.Reason, true
			}
		}
	}
	return "", 0, "", false
}

// Strategy 返回策略说明。
func (d Decision) Strategy() string {
	switch d.Kind {
	case KindSingle:
		if d.Single != nil {
			return d.Single.Reason
		}
	case KindPortfolio:
		if d.Portfolio != nil {
			return d.Portfolio.OverallStrategy
		}
	}
	return ""
}

// Outlook 返回市场展望，单标的决策按动作推断。
func (d Decision) Outlook() string {
	switch d.Kind {
	case KindPortfolio:
		if d.Portfolio != nil {
			return d.Portfolio.MarketOutlook
		}
	case KindSingle:
		if d.Single != nil {
			switch d.Single.Action {
			case ActionBuy:
				return "bullish"
			case ActionSell:
				return "bearish"
			}
		}
	}
	return "neutral"
}

// Validate 校验决策字段合法性。
func (d Decision) Validate() error {
	switch d.Kind {
	case KindSingle:
		if d.Single == nil || d.Portfolio != nil {
			return errors.New("single 决策必须且只能包含 single 分支")
		}
		return d.Single.validate()
	case KindPortfolio:
		if d.Portfolio == nil || d.Single != nil {
			return errors.New("portfolio 决策必须且只能包含 portfolio 分支")
		}
		return d.Portfolio.validate()
	default:
		return fmt.Errorf("未知决策类型: %q", d.Kind)
	}
}

func (s SingleDecision) validate() error {
	switch s.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return fmt.Errorf("action 字段取值非法: %s", s.Action)
	}
	if err := validateConfidence(s.Confidence); err != nil {
		return err
	}
	if s.StopLoss < 0 || s.TakeProfit < 0 {
		return errors.New("stopLoss/takeProfit 不能为负")
	}
	return nil
}

func (p PortfolioDecision) validate() error {
	if err := validateConfidence(p.Confidence); err != nil {
		return err
	}
	for i, a := range p.PositionActions {
		if strings.TrimSpace(a.Asset) == "" {
			return fmt.Errorf("positionActions[%d].asset 不能为空", i)
		}
		switch a.Action {
		case ActionClose, ActionHold:
		default:
			return fmt.Errorf("positionActions[%d].action 取值非法: %s", i, a.Action)
		}
	}
	if p.NewOrder.ShouldOpen {
		switch p.NewOrder.Side {
		case ActionBuy, ActionSell:
		default:
			return fmt.Errorf("newOrder.side 取值非法: %q", p.NewOrder.Side)
		}
	}
	if p.NewOrder.Quantity < 0 {
		return errors.New("newOrder.quantity 不能为负")
	}
	return nil
}

func validateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("confidence 必须在 [0,1] 区间，目前为 %f", c)
	}
	return nil
}

// ParseSingle 从模型输出中解析单标的决策。
func ParseSingle(content string) (Decision, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var single SingleDecision
	if err := json.Unmarshal(payload, &single); err != nil {
		return Decision{}, fmt.Errorf("解析决策JSON失败: %w", err)
	}
	single.Action = normalizeAction(single.Action)

	decision := NewSingle(single, SourceOracle)
	if err := decision.Validate(); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// ParsePortfolio 从模型输出中解析组合决策。
func ParsePortfolio(content string) (Decision, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var portfolio PortfolioDecision
	if err := json.Unmarshal(payload, &portfolio); err != nil {
		return Decision{}, fmt.Errorf("解析决策JSON失败: %w", err)
	}
	for i := range portfolio.PositionActions {
		portfolio.PositionActions[i].Asset = strings.ToUpper(strings.TrimSpace(portfolio.PositionActions[i].Asset))
		portfolio.PositionActions[i].Action = normalizeAction(portfolio.PositionActions[i].Action)
	}
	portfolio.NewOrder.Side = normalizeAction(portfolio.NewOrder.Side)
	portfolio.MarketOutlook = strings.ToLower(strings.TrimSpace(portfolio.MarketOutlook))

	decision := NewPortfolio(portfolio, SourceOracle)
	if err := decision.Validate(); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

func normalizeAction(a Action) Action {
	return Action(strings.ToUpper(strings.TrimSpace(string(a))))
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
