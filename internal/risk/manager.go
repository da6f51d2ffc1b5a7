// Package risk 在提交订单前执行信心度与敞口门槛检查。
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"auto-trade/internal/ai"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/fault"
	"auto-trade/internal/position"
)

// Manager 负责执行开仓门槛评估。
type Manager struct {
	limits Limits
	logger *zap.Logger
}

// LimitsFromConfig 从机器人配置读取门槛。
func LimitsFromConfig(cfg config.BotConfig) Limits {
	return Limits{
		PortfolioMinConfidence: cfg.PortfolioMinConfidence,
		SingleMinConfidence:    cfg.SingleMinConfidence,
		MinQuoteBalance:        decimal.NewFromFloat(cfg.MinQuoteBalance),
		MinPositionQty:         decimal.NewFromFloat(cfg.MinPositionQty),
	}
}

// NewManager 创建门槛管理器。
func NewManager(limits Limits, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{limits: limits, logger: logger}
}

// Limits 返回当前门槛。
func (m *Manager) Limits() Limits {
	return m.limits
}

// MinConfidence 返回决策类型对应的信心度门槛。
func (m *Manager) MinConfidence(kind ai.Kind) float64 {
	if kind == ai.KindPortfolio {
		return m.limits.PortfolioMinConfidence
	}
	return m.limits.SingleMinConfidence
}

// Evaluate 依次检查信心度与敞口规则，返回全部检查项。
// 未通过时返回 fault.KindConstraint 错误，调用方应记录跳过原因而不是视为失败。
func (m *Manager) Evaluate(p Proposal, account Account) ([]Check, error) {
	checks := make([]Check, 0, 3)

	if !p.Quantity.IsPositive() {
		return append(checks, Check{Name: "quantity", Detail: "数量必须为正"}),
			fault.Constraint("risk", "下单数量必须为正: %s", p.Quantity)
	}

	threshold := m.MinConfidence(p.Kind)
	confidence := Check{
		Name:   "confidence",
		Passed: p.Confidence > threshold,
		Detail: fmt.Sprintf("%.2f > %.2f", p.Confidence, threshold),
	}
	checks = append(checks, confidence)
	if !confidence.Passed {
		return checks, fault.Constraint("risk", "信心度 %.2f 未超过门槛 %.2f", p.Confidence, threshold)
	}

	switch p.Side {
	case exchange.SideBuy:
		return m.checkBuy(checks, p, account)
	case exchange.SideSell:
		return m.checkSell(checks, p, account)
	default:
		return checks, fault.Constraint("risk", "非法下单方向 %q", p.Side)
	}
}

// checkBuy 不加仓：已有基础资产持仓时拒绝；计价资产可用余额须高于最低名义值。
func (m *Manager) checkBuy(checks []Check, p Proposal, account Account) ([]Check, error) {
	exposed := position.HasExposure(account.Positions, p.Symbol.Base, m.limits.MinPositionQty)
	noPosition := Check{
		Name:   "no_existing_position",
		Passed: !exposed,
		Detail: fmt.Sprintf("%s 持仓阈值 %s", p.Symbol.Base, m.limits.MinPositionQty),
	}
	checks = append(checks, noPosition)
	if !noPosition.Passed {
		return checks, fault.Constraint("risk", "已持有 %s，不重复买入", p.Symbol.Base)
	}

	free := position.FreeBalance(account.Balances, p.Symbol.Quote)
	quote := Check{
		Name:   "quote_balance",
		Passed: free.GreaterThan(m.limits.MinQuoteBalance),
		Detail: fmt.Sprintf("%s 可用 %s > %s", p.Symbol.Quote, free, m.limits.MinQuoteBalance),
	}
	checks = append(checks, quote)
	if !quote.Passed {
		return checks, fault.Constraint("risk", "%s 可用余额 %s 不足 %s", p.Symbol.Quote, free, m.limits.MinQuoteBalance)
	}
	return checks, nil
}

func (m *Manager) checkSell(checks []Check, p Proposal, account Account) ([]Check, error) {
	free := position.FreeBalance(account.Balances, p.Symbol.Base)
	base := Check{
		Name:   "base_balance",
		Passed: free.GreaterThanOrEqual(p.Quantity),
		Detail: fmt.Sprintf("%s 可用 %s >= %s", p.Symbol.Base, free, p.Quantity),
	}
	checks = append(checks, base)
	if !base.Passed {
		return checks, fault.Constraint("risk", "%s 可用余额 %s 少于卖出数量 %s", p.Symbol.Base, free, p.Quantity)
	}
	return checks, nil
}
