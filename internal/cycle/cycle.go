// Package cycle 提供实盘评估周期与回放共用的决策与下单计划步骤。
package cycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"auto-trade/internal/ai"
	"auto-trade/internal/config"
	"auto-trade/internal/exchange"
	"auto-trade/internal/execution"
	"auto-trade/internal/fault"
	"auto-trade/internal/position"
	"auto-trade/internal/risk"
)

// 跳过原因。
const (
	ReasonNoPosition = "无可平持仓"
)

// DecisionKind 按配置的决策模式返回请求形态。
func DecisionKind(mode string) ai.Kind {
	if mode == config.DecisionModeSingle {
		return ai.KindSingle
	}
	return ai.KindPortfolio
}

// Decide 调用决策模型。调用失败、校验不通过或形态与请求不符时返回指标兜底决策，
// 第二个返回值为导致兜底的原因，使用模型结果时为 nil。
func Decide(ctx context.Context, oracle ai.Oracle, req ai.Request) (ai.Decision, error) {
	if oracle == nil {
		return ai.Fallback(req), nil
	}
	decision, err := oracle.Decide(ctx, req)
	if err == nil {
		err = decision.Validate()
	}
	if err == nil && decision.Kind != req.Kind {
		err = fmt.Errorf("cycle: 决策类型 %s 与请求 %s 不符", decision.Kind, req.Kind)
	}
	if err != nil {
		return ai.Fallback(req), err
	}
	return decision, nil
}

// TrackedPositions 只把跟踪交易对的基础资产视为持仓，其余资产不参与决策与平仓。
func TrackedPositions(balances []exchange.Balance, sym exchange.Symbol, minQty decimal.Decimal) []position.Position {
	all := position.FromBalances(balances, sym.Quote, minQty)
	tracked := make([]position.Position, 0, 1)
	for _, p := range all {
		if p.Asset == sym.Base {
			tracked = append(tracked, p)
		}
	}
	return tracked
}

// StepKind 为计划动作类型。
type StepKind string

const (
	StepClose StepKind = "CLOSE"
	StepOpen  StepKind = "OPEN"
)

// Step 为一个计划动作。Skipped 时 Reason 为跳过原因，Order 只用于记录。
type Step struct {
	Kind    StepKind
	Asset   string
	Order   execution.OrderRequest
	Skipped bool
	Reason  string
	Checks  []risk.Check
}

// Planner 把决策转换为平仓与新开单步骤。
// 所有门槛都基于周期开始时的账户视图，同一周期内的平仓不会放宽新开单检查。
type Planner struct {
	Risk          *risk.Manager
	OrderQuantity float64
}

// Plan 返回按执行顺序排列的步骤：先组合决策中的 CLOSE，再新开单。
func (p Planner) Plan(d ai.Decision, sym exchange.Symbol, account risk.Account) []Step {
	var steps []Step
	if d.Kind == ai.KindPortfolio && d.Portfolio != nil {
		for _, pa := range d.Portfolio.PositionActions {
			if pa.Action != ai.ActionClose {
				continue
			}
			steps = append(steps, p.closeStep(pa, sym, account))
		}
	}
	if step, ok := p.openStep(d, sym, account); ok {
		steps = append(steps, step)
	}
	return steps
}

func (p Planner) closeStep(pa ai.PositionAction, sym exchange.Symbol, account risk.Account) Step {
	asset := strings.ToUpper(strings.TrimSpace(pa.Asset))
	step := Step{
		Kind:  StepClose,
		Asset: asset,
		Order: execution.OrderRequest{
			Symbol: sym,
			Side:   exchange.SideSell,
			Source: execution.SourceClose,
			Reason: pa.Reason,
		},
	}
	if asset != sym.Base {
		step.Skipped = true
		step.Reason = fmt.Sprintf("%s 不是跟踪资产 %s", asset, sym.Base)
		return step
	}

	pos, ok := position.Find(account.Positions, asset)
	if !ok || !pos.Free.IsPositive() || pos.Free.LessThan(p.Risk.Limits().MinPositionQty) {
		step.Skipped = true
		step.Reason = ReasonNoPosition
		return step
	}
	step.Order.Quantity = pos.Free
	return step
}

// openStep 从决策提取新开单并执行信心度与敞口检查，未给出数量时使用配置下单量。
func (p Planner) openStep(d ai.Decision, sym exchange.Symbol, account risk.Account) (Step, bool) {
	action, quantity, reason, ok := d.Intent()
	if !ok {
		return Step{}, false
	}
	side, err := exchange.ParseSide(string(action))
	if err != nil {
		return Step{}, false
	}
	if quantity <= 0 {
		quantity = p.OrderQuantity
	}
	qty := decimal.NewFromFloat(quantity)

	step := Step{
		Kind:  StepOpen,
		Asset: sym.Base,
		Order: execution.OrderRequest{
			Symbol:   sym,
			Side:     side,
			Quantity: qty,
			Source:   execution.SourceCycle,
			Reason:   reason,
		},
	}
	checks, err := p.Risk.Evaluate(risk.Proposal{
		Kind:       d.Kind,
		Symbol:     sym,
		Side:       side,
		Quantity:   qty,
		Confidence: d.Confidence(),
	}, account)
	step.Checks = checks
	if err != nil {
		step.Skipped = true
		step.Reason = fault.Reason(err)
	}
	return step, true
}
