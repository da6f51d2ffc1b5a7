package ai

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"auto-trade/internal/exchange"
	"auto-trade/internal/feature"
	"auto-trade/internal/ledger"
	"auto-trade/internal/position"
)

const (
	singlePromptCandles    = 5
	portfolioPromptCandles = 20
	promptTrades           = 5
)

const indicatorSection = `## 技术指标
- RSI(14): {{ printf "%.2f" .Market.Indicators.RSI.Value }} ({{ .Market.Indicators.RSI.Signal }})
- MACD: {{ printf "%.4f" .Market.Indicators.MACD.Value }} | Signal: {{ printf "%.4f" .Market.Indicators.MACD.Signal }} | Histogram: {{ printf "%.4f" .Market.Indicators.MACD.Histogram }} ({{ .Market.Indicators.MACD.Trend }})
- 布林带: 上轨 {{ printf "%.2f" .Market.Indicators.Bollinger.Upper }} | 中轨 {{ printf "%.2f" .Market.Indicators.Bollinger.Middle }} | 下轨 {{ printf "%.2f" .Market.Indicators.Bollinger.Lower }} ({{ .Market.Indicators.Bollinger.Signal }})
- 随机指标: K {{ printf "%.2f" .Market.Indicators.Stochastic.K }} | D {{ printf "%.2f" .Market.Indicators.Stochastic.D }} ({{ .Market.Indicators.Stochastic.Signal }})
- ATR: {{ printf "%.4f" .Market.Indicators.ATR }}
- SMA: SMA20 {{ printf "%.2f" .Market.Indicators.SMA.SMA20 }} | SMA50 {{ printf "%.2f" .Market.Indicators.SMA.SMA50 }} ({{ .Market.Indicators.SMA.Trend }})
- EMA: EMA12 {{ printf "%.2f" .Market.Indicators.EMA.EMA12 }} | EMA26 {{ printf "%.2f" .Market.Indicators.EMA.EMA26 }} ({{ .Market.Indicators.EMA.Momentum }})
- VWAP: {{ printf "%.2f" .Market.Indicators.VWAP.Value }} ({{ .Market.Indicators.VWAP.Signal }})
- 多空信号: 看多 {{ .Market.Strength.Bullish }} / 看空 {{ .Market.Strength.Bearish }}，综合建议 {{ .Market.Strength.Recommendation }}
`

const candleSection = `## 最近 {{ len .Candles }} 根K线
{{ range $i, $c := .Candles }}- K{{ inc $i }}: O {{ printf "%.2f" $c.Open }} H {{ printf "%.2f" $c.High }} L {{ printf "%.2f" $c.Low }} C {{ printf "%.2f" $c.Close }} V {{ printf "%.2f" $c.Volume }}
{{ end }}`

const singleTemplate = `你是一名专业的加密货币交易分析师。请根据以下行情与技术指标给出交易决策。

## 行情数据
- 交易对: {{ .Market.Symbol }}
- 当前价格: {{ printf "%.2f" .Market.CurrentPrice }}
- 24小时涨跌: {{ printf "%.2f" .Market.PriceChangePercent }}%
- 24小时最高: {{ .Market.HighPrice }}
- 24小时最低: {{ .Market.LowPrice }}
- 24小时成交量: {{ .Market.Volume }}

{{ template "indicators" . }}
{{ template "candles" . }}
## 分析要求
请综合考虑：趋势方向、动量、超买超卖、支撑阻力与风险控制。

请严格输出唯一的 JSON 对象，不要使用 markdown，格式如下：
{
  "action": "BUY|SELL|HOLD",
  "confidence": 0.0-1.0,
  "reason": "简要说明决策依据",
  "entryPrice": 建议入场价或 null,
  "stopLoss": 止损价,
  "takeProfit": 止盈价,
  "riskRewardRatio": 风险收益比,
  "timeframe": "short|medium|long",
  "keyFactors": ["因素1", "因素2", "因素3"]
}
`

const portfolioTemplate = `你是一名加密货币自动交易系统的管理者，系统每个周期运行一次。

## 当前行情
- 交易对: {{ .Market.Symbol }}
- 当前价格: {{ printf "%.2f" .Market.CurrentPrice }}
- 24小时涨跌: {{ printf "%.2f" .Market.PriceChangePercent }}%
- 24小时最高: {{ .Market.HighPrice }}
- 24小时最低: {{ .Market.LowPrice }}

{{ template "indicators" . }}
{{ template "candles" . }}
## 当前持仓
{{ if .Positions }}持仓资产: {{ join .Summary.Assets ", " }} (共 {{ .Summary.OpenCount }} 个)
{{ range $i, $p := .Positions }}- 持仓{{ inc $i }}: {{ $p.Asset }} 数量 {{ $p.Quantity }} 方向 {{ $p.Side }}{{ if $p.EntryPrice }} 均价 {{ printf "%.2f" $p.EntryPrice }} 盈亏 {{ printf "%+.2f" $p.PnLPercent }}%{{ end }}{{ if $p.OpenedAt }} 建仓于 {{ $p.OpenedAt }}{{ end }}
{{ end }}{{ else }}无持仓
{{ end }}
## 最近成交
{{ if .Trades }}{{ range $i, $t := .Trades }}- 成交{{ inc $i }}: {{ $t.Side }} 价格 {{ $t.Price.StringFixed 2 }} 数量 {{ $t.Quantity }}
{{ end }}{{ else }}本地暂无成交记录
{{ end }}
## 任务
分析行情与当前敞口，决定：
1. 对每个已有持仓：CLOSE（止盈或止损）还是 HOLD；
2. 敞口较低时是否新开 BUY 或 SELL 单，默认数量 {{ .OrderQuantity }}。

规则：
- 不要过度交易，仅在信心度高于 0.75 时新开仓；
- 行情不明朗时 HOLD 是最佳选择；
- 每个决定都必须给出清晰的理由。

请严格输出唯一的 JSON 对象，格式如下：
{
  "positionActions": [
    {"asset": "BTC", "action": "CLOSE|HOLD", "reason": "针对该资产的理由"}
  ],
  "newOrder": {
    "shouldOpen": true|false,
    "side": "BUY|SELL|null",
    "quantity": {{ .OrderQuantity }},
    "reason": "新开单理由",
    "stopLoss": 止损价,
    "takeProfit": 止盈价
  },
  "overallStrategy": "策略概述",
  "marketOutlook": "bullish|bearish|neutral",
  "confidence": 0.0-1.0,
  "nextCheckRecommendation": "下次检查关注点"
}
`

var (
	funcs = template.FuncMap{
		"inc":  func(i int) int { return i + 1 },
		"join": strings.Join,
	}
	singleTmpl    = mustTemplate("single", singleTemplate)
	portfolioTmpl = mustTemplate("portfolio", portfolioTemplate)
)

func mustTemplate(name, body string) *template.Template {
	t := template.Must(template.New(name).Funcs(funcs).Parse(body))
	template.Must(t.New("indicators").Parse(indicatorSection))
	template.Must(t.New("candles").Parse(candleSection))
	return t
}

// PromptContext 用于渲染提示词。
type PromptContext struct {
	Market        feature.MarketContext
	Candles       []exchange.Candle
	Positions     []position.Position
	Summary       position.Summary
	Trades        []ledger.Trade
	OrderQuantity float64
}

// BuildPrompt 按决策类型渲染提示词。
func BuildPrompt(req Request) (string, error) {
	ctx := PromptContext{
		Market:        req.Market,
		Positions:     req.Positions,
		Summary:       position.Summarize(req.Positions),
		OrderQuantity: req.OrderQuantity,
	}

	tmpl := singleTmpl
	switch req.Kind {
	case KindPortfolio:
		tmpl = portfolioTmpl
		ctx.Candles = req.Market.Recent(portfolioPromptCandles)
		ctx.Trades = latestFirst(req.RecentTrades, promptTrades)
	case KindSingle:
		ctx.Candles = req.Market.Recent(singlePromptCandles)
	default:
		return "", fmt.Errorf("未知决策类型: %q", req.Kind)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}

// latestFirst 返回最近 n 笔成交，最新的在前。
func latestFirst(trades []ledger.Trade, n int) []ledger.Trade {
	if n <= 0 || len(trades) == 0 {
		return nil
	}
	out := make([]ledger.Trade, 0, n)
	for i := len(trades) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, trades[i])
	}
	return out
}
