package exchange

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
)

// convertOrder 优先读取 Binance 原始回执，缺失时回退到 ccxt 统一字段。
func convertOrder(sym Symbol, side OrderSide, order ccxt.Order) OrderResult {
	info := order.Info
	result := OrderResult{
		Symbol: sym.String(),
		Side:   side,
	}

	if id := parseString(info["orderId"]); id != "" {
		result.OrderID = id
	} else {
		result.OrderID = derefString(order.Id)
	}

	if status := strings.ToUpper(parseString(info["status"])); status != "" {
		result.Status = status
	} else {
		result.Status = normalizeStatus(derefString(order.Status))
	}

	result.ExecutedQty = parseDecimal(info["executedQty"])
	if result.ExecutedQty.IsZero() {
		result.ExecutedQty = decimalFromPtr(order.Filled)
	}
	result.CumulativeQuoteQty = parseDecimal(info["cummulativeQuoteQty"])
	if result.CumulativeQuoteQty.IsZero() {
		result.CumulativeQuoteQty = decimalFromPtr(order.Cost)
	}
	result.Price = parseDecimal(info["price"])
	if result.Price.IsZero() {
		result.Price = decimalFromPtr(order.Average)
	}
	if result.Price.IsZero() {
		result.Price = decimalFromPtr(order.Price)
	}

	if ts := parseDecimal(info["transactTime"]); ts.IsPositive() {
		result.TransactTime = time.UnixMilli(ts.IntPart()).UTC()
	} else if order.Timestamp != nil {
		result.TransactTime = time.UnixMilli(*order.Timestamp).UTC()
	}

	if rawFills, ok := info["fills"].([]interface{}); ok {
		for _, item := range rawFills {
			fill, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			result.Fills = append(result.Fills, Fill{
				Price:           parseDecimal(fill["price"]),
				Quantity:        parseDecimal(fill["qty"]),
				Commission:      parseDecimal(fill["commission"]),
				CommissionAsset: strings.ToUpper(parseString(fill["commissionAsset"])),
			})
		}
	}

	return result
}

func normalizeStatus(status string) string {
	switch strings.ToLower(status) {
	case "closed":
		return "FILLED"
	case "open":
		return "NEW"
	case "canceled", "cancelled":
		return "CANCELED"
	case "expired":
		return "EXPIRED"
	case "rejected":
		return "REJECTED"
	default:
		return strings.ToUpper(status)
	}
}

func sortBalances(balances []Balance) {
	sort.Slice(balances, func(i, j int) bool {
		return balances[i].Asset < balances[j].Asset
	})
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func decimalFromPtr(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func parseString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return fmt.Sprint(v)
	}
}

// parseDecimal 兼容交易所回执中的字符串、数字与 json.Number。
func parseDecimal(value interface{}) decimal.Decimal {
	switch v := value.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	case *float64:
		if v != nil {
			return decimal.NewFromFloat(*v)
		}
	case float32:
		return decimal.NewFromFloat32(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case int32:
		return decimal.NewFromInt(int64(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return decimal.Zero
		}
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
	}
	return decimal.Zero
}
