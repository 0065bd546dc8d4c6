// internal/types/slippage.go
package types

import (
	"github.com/shopspring/decimal"
)

// DefaultSlippagePercent используется, когда пользователь не задал проскальзывание
const DefaultSlippagePercent = 0.5

// SlippageType определяет тип политики проскальзывания
type SlippageType string

const (
	// SlippageFixed использует фиксированное значение minAmountOut
	SlippageFixed SlippageType = "fixed"
	// SlippagePercent использует процент от ожидаемого выхода
	SlippagePercent SlippageType = "percent"
	// SlippageNone не использует ограничение minAmountOut
	SlippageNone SlippageType = "none"
)

// SlippageConfig конфигурирует политику проскальзывания
type SlippageConfig struct {
	Type SlippageType `json:"type" mapstructure:"type"`
	// Value:
	// - для SlippageFixed: точное значение minAmountOut в человекочитаемых единицах
	// - для SlippagePercent: процент (0.5 = 0.5%)
	// - для SlippageNone: игнорируется
	Value float64 `json:"value" mapstructure:"value"`
}

// CalculateMinAmountOut вычисляет minAmountOut как десятичную строку
func CalculateMinAmountOut(expected string, config SlippageConfig) string {
	switch config.Type {
	case SlippageFixed:
		return decimal.NewFromFloat(config.Value).String()
	case SlippageNone:
		return "0"
	default:
		amount, err := decimal.NewFromString(expected)
		if err != nil || !amount.IsPositive() {
			return "0"
		}
		pct := config.Value
		if config.Type != SlippagePercent || pct < 0 || pct >= 100 {
			pct = DefaultSlippagePercent
		}
		multiplier := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100)))
		return amount.Mul(multiplier).String()
	}
}
