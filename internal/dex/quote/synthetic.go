// internal/dex/quote/synthetic.go
package quote

import (
	"strings"

	"github.com/shopspring/decimal"
)

const unknownPriceKey = "unknown"

// Synthetic prices a pair off a static USD table. It never fails and is the
// terminal link of the chain.
type Synthetic struct {
	prices map[string]decimal.Decimal
	factor decimal.Decimal
}

// NewSynthetic builds the table. Keys are matched case-insensitively.
func NewSynthetic(prices map[string]float64, factor float64) *Synthetic {
	table := make(map[string]decimal.Decimal, len(prices))
	for k, v := range prices {
		if v > 0 {
			table[strings.ToLower(k)] = decimal.NewFromFloat(v)
		}
	}
	return &Synthetic{prices: table, factor: decimal.NewFromFloat(factor)}
}

func (s *Synthetic) Name() string { return "synthetic" }

// Price returns the reference USD price for symbol.
func (s *Synthetic) Price(symbol string) (decimal.Decimal, bool) {
	if p, ok := s.prices[strings.ToLower(symbol)]; ok {
		return p, true
	}
	if p, ok := s.prices[unknownPriceKey]; ok {
		return p, false
	}
	return decimal.NewFromInt(1), false
}

// Quote returns amountIn * priceIn / priceOut * factor with 6 decimals.
func (s *Synthetic) Quote(symbolIn, symbolOut string, amountIn decimal.Decimal) string {
	if !amountIn.IsPositive() {
		return "0"
	}
	priceIn, _ := s.Price(symbolIn)
	priceOut, _ := s.Price(symbolOut)
	return amountIn.Mul(priceIn).Div(priceOut).Mul(s.factor).StringFixed(6)
}
