package types

import "github.com/shopspring/decimal"

// LPDecimals is the decimal convention for reserves and LP supply.
const LPDecimals = 18

// LiquidityPool is a pool snapshot. Reserves and supply are formatted with LPDecimals.
type LiquidityPool struct {
	ID                string  `json:"id"`
	PoolAddress       string  `json:"poolAddress"`
	Name              string  `json:"name"`
	Token1            Token   `json:"token1"`
	Token2            Token   `json:"token2"`
	Reserve1          string  `json:"reserve1"`
	Reserve2          string  `json:"reserve2"`
	TotalSupplyLP     string  `json:"totalSupplyLP"`
	UserLPBalance     string  `json:"userLpBalance,omitempty"`
	APY               float64 `json:"apy,omitempty"`
	TotalLiquidityUSD string  `json:"totalLiquidityUSD,omitempty"`
}

// UserSharePercentage is derived from the current LP balance and supply on
// every call.
func (p LiquidityPool) UserSharePercentage() decimal.Decimal {
	balance, err := decimal.NewFromString(p.UserLPBalance)
	if err != nil {
		return decimal.Zero
	}
	supply, err := decimal.NewFromString(p.TotalSupplyLP)
	if err != nil || !supply.IsPositive() {
		return decimal.Zero
	}
	return balance.Div(supply).Mul(decimal.NewFromInt(100))
}
