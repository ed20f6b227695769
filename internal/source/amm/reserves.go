package amm

import "github.com/shopspring/decimal"

// MojosPerXCH converts quote-asset minor units to whole units.
var MojosPerXCH = decimal.New(1, 12)

// PriceFromReserves is the instantaneous pool price in quote units per whole token.
// It returns 0 when the token reserve is empty.
func PriceFromReserves(quoteReserve, tokenReserve decimal.Decimal, denom int64) float64 {
	if denom <= 0 || !tokenReserve.IsPositive() {
		return 0
	}
	quote := quoteReserve.Div(MojosPerXCH)
	tokens := tokenReserve.Div(decimal.NewFromInt(denom))
	if tokens.IsZero() {
		return 0
	}
	price, _ := quote.Div(tokens).Float64()
	return price
}

// LiquidityFromReserve approximates both sides of the pool as twice the quote reserve, in whole units.
func LiquidityFromReserve(quoteReserve decimal.Decimal) float64 {
	liq, _ := quoteReserve.Div(MojosPerXCH).Mul(decimal.NewFromInt(2)).Float64()
	return liq
}
