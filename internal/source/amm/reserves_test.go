package amm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceFromReserves(t *testing.T) {
	// 50 XCH against 100 tokens of denom 1000.
	quote := decimal.NewFromInt(50_000_000_000_000)
	tokens := decimal.NewFromInt(100_000)

	assert.InDelta(t, 0.5, PriceFromReserves(quote, tokens, 1000), 1e-12)
}

func TestPriceFromReservesZeroTokenReserve(t *testing.T) {
	quote := decimal.NewFromInt(50_000_000_000_000)
	assert.Equal(t, 0.0, PriceFromReserves(quote, decimal.Zero, 1000))
	assert.Equal(t, 0.0, PriceFromReserves(quote, decimal.NewFromInt(1), 0))
}

func TestLiquidityFromReserve(t *testing.T) {
	assert.InDelta(t, 100.0, LiquidityFromReserve(decimal.NewFromInt(50_000_000_000_000)), 1e-9)
	assert.Equal(t, 0.0, LiquidityFromReserve(decimal.Zero))
}
