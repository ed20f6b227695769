package model

import "github.com/shopspring/decimal"

// LiquidityPoolInfo is one AMM pair. QuoteReserve is in quote-asset minor units,
// TokenReserve in the token's own minor units.
type LiquidityPoolInfo struct {
	ID           string          `json:"asset_id"`
	Name         string          `json:"asset_name"`
	ShortName    string          `json:"asset_short_name"`
	ImageURL     string          `json:"asset_image_url"`
	QuoteReserve decimal.Decimal `json:"xch_reserve"`
	TokenReserve decimal.Decimal `json:"token_reserve"`
}
