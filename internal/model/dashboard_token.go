package model

import "time"

// PriceSource tags the upstream path that produced a token's price.
type PriceSource string

const (
	PriceSourceOrderBook PriceSource = "orderbook"
	PriceSourceAMM       PriceSource = "amm"
	PriceSourceLastTrade PriceSource = "lastTrade"
	PriceSourceNone      PriceSource = "none"
)

// DashboardToken is the merged, UI-facing record for one token.
type DashboardToken struct {
	ID           string      `json:"id"`
	Symbol       string      `json:"symbol"`
	Name         string      `json:"name"`
	IconURL      string      `json:"icon"`
	PriceXch     float64     `json:"priceXch"`
	PriceUsd     float64     `json:"priceUsd"`
	Change24h    float64     `json:"change24h"`
	Change7d     float64     `json:"change7d"`
	Volume24hXch float64     `json:"volume24hXch"`
	Volume24hUsd float64     `json:"volume24hUsd"`
	Volume7dXch  float64     `json:"volume7dXch"`
	Volume7dUsd  float64     `json:"volume7dUsd"`
	LiquidityXch float64     `json:"liquidityXch"`
	LiquidityUsd float64     `json:"liquidityUsd"`
	High24h      float64     `json:"high24h"`
	Low24h       float64     `json:"low24h"`
	PairID       string      `json:"pairId,omitempty"`
	LastUpdated  time.Time   `json:"lastUpdated"`
	HasMarket    bool        `json:"hasMarket"`
	PriceSource  PriceSource `json:"priceSource"`
}
