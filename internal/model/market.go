package model

// MarketStats holds order-book trading statistics for one token market.
// Prices and volumes are in quote-asset units; changes are fractions (0.02 = 2%).
type MarketStats struct {
	ID        string  `json:"id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	PairID    string  `json:"pair_id"`
	LastPrice float64 `json:"last_price"`
	Change24h float64 `json:"change_24h"`
	Change7d  float64 `json:"change_7d"`
	Volume24h float64 `json:"volume_24h"`
	Volume7d  float64 `json:"volume_7d"`
	High24h   float64 `json:"high_24h"`
	Low24h    float64 `json:"low_24h"`
	Liquidity float64 `json:"liquidity"`
}
