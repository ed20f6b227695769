package orderbook

import (
	"encoding/json"
	"fmt"
	"strings"

	"catdash/internal/httpclient"
	"catdash/internal/model"
)

type tokensEnvelope struct {
	Success *bool             `json:"success"`
	Tokens  []json.RawMessage `json:"tokens"`
}

type rawToken struct {
	ID    string       `json:"id"`
	Code  string       `json:"code"`
	Name  string       `json:"name"`
	Denom model.Number `json:"denom"`
	Icon  string       `json:"icon"`
}

type marketsEnvelope struct {
	Success *bool                      `json:"success"`
	Markets map[string]json.RawMessage `json:"markets"`
}

type rawPeriod struct {
	Daily  model.Number `json:"daily"`
	Weekly model.Number `json:"weekly"`
}

type rawMarket struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Code   string               `json:"code"`
	PairID string               `json:"pair_id"`
	Volume map[string]rawPeriod `json:"volume"`
	Prices struct {
		Last struct {
			Price  model.Number `json:"price"`
			Change rawPeriod    `json:"change"`
		} `json:"last"`
		High rawPeriod `json:"high"`
		Low  rawPeriod `json:"low"`
	} `json:"prices"`
	Liquidity struct {
		Ask []model.Number `json:"ask"`
		Bid []model.Number `json:"bid"`
	} `json:"liquidity"`
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", httpclient.ErrMalformedEnvelope, fmt.Sprintf(format, args...))
}

// parseTokens validates the tokens envelope and drops invalid entries.
func parseTokens(body []byte) ([]model.TokenMetadata, error) {
	var env tokensEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, malformed("decode tokens: %v", err)
	}
	if env.Success == nil || !*env.Success {
		return nil, malformed("tokens: success flag not set")
	}
	if env.Tokens == nil {
		return nil, malformed("tokens: missing tokens array")
	}

	out := make([]model.TokenMetadata, 0, len(env.Tokens))
	for _, entry := range env.Tokens {
		var raw rawToken
		if err := json.Unmarshal(entry, &raw); err != nil {
			continue
		}
		if !isValidTokenMetadata(raw) {
			continue
		}
		out = append(out, model.TokenMetadata{
			ID:      strings.TrimSpace(raw.ID),
			Code:    strings.TrimSpace(raw.Code),
			Name:    strings.TrimSpace(raw.Name),
			IconURL: raw.Icon,
			Denom:   denomFrom(raw.Denom),
		})
	}
	return out, nil
}

// parseMarkets validates the markets envelope and returns the quote-asset group, dropping invalid entries.
func parseMarkets(body []byte, quote string) ([]model.MarketStats, error) {
	var env marketsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, malformed("decode markets: %v", err)
	}
	if env.Success == nil || !*env.Success {
		return nil, malformed("markets: success flag not set")
	}
	if env.Markets == nil {
		return nil, malformed("markets: missing markets object")
	}
	group, ok := env.Markets[quote]
	if !ok {
		return nil, malformed("markets: missing %q group", quote)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(group, &entries); err != nil || entries == nil {
		return nil, malformed("markets: %q group is not an array", quote)
	}

	out := make([]model.MarketStats, 0, len(entries))
	for _, entry := range entries {
		var raw rawMarket
		if err := json.Unmarshal(entry, &raw); err != nil {
			continue
		}
		if !isValidMarket(raw) {
			continue
		}
		vol := raw.Volume[quote]
		out = append(out, model.MarketStats{
			ID:        strings.TrimSpace(raw.ID),
			Code:      raw.Code,
			Name:      raw.Name,
			PairID:    raw.PairID,
			LastPrice: raw.Prices.Last.Price.Float(),
			Change24h: raw.Prices.Last.Change.Daily.Float(),
			Change7d:  raw.Prices.Last.Change.Weekly.Float(),
			Volume24h: vol.Daily.Float(),
			Volume7d:  vol.Weekly.Float(),
			High24h:   raw.Prices.High.Daily.Float(),
			Low24h:    raw.Prices.Low.Daily.Float(),
			Liquidity: depthLiquidity(raw.Liquidity.Bid, raw.Liquidity.Ask),
		})
	}
	return out, nil
}

// isValidTokenMetadata reports whether a token entry has the identity fields the merge needs.
func isValidTokenMetadata(raw rawToken) bool {
	return strings.TrimSpace(raw.ID) != "" &&
		strings.TrimSpace(raw.Code) != "" &&
		strings.TrimSpace(raw.Name) != ""
}

// isValidMarket reports whether a market entry has an id and a numeric last price.
// A last price of exactly 0 is valid here; the merge decides what to do with it.
func isValidMarket(raw rawMarket) bool {
	return strings.TrimSpace(raw.ID) != "" && raw.Prices.Last.Price.Valid
}

func denomFrom(n model.Number) int64 {
	if !n.Valid {
		return model.DefaultDenom
	}
	v := n.Decimal.IntPart()
	if v <= 0 {
		return model.DefaultDenom
	}
	return v
}

// depthLiquidity sums the deepest bid level and the deepest ask level.
// Depth arrays are ordered from the top of book outwards, so the deepest level is the last one.
func depthLiquidity(bid, ask []model.Number) float64 {
	return deepest(bid) + deepest(ask)
}

func deepest(levels []model.Number) float64 {
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i].Valid {
			return levels[i].Float()
		}
	}
	return 0
}
