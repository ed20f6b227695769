package aggregate

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"catdash/internal/model"
	"catdash/internal/source/amm"
)

// DefaultIconURLPattern builds an icon URL for tokens without metadata. {id} is replaced by the token id.
const DefaultIconURLPattern = "https://icons.dexie.space/{id}.webp"

// Merger reconciles the upstream inputs into one record per token id.
type Merger struct {
	IconURLPattern string
	Now            func() time.Time
}

// Merge runs a Merger with default settings.
func Merge(
	tokens []model.TokenMetadata,
	markets []model.MarketStats,
	fiatRate float64,
	pools []model.LiquidityPoolInfo,
	lastTrades map[string]model.LastTradeRecord,
) []model.DashboardToken {
	return (&Merger{}).Merge(tokens, markets, fiatRate, pools, lastTrades)
}

// claimedSet tracks which pass owns each token id. An id is claimed at most once.
type claimedSet map[string]struct{}

func (s claimedSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s claimedSet) claim(id string) {
	s[id] = struct{}{}
}

// Merge builds the ranked collection in three passes with strict precedence:
// order-book markets, then AMM-only pools, then last trade or no market.
func (m *Merger) Merge(
	tokens []model.TokenMetadata,
	markets []model.MarketStats,
	fiatRate float64,
	pools []model.LiquidityPoolInfo,
	lastTrades map[string]model.LastTradeRecord,
) []model.DashboardToken {
	now := time.Now().UTC()
	if m.Now != nil {
		now = m.Now().UTC()
	}

	metaByID := make(map[string]model.TokenMetadata, len(tokens))
	for _, t := range tokens {
		if _, ok := metaByID[t.ID]; !ok {
			metaByID[t.ID] = t
		}
	}
	poolByID := make(map[string]model.LiquidityPoolInfo, len(pools))
	for _, p := range pools {
		if _, ok := poolByID[p.ID]; !ok {
			poolByID[p.ID] = p
		}
	}

	claimed := make(claimedSet, len(tokens)+len(markets))
	out := make([]model.DashboardToken, 0, len(tokens)+len(pools))

	for _, market := range markets {
		if market.ID == "" || claimed.has(market.ID) {
			continue
		}
		if market.LastPrice <= 0 {
			continue
		}
		out = append(out, m.fromMarket(market, metaByID, poolByID, fiatRate, now))
		claimed.claim(market.ID)
	}

	for _, pool := range pools {
		if pool.ID == "" || claimed.has(pool.ID) {
			continue
		}
		record, ok := m.fromPool(pool, metaByID, fiatRate, now)
		if !ok {
			continue
		}
		out = append(out, record)
		claimed.claim(pool.ID)
	}

	for _, token := range tokens {
		if token.ID == "" || claimed.has(token.ID) {
			continue
		}
		if trade, ok := lastTrades[token.ID]; ok && trade.Price > 0 {
			out = append(out, m.fromLastTrade(token, trade, fiatRate, now))
		} else {
			out = append(out, m.withoutMarket(token, now))
		}
		claimed.claim(token.ID)
	}

	sortTokens(out)
	return out
}

func (m *Merger) fromMarket(
	market model.MarketStats,
	metaByID map[string]model.TokenMetadata,
	poolByID map[string]model.LiquidityPoolInfo,
	fiatRate float64,
	now time.Time,
) model.DashboardToken {
	symbol, name, icon := market.Code, market.Name, ""
	if meta, ok := metaByID[market.ID]; ok {
		symbol, name, icon = meta.Code, meta.Name, meta.IconURL
	}
	if icon == "" {
		icon = m.iconURL(market.ID)
	}

	liquidity := market.Liquidity
	if pool, ok := poolByID[market.ID]; ok {
		liquidity = max(liquidity, amm.LiquidityFromReserve(pool.QuoteReserve))
	}

	price := market.LastPrice
	return model.DashboardToken{
		ID:           market.ID,
		Symbol:       symbol,
		Name:         name,
		IconURL:      icon,
		PriceXch:     price,
		PriceUsd:     price * fiatRate,
		Change24h:    market.Change24h * 100,
		Change7d:     market.Change7d * 100,
		Volume24hXch: market.Volume24h,
		Volume24hUsd: market.Volume24h * fiatRate,
		Volume7dXch:  market.Volume7d,
		Volume7dUsd:  market.Volume7d * fiatRate,
		LiquidityXch: liquidity,
		LiquidityUsd: liquidity * fiatRate,
		High24h:      market.High24h,
		Low24h:       market.Low24h,
		PairID:       market.PairID,
		LastUpdated:  now,
		HasMarket:    true,
		PriceSource:  model.PriceSourceOrderBook,
	}
}

func (m *Merger) fromPool(
	pool model.LiquidityPoolInfo,
	metaByID map[string]model.TokenMetadata,
	fiatRate float64,
	now time.Time,
) (model.DashboardToken, bool) {
	denom := model.DefaultDenom
	symbol, name, icon := pool.ShortName, pool.Name, pool.ImageURL
	if meta, ok := metaByID[pool.ID]; ok {
		denom = meta.DenomOrDefault()
		symbol, name = meta.Code, meta.Name
		if meta.IconURL != "" {
			icon = meta.IconURL
		}
	}
	if icon == "" {
		icon = m.iconURL(pool.ID)
	}

	price := amm.PriceFromReserves(pool.QuoteReserve, pool.TokenReserve, denom)
	if price <= 0 {
		return model.DashboardToken{}, false
	}
	liquidity := amm.LiquidityFromReserve(pool.QuoteReserve)

	return model.DashboardToken{
		ID:           pool.ID,
		Symbol:       symbol,
		Name:         name,
		IconURL:      icon,
		PriceXch:     price,
		PriceUsd:     price * fiatRate,
		LiquidityXch: liquidity,
		LiquidityUsd: liquidity * fiatRate,
		LastUpdated:  now,
		HasMarket:    true,
		PriceSource:  model.PriceSourceAMM,
	}, true
}

func (m *Merger) fromLastTrade(token model.TokenMetadata, trade model.LastTradeRecord, fiatRate float64, now time.Time) model.DashboardToken {
	updated := trade.Timestamp
	if updated.IsZero() {
		updated = now
	}
	return model.DashboardToken{
		ID:          token.ID,
		Symbol:      token.Code,
		Name:        token.Name,
		IconURL:     m.tokenIcon(token),
		PriceXch:    trade.Price,
		PriceUsd:    trade.Price * fiatRate,
		LastUpdated: updated.UTC(),
		HasMarket:   true,
		PriceSource: model.PriceSourceLastTrade,
	}
}

func (m *Merger) withoutMarket(token model.TokenMetadata, now time.Time) model.DashboardToken {
	return model.DashboardToken{
		ID:          token.ID,
		Symbol:      token.Code,
		Name:        token.Name,
		IconURL:     m.tokenIcon(token),
		LastUpdated: now,
		HasMarket:   false,
		PriceSource: model.PriceSourceNone,
	}
}

func (m *Merger) tokenIcon(token model.TokenMetadata) string {
	if token.IconURL != "" {
		return token.IconURL
	}
	return m.iconURL(token.ID)
}

func (m *Merger) iconURL(id string) string {
	pattern := m.IconURLPattern
	if pattern == "" {
		pattern = DefaultIconURLPattern
	}
	return strings.ReplaceAll(pattern, "{id}", id)
}

// sortTokens orders tokens with a market first, by 7-day volume descending,
// then tokens without a market by symbol. The sort is stable.
func sortTokens(tokens []model.DashboardToken) {
	col := collate.New(language.Und)
	slices.SortStableFunc(tokens, func(a, b model.DashboardToken) int {
		if a.HasMarket != b.HasMarket {
			if a.HasMarket {
				return -1
			}
			return 1
		}
		if a.HasMarket {
			switch {
			case a.Volume7dXch > b.Volume7dXch:
				return -1
			case a.Volume7dXch < b.Volume7dXch:
				return 1
			default:
				return 0
			}
		}
		return col.CompareString(a.Symbol, b.Symbol)
	})
}
