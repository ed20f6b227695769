package lasttrade

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"catdash/internal/httpclient"
	"catdash/internal/model"
)

const (
	DefaultOffersPath = "/v1/offers"
	DefaultQuoteAsset = "xch"
	MaxPageSize       = 200

	// offerStatusCompleted is the order-book status code of a fully taken offer.
	offerStatusCompleted = 4
)

// Config holds last-trade client settings.
type Config struct {
	BaseURL    string
	OffersPath string
	QuoteAsset string
	PageSize   int
}

// Client derives last-known prices from the newest completed offers.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *zap.Logger
}

type offersEnvelope struct {
	Success *bool             `json:"success"`
	Offers  []json.RawMessage `json:"offers"`
}

type rawAsset struct {
	ID     string       `json:"id"`
	Code   string       `json:"code"`
	Amount model.Number `json:"amount"`
}

type rawOffer struct {
	ID            string     `json:"id"`
	Offered       []rawAsset `json:"offered"`
	Requested     []rawAsset `json:"requested"`
	DateCompleted string     `json:"date_completed"`
}

func NewClient(cfg Config, hc *httpclient.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hc == nil {
		hc = httpclient.New()
	}
	if cfg.OffersPath == "" {
		cfg.OffersPath = DefaultOffersPath
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = DefaultQuoteAsset
	}
	if cfg.PageSize <= 0 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = MaxPageSize
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, logger: logger.With(zap.String("source", "lasttrade"))}
}

// FetchLastTradePrices returns the newest completed-trade price per token id.
func (c *Client) FetchLastTradePrices(ctx context.Context) (map[string]model.LastTradeRecord, error) {
	url := fmt.Sprintf("%s%s?status=%d&page_size=%d", c.cfg.BaseURL, c.cfg.OffersPath, offerStatusCompleted, c.cfg.PageSize)
	body, err := c.http.GetRaw(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch offers: %w", err)
	}

	var env offersEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode offers: %v", httpclient.ErrMalformedEnvelope, err)
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("%w: offers: success flag false", httpclient.ErrMalformedEnvelope)
	}
	if env.Offers == nil {
		return nil, fmt.Errorf("%w: offers: missing offers array", httpclient.ErrMalformedEnvelope)
	}

	offers := make([]rawOffer, 0, len(env.Offers))
	for _, entry := range env.Offers {
		var offer rawOffer
		if err := json.Unmarshal(entry, &offer); err != nil {
			continue
		}
		offers = append(offers, offer)
	}

	records := latestPrices(offers, c.cfg.QuoteAsset)
	c.logger.Debug("last trades derived", zap.Int("offers", len(offers)), zap.Int("tokens", len(records)))
	return records, nil
}

// latestPrices walks newest-first offers and keeps the first price seen per token id.
func latestPrices(offers []rawOffer, quote string) map[string]model.LastTradeRecord {
	out := make(map[string]model.LastTradeRecord)
	for _, offer := range offers {
		tokenID, price, ok := tradePrice(offer, quote)
		if !ok {
			continue
		}
		if _, seen := out[tokenID]; seen {
			continue
		}
		out[tokenID] = model.LastTradeRecord{
			ID:        tokenID,
			Price:     price,
			Timestamp: parseCompleted(offer.DateCompleted),
		}
	}
	return out
}

// tradePrice identifies the quote leg and the token leg of an offer and returns
// quote amount per token. Offers without both legs, or with a zero amount, are skipped.
func tradePrice(offer rawOffer, quote string) (string, float64, bool) {
	var quoteLeg, tokenLeg *rawAsset
	if q := findAsset(offer.Offered, quote); q != nil {
		quoteLeg, tokenLeg = q, firstOther(offer.Requested, quote)
	} else if q := findAsset(offer.Requested, quote); q != nil {
		quoteLeg, tokenLeg = q, firstOther(offer.Offered, quote)
	}
	if quoteLeg == nil || tokenLeg == nil {
		return "", 0, false
	}

	quoteAmt := quoteLeg.Amount.Decimal
	tokenAmt := tokenLeg.Amount.Decimal
	if !quoteLeg.Amount.Valid || !tokenLeg.Amount.Valid || !quoteAmt.IsPositive() || !tokenAmt.IsPositive() {
		return "", 0, false
	}

	price, _ := quoteAmt.DivRound(tokenAmt, 18).Float64()
	return strings.TrimSpace(tokenLeg.ID), price, true
}

func findAsset(assets []rawAsset, id string) *rawAsset {
	for i := range assets {
		if strings.EqualFold(assets[i].ID, id) {
			return &assets[i]
		}
	}
	return nil
}

func firstOther(assets []rawAsset, quote string) *rawAsset {
	for i := range assets {
		id := strings.TrimSpace(assets[i].ID)
		if id != "" && !strings.EqualFold(id, quote) {
			return &assets[i]
		}
	}
	return nil
}

func parseCompleted(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

