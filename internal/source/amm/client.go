package amm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"catdash/internal/httpclient"
	"catdash/internal/model"
)

const (
	DefaultPairsPath = "/pairs"
	DefaultPageSize  = 500
)

// Config holds AMM client settings.
type Config struct {
	BaseURL   string
	PairsPath string
	PageSize  int
}

// Client fetches liquidity-pool pairs. It does not retry; callers treat failure as an empty pool set.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *zap.Logger
}

type rawPair struct {
	AssetID        string       `json:"asset_id"`
	AssetName      string       `json:"asset_name"`
	AssetShortName string       `json:"asset_short_name"`
	AssetImageURL  string       `json:"asset_image_url"`
	XchReserve     model.Number `json:"xch_reserve"`
	TokenReserve   model.Number `json:"token_reserve"`
}

func NewClient(cfg Config, hc *httpclient.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hc == nil {
		hc = httpclient.New()
	}
	if cfg.PairsPath == "" {
		cfg.PairsPath = DefaultPairsPath
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, logger: logger.With(zap.String("source", "amm"))}
}

// FetchPairs returns every pool with an asset id and both reserves.
func (c *Client) FetchPairs(ctx context.Context) ([]model.LiquidityPoolInfo, error) {
	url := fmt.Sprintf("%s%s?skip=0&limit=%d", c.cfg.BaseURL, c.cfg.PairsPath, c.cfg.PageSize)
	var entries []json.RawMessage
	if err := c.http.GetJSON(ctx, url, &entries); err != nil {
		return nil, fmt.Errorf("fetch pairs: %w", err)
	}
	return parsePairs(entries)
}

// parsePairs decodes each entry on its own and drops the ones that fail isValidPair.
func parsePairs(entries []json.RawMessage) ([]model.LiquidityPoolInfo, error) {
	if entries == nil {
		return nil, fmt.Errorf("%w: pairs response is not an array", httpclient.ErrMalformedEnvelope)
	}

	out := make([]model.LiquidityPoolInfo, 0, len(entries))
	for _, entry := range entries {
		var raw rawPair
		if err := json.Unmarshal(entry, &raw); err != nil {
			continue
		}
		if !isValidPair(raw) {
			continue
		}
		out = append(out, model.LiquidityPoolInfo{
			ID:           strings.TrimSpace(raw.AssetID),
			Name:         raw.AssetName,
			ShortName:    raw.AssetShortName,
			ImageURL:     raw.AssetImageURL,
			QuoteReserve: raw.XchReserve.Decimal,
			TokenReserve: raw.TokenReserve.Decimal,
		})
	}
	return out, nil
}

func isValidPair(raw rawPair) bool {
	return strings.TrimSpace(raw.AssetID) != "" && raw.XchReserve.Valid && raw.TokenReserve.Valid
}
