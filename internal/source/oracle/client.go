package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"catdash/internal/httpclient"
)

const (
	DefaultPrimaryURL    = "https://api.coingecko.com/api/v3/simple/price?ids=chia&vs_currencies=usd"
	DefaultPrimaryPath   = "chia.usd"
	DefaultSecondaryURL  = "https://api.coinpaprika.com/v1/tickers/xch-chia"
	DefaultSecondaryPath = "quotes.USD.price"

	// DefaultFallbackRate is served when no live or cached rate exists.
	DefaultFallbackRate = 25.0
)

// Tier names how a rate was resolved.
type Tier string

const (
	TierCache     Tier = "cache"
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierStale     Tier = "stale"
	TierFallback  Tier = "fallback"
)

// Quote is a resolved quote-asset to fiat rate.
type Quote struct {
	Rate      float64
	Tier      Tier
	UpdatedAt time.Time
}

// Config holds oracle endpoints. Paths are dot-separated keys into the JSON response.
type Config struct {
	PrimaryURL    string
	PrimaryPath   string
	SecondaryURL  string
	SecondaryPath string
	Fallback      float64
}

// Client resolves the fiat rate through primary, secondary, cached and constant sources.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	cache  *PriceCache
	logger *zap.Logger
}

func NewClient(cfg Config, hc *httpclient.Client, cache *PriceCache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hc == nil {
		hc = httpclient.New()
	}
	if cache == nil {
		cache = NewPriceCache(DefaultTTL)
	}
	if cfg.PrimaryPath == "" {
		cfg.PrimaryPath = DefaultPrimaryPath
	}
	if cfg.SecondaryPath == "" {
		cfg.SecondaryPath = DefaultSecondaryPath
	}
	if cfg.Fallback <= 0 {
		cfg.Fallback = DefaultFallbackRate
	}
	return &Client{cfg: cfg, http: hc, cache: cache, logger: logger.With(zap.String("source", "oracle"))}
}

// Fallback returns the constant rate used when everything else fails.
func (c *Client) Fallback() float64 {
	return c.cfg.Fallback
}

// FetchQuoteFiatPrice always yields a usable rate; the Tier records which source produced it.
func (c *Client) FetchQuoteFiatPrice(ctx context.Context) Quote {
	if rate, at, ok := c.cache.Fresh(); ok {
		return Quote{Rate: rate, Tier: TierCache, UpdatedAt: at}
	}

	rate, err := c.fetch(ctx, c.cfg.PrimaryURL, c.cfg.PrimaryPath)
	if err == nil {
		return Quote{Rate: rate, Tier: TierPrimary, UpdatedAt: c.cache.Set(rate)}
	}
	c.logger.Warn("primary oracle failed", zap.Error(err))

	rate, err = c.fetch(ctx, c.cfg.SecondaryURL, c.cfg.SecondaryPath)
	if err == nil {
		return Quote{Rate: rate, Tier: TierSecondary, UpdatedAt: c.cache.Set(rate)}
	}
	c.logger.Warn("secondary oracle failed", zap.Error(err))

	if rate, at, ok := c.cache.Last(); ok {
		c.logger.Warn("serving stale oracle rate", zap.Float64("rate", rate), zap.Time("updated_at", at))
		return Quote{Rate: rate, Tier: TierStale, UpdatedAt: at}
	}

	c.logger.Warn("serving fallback oracle rate", zap.Float64("rate", c.cfg.Fallback))
	return Quote{Rate: c.cfg.Fallback, Tier: TierFallback}
}

func (c *Client) fetch(ctx context.Context, url, path string) (float64, error) {
	if url == "" {
		return 0, fmt.Errorf("oracle url not configured")
	}
	body, err := c.http.GetRaw(ctx, url)
	if err != nil {
		return 0, err
	}
	rate, err := valueAtPath(body, path)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, fmt.Errorf("unusable rate %v at %s", rate, path)
	}
	return rate, nil
}

// valueAtPath walks dot-separated object keys and returns the numeric leaf.
func valueAtPath(body []byte, path string) (float64, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var node interface{}
	if err := dec.Decode(&node); err != nil {
		return 0, fmt.Errorf("%w: decode oracle: %v", httpclient.ErrMalformedEnvelope, err)
	}

	for _, key := range strings.Split(path, ".") {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return 0, fmt.Errorf("%w: %s: %q is not an object", httpclient.ErrMalformedEnvelope, path, key)
		}
		node, ok = obj[key]
		if !ok {
			return 0, fmt.Errorf("%w: %s: missing %q", httpclient.ErrMalformedEnvelope, path, key)
		}
	}

	switch v := node.(type) {
	case json.Number:
		return v.Float64()
	case string:
		return json.Number(v).Float64()
	default:
		return 0, fmt.Errorf("%w: %s: not numeric", httpclient.ErrMalformedEnvelope, path)
	}
}
