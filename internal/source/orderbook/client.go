package orderbook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"catdash/internal/httpclient"
	"catdash/internal/model"
)

const (
	DefaultTokensPath  = "/v1/swap/tokens"
	DefaultMarketsPath = "/v3/prices/markets"
	DefaultQuoteAsset  = "xch"
)

// Config holds order-book client settings.
type Config struct {
	BaseURL      string
	TokensPath   string
	MarketsPath  string
	QuoteAsset   string
	MaxRetries   int
	RetryBackoff time.Duration
}

// Client fetches token metadata and market statistics from the order-book exchange.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger *zap.Logger
}

// Result carries the independent outcomes of the tokens and markets fetches.
type Result struct {
	Tokens     []model.TokenMetadata
	TokensErr  error
	Markets    []model.MarketStats
	MarketsErr error
}

func NewClient(cfg Config, hc *httpclient.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hc == nil {
		hc = httpclient.New()
	}
	if cfg.TokensPath == "" {
		cfg.TokensPath = DefaultTokensPath
	}
	if cfg.MarketsPath == "" {
		cfg.MarketsPath = DefaultMarketsPath
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = DefaultQuoteAsset
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: hc, logger: logger.With(zap.String("source", "orderbook"))}
}

// FetchTokens returns every valid token listed by the exchange.
func (c *Client) FetchTokens(ctx context.Context) ([]model.TokenMetadata, error) {
	body, err := c.get(ctx, "tokens", c.cfg.TokensPath)
	if err != nil {
		return nil, err
	}
	return parseTokens(body)
}

// FetchMarkets returns every valid market quoted in the configured quote asset.
func (c *Client) FetchMarkets(ctx context.Context) ([]model.MarketStats, error) {
	body, err := c.get(ctx, "markets", c.cfg.MarketsPath)
	if err != nil {
		return nil, err
	}
	return parseMarkets(body, c.cfg.QuoteAsset)
}

// FetchAll runs FetchTokens and FetchMarkets concurrently and waits for both.
func (c *Client) FetchAll(ctx context.Context) Result {
	var res Result
	var wg conc.WaitGroup
	wg.Go(func() {
		res.Tokens, res.TokensErr = c.FetchTokens(ctx)
	})
	wg.Go(func() {
		res.Markets, res.MarketsErr = c.FetchMarkets(ctx)
	})
	wg.Wait()
	return res
}

// get fetches a path with retry on transport errors and non-2xx statuses.
// Envelope validation happens after the retries and is not retried.
func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	var body []byte
	attempt := 0
	err := httpclient.Retry(ctx, c.cfg.MaxRetries, c.cfg.RetryBackoff, func(ctx context.Context) error {
		attempt++
		var err error
		body, err = c.http.GetRaw(ctx, c.cfg.BaseURL+path)
		if err != nil {
			c.logger.Warn("fetch failed",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	return body, nil
}
