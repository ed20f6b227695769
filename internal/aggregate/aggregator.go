package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"catdash/internal/model"
	"catdash/internal/observability"
	"catdash/internal/source/oracle"
	"catdash/internal/source/orderbook"
)

// Source names used in errors, logs and metrics.
const (
	SourceTokens    = "orderbook_tokens"
	SourceMarkets   = "orderbook_markets"
	SourcePools     = "amm_pairs"
	SourceLastTrade = "last_trade"
	SourceOracle    = "oracle"
)

// OrderBookSource fetches token metadata and market statistics.
type OrderBookSource interface {
	FetchAll(ctx context.Context) orderbook.Result
}

// PoolSource fetches AMM liquidity pools.
type PoolSource interface {
	FetchPairs(ctx context.Context) ([]model.LiquidityPoolInfo, error)
}

// LastTradeSource fetches the newest completed-trade price per token.
type LastTradeSource interface {
	FetchLastTradePrices(ctx context.Context) (map[string]model.LastTradeRecord, error)
}

// RateSource resolves the quote-asset to fiat rate. It never fails.
type RateSource interface {
	FetchQuoteFiatPrice(ctx context.Context) oracle.Quote
	Fallback() float64
}

// FatalError is returned when a source without a fallback fails.
type FatalError struct {
	Source string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("aggregation failed: %s: %v", e.Source, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Sources bundles the upstream clients.
type Sources struct {
	OrderBook OrderBookSource
	Pools     PoolSource
	LastTrade LastTradeSource
	Rates     RateSource
}

// DefaultCycleTimeout bounds one shared aggregation cycle. It covers the order-book
// retries at their default timeout and backoff.
const DefaultCycleTimeout = 2 * time.Minute

// Aggregator fans out to all sources, classifies failures and merges the results.
type Aggregator struct {
	sources Sources
	merger  *Merger
	metrics *observability.Metrics
	logger  *zap.Logger
	group   singleflight.Group
	timeout time.Duration
	now     func() time.Time
}

func NewAggregator(sources Sources, merger *Merger, metrics *observability.Metrics, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if merger == nil {
		merger = &Merger{}
	}
	return &Aggregator{
		sources: sources,
		merger:  merger,
		metrics: metrics,
		logger:  logger,
		timeout: DefaultCycleTimeout,
		now:     time.Now,
	}
}

// Fetch runs one aggregation cycle. Concurrent callers share a single in-flight cycle.
// The cycle is detached from ctx and bounded by its own timeout; cancelling ctx only
// releases this caller.
func (a *Aggregator) Fetch(ctx context.Context) (model.Snapshot, error) {
	ch := a.group.DoChan("dashboard", func() (interface{}, error) {
		cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		return a.fetch(cycleCtx)
	})

	select {
	case <-ctx.Done():
		return model.Snapshot{}, fmt.Errorf("wait for aggregation: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			a.logger.Debug("joined in-flight aggregation")
		}
		if res.Err != nil {
			return model.Snapshot{}, res.Err
		}
		return res.Val.(model.Snapshot), nil
	}
}

// FetchSafe never fails: on any error it returns an empty snapshot flagged stale.
func (a *Aggregator) FetchSafe(ctx context.Context) model.Snapshot {
	snap, err := a.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			a.logger.Debug("caller left before aggregation finished", zap.Error(err))
		} else {
			a.logger.Error("aggregation failed, serving stale placeholder", zap.Error(err))
		}
		return model.EmptySnapshot(a.sources.Rates.Fallback(), a.now())
	}
	return snap
}

func (a *Aggregator) fetch(ctx context.Context) (model.Snapshot, error) {
	logger := a.logger.With(zap.String("cycle_id", uuid.NewString()))
	start := a.now()

	var (
		book      orderbook.Result
		pools     []model.LiquidityPoolInfo
		poolsErr  error
		trades    map[string]model.LastTradeRecord
		tradesErr error
		quote     oracle.Quote
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		began := time.Now()
		book = a.sources.OrderBook.FetchAll(ctx)
		elapsed := time.Since(began)
		a.metrics.ObserveSource(SourceTokens, elapsed, book.TokensErr)
		a.metrics.ObserveSource(SourceMarkets, elapsed, book.MarketsErr)
	})
	wg.Go(func() {
		began := time.Now()
		pools, poolsErr = a.sources.Pools.FetchPairs(ctx)
		a.metrics.ObserveSource(SourcePools, time.Since(began), poolsErr)
	})
	wg.Go(func() {
		began := time.Now()
		trades, tradesErr = a.sources.LastTrade.FetchLastTradePrices(ctx)
		a.metrics.ObserveSource(SourceLastTrade, time.Since(began), tradesErr)
	})
	wg.Go(func() {
		began := time.Now()
		quote = a.sources.Rates.FetchQuoteFiatPrice(ctx)
		a.metrics.ObserveSource(SourceOracle, time.Since(began), nil)
		a.metrics.ObserveOracle(string(quote.Tier))
	})
	if recovered := wg.WaitAndRecover(); recovered != nil {
		err := &FatalError{Source: "panic", Err: errors.New(fmt.Sprint(recovered.Value))}
		a.metrics.ObserveAggregation(err, nil, start)
		return model.Snapshot{}, err
	}

	if err := fatal(book); err != nil {
		a.metrics.ObserveAggregation(err, nil, start)
		return model.Snapshot{}, err
	}

	if poolsErr != nil {
		logger.Warn("source degraded", zap.String("source", SourcePools), zap.Error(poolsErr))
		pools = nil
	}
	if tradesErr != nil {
		logger.Warn("source degraded", zap.String("source", SourceLastTrade), zap.Error(tradesErr))
		trades = map[string]model.LastTradeRecord{}
	}

	tokens := a.merger.Merge(book.Tokens, book.Markets, quote.Rate, pools, trades)
	snap := model.Snapshot{
		Tokens:    tokens,
		FiatRate:  quote.Rate,
		FetchedAt: a.now().UTC(),
		IsStale:   false,
	}

	bySource := countBySource(tokens)
	a.metrics.ObserveAggregation(nil, bySource, snap.FetchedAt)
	logger.Info("aggregation complete",
		zap.Int("tokens", len(tokens)),
		zap.Int("orderbook", bySource[string(model.PriceSourceOrderBook)]),
		zap.Int("amm", bySource[string(model.PriceSourceAMM)]),
		zap.Int("last_trade", bySource[string(model.PriceSourceLastTrade)]),
		zap.Int("no_market", bySource[string(model.PriceSourceNone)]),
		zap.Float64("fiat_rate", quote.Rate),
		zap.String("oracle_tier", string(quote.Tier)),
		zap.Duration("elapsed", a.now().Sub(start)),
	)
	return snap, nil
}

// fatal reports the first order-book failure. Tokens and markets have no fallback.
func fatal(book orderbook.Result) error {
	if book.TokensErr != nil {
		return &FatalError{Source: SourceTokens, Err: book.TokensErr}
	}
	if book.MarketsErr != nil {
		return &FatalError{Source: SourceMarkets, Err: book.MarketsErr}
	}
	return nil
}

func countBySource(tokens []model.DashboardToken) map[string]int {
	out := map[string]int{
		string(model.PriceSourceOrderBook): 0,
		string(model.PriceSourceAMM):       0,
		string(model.PriceSourceLastTrade): 0,
		string(model.PriceSourceNone):      0,
	}
	for _, t := range tokens {
		out[string(t.PriceSource)]++
	}
	return out
}
