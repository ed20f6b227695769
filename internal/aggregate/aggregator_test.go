package aggregate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catdash/internal/model"
	"catdash/internal/observability"
	"catdash/internal/source/oracle"
	"catdash/internal/source/orderbook"
)

type fakeOrderBook struct {
	result orderbook.Result
	calls  atomic.Int32
	block  chan struct{}
	panics bool
}

func (f *fakeOrderBook) FetchAll(ctx context.Context) orderbook.Result {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("boom")
	}
	if err := ctx.Err(); err != nil {
		return orderbook.Result{TokensErr: err, MarketsErr: err}
	}
	return f.result
}

type fakePools struct {
	pools []model.LiquidityPoolInfo
	err   error
}

func (f fakePools) FetchPairs(ctx context.Context) ([]model.LiquidityPoolInfo, error) {
	return f.pools, f.err
}

type fakeTrades struct {
	trades map[string]model.LastTradeRecord
	err    error
}

func (f fakeTrades) FetchLastTradePrices(ctx context.Context) (map[string]model.LastTradeRecord, error) {
	return f.trades, f.err
}

type fakeRates struct {
	quote oracle.Quote
}

func (f fakeRates) FetchQuoteFiatPrice(ctx context.Context) oracle.Quote {
	return f.quote
}

func (f fakeRates) Fallback() float64 {
	return 25
}

func healthyBook() *fakeOrderBook {
	return &fakeOrderBook{result: orderbook.Result{
		Tokens: []model.TokenMetadata{
			{ID: "A", Code: "AAA", Name: "Alpha", Denom: 1000},
			{ID: "B", Code: "BBB", Name: "Beta", Denom: 1000},
			{ID: "C", Code: "CCC", Name: "Gamma", Denom: 1000},
		},
		Markets: []model.MarketStats{{ID: "A", LastPrice: 0.5, Volume7d: 10}},
	}}
}

func newTestAggregator(book *fakeOrderBook, pools fakePools, trades fakeTrades, metrics *observability.Metrics) *Aggregator {
	agg := NewAggregator(Sources{
		OrderBook: book,
		Pools:     pools,
		LastTrade: trades,
		Rates:     fakeRates{quote: oracle.Quote{Rate: 30, Tier: oracle.TierPrimary}},
	}, testMerger(), metrics, zap.NewNop())
	agg.now = func() time.Time { return fixedNow }
	return agg
}

func TestFetchMergesAllSources(t *testing.T) {
	pools := fakePools{pools: []model.LiquidityPoolInfo{pool("B", 1_000_000_000_000, 1_000)}}
	trades := fakeTrades{trades: map[string]model.LastTradeRecord{"C": {ID: "C", Price: 0.1}}}

	snap, err := newTestAggregator(healthyBook(), pools, trades, nil).Fetch(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.IsStale)
	assert.Equal(t, 30.0, snap.FiatRate)
	assert.Equal(t, fixedNow, snap.FetchedAt)
	require.Len(t, snap.Tokens, 3)
	byID := indexByID(snap.Tokens)
	assert.Equal(t, model.PriceSourceOrderBook, byID["A"].PriceSource)
	assert.Equal(t, model.PriceSourceAMM, byID["B"].PriceSource)
	assert.Equal(t, model.PriceSourceLastTrade, byID["C"].PriceSource)
}

func TestFetchDegradesOptionalSources(t *testing.T) {
	pools := fakePools{err: errors.New("amm down")}
	trades := fakeTrades{err: errors.New("offers down")}

	snap, err := newTestAggregator(healthyBook(), pools, trades, nil).Fetch(context.Background())
	require.NoError(t, err)

	byID := indexByID(snap.Tokens)
	require.Len(t, byID, 3)
	assert.Equal(t, model.PriceSourceOrderBook, byID["A"].PriceSource)
	assert.Equal(t, model.PriceSourceNone, byID["B"].PriceSource)
	assert.Equal(t, model.PriceSourceNone, byID["C"].PriceSource)
}

func TestFetchFatalOnOrderBookFailure(t *testing.T) {
	cases := []struct {
		name   string
		result orderbook.Result
		source string
	}{
		{"tokens", orderbook.Result{TokensErr: errors.New("tokens down"), Markets: []model.MarketStats{}}, SourceTokens},
		{"markets", orderbook.Result{Tokens: []model.TokenMetadata{}, MarketsErr: errors.New("markets down")}, SourceMarkets},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := newTestAggregator(&fakeOrderBook{result: tc.result}, fakePools{}, fakeTrades{}, nil)

			_, err := agg.Fetch(context.Background())
			var fatalErr *FatalError
			require.ErrorAs(t, err, &fatalErr)
			assert.Equal(t, tc.source, fatalErr.Source)

			snap := agg.FetchSafe(context.Background())
			assert.True(t, snap.IsStale)
			assert.Empty(t, snap.Tokens)
			assert.NotNil(t, snap.Tokens)
			assert.Equal(t, 25.0, snap.FiatRate)
			assert.Equal(t, fixedNow, snap.FetchedAt)
		})
	}
}

func TestFetchRecoversSourcePanic(t *testing.T) {
	agg := newTestAggregator(&fakeOrderBook{panics: true}, fakePools{}, fakeTrades{}, nil)

	_, err := agg.Fetch(context.Background())
	var fatalErr *FatalError
	require.ErrorAs(t, err, &fatalErr)
	assert.Equal(t, "panic", fatalErr.Source)
	assert.Contains(t, err.Error(), "boom")

	assert.True(t, agg.FetchSafe(context.Background()).IsStale)
}

func TestFetchSharesInFlightCycle(t *testing.T) {
	book := healthyBook()
	book.block = make(chan struct{})
	agg := newTestAggregator(book, fakePools{}, fakeTrades{}, nil)

	var wg sync.WaitGroup
	results := make([]model.Snapshot, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := agg.Fetch(context.Background())
			assert.NoError(t, err)
			results[i] = snap
		}(i)
	}

	require.Eventually(t, func() bool { return book.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Let the other callers reach the in-flight cycle before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(book.block)
	wg.Wait()

	assert.Equal(t, int32(1), book.calls.Load())
	for _, snap := range results {
		assert.Len(t, snap.Tokens, 3)
	}
}

func TestCancelledCallerDoesNotFailSharedCycle(t *testing.T) {
	book := healthyBook()
	book.block = make(chan struct{})
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry(), nil)
	agg := newTestAggregator(book, fakePools{}, fakeTrades{}, metrics)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	first := make(chan model.Snapshot, 1)
	go func() { first <- agg.FetchSafe(reqCtx) }()
	require.Eventually(t, func() bool { return book.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan model.Snapshot, 1)
	go func() { second <- agg.FetchSafe(context.Background()) }()
	// Let the second caller join the in-flight cycle.
	time.Sleep(20 * time.Millisecond)

	cancelReq()
	select {
	case snap := <-first:
		assert.True(t, snap.IsStale)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller still waiting on the shared cycle")
	}

	close(book.block)
	snap := <-second
	assert.False(t, snap.IsStale)
	assert.Len(t, snap.Tokens, 3)
	assert.Equal(t, int32(1), book.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Aggregations.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.Aggregations.WithLabelValues("fatal")))
}

func TestFetchReturnsWhenCallerCancels(t *testing.T) {
	book := healthyBook()
	book.block = make(chan struct{})
	defer close(book.block)
	agg := newTestAggregator(book, fakePools{}, fakeTrades{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := agg.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchRecordsMetrics(t *testing.T) {
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry(), nil)
	pools := fakePools{err: errors.New("amm down")}
	agg := newTestAggregator(healthyBook(), pools, fakeTrades{}, metrics)

	_, err := agg.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Aggregations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SourceFetches.WithLabelValues(SourcePools, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SourceFetches.WithLabelValues(SourceTokens, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OracleTiers.WithLabelValues(string(oracle.TierPrimary))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Tokens.WithLabelValues(string(model.PriceSourceOrderBook))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Tokens.WithLabelValues(string(model.PriceSourceNone))))
	assert.Equal(t, float64(fixedNow.Unix()), testutil.ToFloat64(metrics.LastSuccess))

	agg.sources.OrderBook = &fakeOrderBook{result: orderbook.Result{TokensErr: errors.New("down")}}
	_, err = agg.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Aggregations.WithLabelValues("fatal")))
}
