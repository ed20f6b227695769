package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith("test", reg, reg)
}

func TestObserveSource(t *testing.T) {
	m := newTestMetrics()
	m.ObserveSource("amm", time.Second, nil)
	m.ObserveSource("amm", time.Second, errors.New("boom"))
	m.ObserveSource("amm", time.Second, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetches.WithLabelValues("amm", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SourceFetches.WithLabelValues("amm", "error")))
}

func TestObserveAggregation(t *testing.T) {
	m := newTestMetrics()
	at := time.Unix(1700000000, 0)
	m.ObserveAggregation(nil, map[string]int{"orderbook": 3, "none": 1}, at)
	m.ObserveAggregation(errors.New("fatal"), nil, at)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Aggregations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Aggregations.WithLabelValues("fatal")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Tokens.WithLabelValues("orderbook")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastSuccess))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSource("amm", time.Second, nil)
	m.ObserveOracle("fallback")
	m.ObserveAggregation(nil, nil, time.Now())
	m.SkipTick()
	m.AddAlerts(2)
}

func TestHandlerServesMetrics(t *testing.T) {
	m := newTestMetrics()
	m.ObserveOracle("primary")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_oracle_resolution_total{tier="primary"} 1`)
}
