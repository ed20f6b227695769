// Package observability provides Prometheus metrics for the dashboard backend.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "catdash"

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Upstream sources
	SourceFetches  *prometheus.CounterVec
	SourceDuration *prometheus.HistogramVec
	OracleTiers    *prometheus.CounterVec

	// Aggregation
	Aggregations *prometheus.CounterVec
	Tokens       *prometheus.GaugeVec
	LastSuccess  prometheus.Gauge

	// Poller
	SkippedTicks    prometheus.Counter
	AlertsTriggered prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics registers all metrics on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewMetricsWith(namespace, reg, reg)
}

// NewMetricsWith registers all metrics on reg and serves them from gatherer.
func NewMetricsWith(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		SourceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_total",
			Help:      "Upstream fetches by source and result",
		}, []string{"source", "result"}),
		SourceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch latency including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		OracleTiers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "resolution_total",
			Help:      "Fiat rate resolutions by tier",
		}, []string{"tier"}),

		Aggregations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "total",
			Help:      "Aggregation cycles by result",
		}, []string{"result"}),
		Tokens: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokens",
			Help:      "Tokens in the latest snapshot by price source",
		}, []string{"price_source"}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful aggregation",
		}),

		SkippedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "skipped_ticks_total",
			Help:      "Refresh ticks dropped because a cycle was still running",
		}),
		AlertsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "alerts_total",
			Help:      "Price alerts detected between consecutive snapshots",
		}),

		gatherer: gatherer,
	}
}

// ObserveSource records one upstream fetch.
func (m *Metrics) ObserveSource(source string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SourceFetches.WithLabelValues(source, result).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveOracle records how the fiat rate was resolved.
func (m *Metrics) ObserveOracle(tier string) {
	if m == nil {
		return
	}
	m.OracleTiers.WithLabelValues(tier).Inc()
}

// ObserveAggregation records a cycle outcome and, on success, the token mix.
func (m *Metrics) ObserveAggregation(err error, bySource map[string]int, at time.Time) {
	if m == nil {
		return
	}
	if err != nil {
		m.Aggregations.WithLabelValues("fatal").Inc()
		return
	}
	m.Aggregations.WithLabelValues("ok").Inc()
	m.Tokens.Reset()
	for source, n := range bySource {
		m.Tokens.WithLabelValues(source).Set(float64(n))
	}
	m.LastSuccess.Set(float64(at.Unix()))
}

// SkipTick records a dropped refresh tick.
func (m *Metrics) SkipTick() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

// AddAlerts records detected alerts.
func (m *Metrics) AddAlerts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AlertsTriggered.Add(float64(n))
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
