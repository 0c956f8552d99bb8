package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the risk
// aggregation service.
type Metrics struct {
	UpstreamRequests *prometheus.CounterVec // labels: endpoint, outcome={success,error,malformed,<status>}
	RateLimitRetries prometheus.Counter
	PageCache        *prometheus.CounterVec // labels: result={hit,miss}

	RefreshPasses   *prometheus.CounterVec // labels: outcome={success,failure}
	RefreshDuration prometheus.Histogram
	DetailFailures  prometheus.Counter

	LookupRequests *prometheus.CounterVec // labels: source={evaluation,proxy,default,error}

	CacheUpdating    prometheus.Gauge
	CacheLastRefresh prometheus.Gauge // unix seconds of last successful pass
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UpstreamRequests,
		m.RateLimitRetries,
		m.PageCache,
		m.RefreshPasses,
		m.RefreshDuration,
		m.DetailFailures,
		m.LookupRequests,
		m.CacheUpdating,
		m.CacheLastRefresh,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sinkhole_risk",
			Name:      "upstream_requests_total",
			Help:      "MOLIT API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		RateLimitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sinkhole_risk",
			Name:      "rate_limit_retries_total",
			Help:      "Retries taken after an upstream 429.",
		}),
		PageCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sinkhole_risk",
			Name:      "page_cache_total",
			Help:      "Upstream list-page cache lookups by result.",
		}, []string{"result"}),
		RefreshPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sinkhole_risk",
			Name:      "refresh_passes_total",
			Help:      "City-wide refresh passes by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sinkhole_risk",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete city-wide refresh pass.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		DetailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sinkhole_risk",
			Name:      "detail_failures_total",
			Help:      "Individual detail lookups skipped during refresh passes.",
		}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sinkhole_risk",
			Name:      "lookup_requests_total",
			Help:      "Per-area lookups by the data source that answered.",
		}, []string{"source"}),
		CacheUpdating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sinkhole_risk",
			Name:      "cache_updating",
			Help:      "1 while a city-wide refresh pass is running.",
		}),
		CacheLastRefresh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sinkhole_risk",
			Name:      "cache_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful city-wide pass.",
		}),
	}
}
