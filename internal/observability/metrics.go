package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// portal's data-access and authorization layer.
type Metrics struct {
	// Feature service metrics.
	DatasetQueries       *prometheus.CounterVec   // labels: op={filter,by_id,extent,stats}, outcome={success,error,empty}
	DatasetQueryDuration *prometheus.HistogramVec // labels: op

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: op={search,suggest,resolve,reverse}, outcome={success,error,empty,skipped}
	GeocodeCache    *prometheus.CounterVec // labels: op={suggest,reverse}, result={hit,miss}

	// Authorization metrics.
	TokenExchanges *prometheus.CounterVec // labels: outcome={success,error}
	TokenRefreshes *prometheus.CounterVec // labels: outcome={success,rejected,error}
	SignedIn       prometheus.Gauge

	// View state metrics.
	StaleResponsesDropped prometheus.Counter
	ViewRefreshes         *prometheus.CounterVec // labels: outcome={success,error}

	// Audit publishing metrics.
	AuditEvents *prometheus.CounterVec // labels: outcome={published,error}
}

// NewMetrics creates and registers all portal metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.DatasetQueries,
		m.DatasetQueryDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.TokenExchanges,
		m.TokenRefreshes,
		m.SignedIn,
		m.StaleResponsesDropped,
		m.ViewRefreshes,
		m.AuditEvents,
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
		DatasetQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "dataset_queries_total",
			Help:      "Feature service queries by operation and outcome.",
		}, []string{"op", "outcome"}),
		DatasetQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadportal",
			Name:      "dataset_query_duration_seconds",
			Help:      "Feature service request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "geocode_requests_total",
			Help:      "Geocoding requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by operation and result.",
		}, []string{"op", "result"}),
		TokenExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "token_exchanges_total",
			Help:      "Authorization code exchanges by outcome.",
		}, []string{"outcome"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		SignedIn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadportal",
			Name:      "signed_in",
			Help:      "1 while a valid credential is held, 0 otherwise.",
		}),
		StaleResponsesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "stale_responses_dropped_total",
			Help:      "Responses discarded because a newer request superseded them.",
		}),
		ViewRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "view_refreshes_total",
			Help:      "View state refresh cycles by outcome.",
		}, []string{"outcome"}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadportal",
			Name:      "audit_events_total",
			Help:      "Audit events by publish outcome.",
		}, []string{"outcome"}),
	}
}
