package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the fetch service.
// Counters and histograms are registered via promauto against the supplied
// registerer so tests can use isolated registries.
type Metrics struct {
	// RequestsTotal counts HTTP requests issued to provider APIs, labeled by provider.
	RequestsTotal *prometheus.CounterVec

	// RequestsFailed counts provider requests that exhausted retries, labeled by provider.
	RequestsFailed *prometheus.CounterVec

	// RateLimited counts 429 responses observed from providers.
	RateLimited *prometheus.CounterVec

	// PagesFetched counts result pages fetched, labeled by provider.
	PagesFetched *prometheus.CounterVec

	// RecordsFetched counts result records accumulated, labeled by provider.
	RecordsFetched *prometheus.CounterVec

	// FetchDuration observes end-to-end fetch run duration in seconds, labeled by provider and terminal status.
	FetchDuration *prometheus.HistogramVec

	// CacheHits counts fetches served entirely from the cache.
	CacheHits prometheus.Counter

	// CacheMisses counts fetches that had to go to the network.
	CacheMisses prometheus.Counter

	// CachePurged counts cache entries removed by maintenance operations.
	CachePurged prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bibfetch_provider_requests_total",
			Help: "Total HTTP requests issued to provider APIs.",
		}, []string{"provider"}),

		RequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bibfetch_provider_requests_failed_total",
			Help: "Provider requests that failed after exhausting retries.",
		}, []string{"provider"}),

		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bibfetch_provider_rate_limited_total",
			Help: "Rate-limited (429) responses observed from providers.",
		}, []string{"provider"}),

		PagesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bibfetch_pages_fetched_total",
			Help: "Result pages fetched from provider APIs.",
		}, []string{"provider"}),

		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bibfetch_records_fetched_total",
			Help: "Result records accumulated across fetch runs.",
		}, []string{"provider"}),

		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bibfetch_fetch_duration_seconds",
			Help:    "End-to-end fetch run duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider", "status"}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "bibfetch_cache_hits_total",
			Help: "Fetches served entirely from the cache.",
		}),

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "bibfetch_cache_misses_total",
			Help: "Fetches that required network requests.",
		}),

		CachePurged: factory.NewCounter(prometheus.CounterOpts{
			Name: "bibfetch_cache_purged_total",
			Help: "Cache entries removed by maintenance operations.",
		}),
	}
}
