// Package metrics provides Prometheus instrumentation for walletscope.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletscope",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "walletscope",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScoresTotal counts completed scoring operations.
	ScoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletscope",
			Name:      "scores_total",
			Help:      "Total scoring operations by network and outcome.",
		},
		[]string{"network", "outcome"},
	)

	// ScoreValue observes the distribution of emitted risk scores.
	ScoreValue = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "walletscope",
		Name:      "score_value",
		Help:      "Distribution of emitted risk scores (0-100).",
		Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// ProviderCallsTotal counts chain-data provider calls by result.
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletscope",
			Name:      "provider_calls_total",
			Help:      "Total chain-data provider calls by network and result.",
		},
		[]string{"network", "result"},
	)

	// ProviderFallbacksTotal counts degradations to the synthetic history.
	ProviderFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "walletscope",
		Name:      "provider_fallbacks_total",
		Help:      "Total times the synthetic history fallback was used.",
	})

	// CacheHitsTotal counts cache hits by cache name.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletscope",
			Name:      "cache_hits_total",
			Help:      "Total cache hits by cache.",
		},
		[]string{"cache"},
	)

	// CacheMissesTotal counts cache misses by cache name.
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletscope",
			Name:      "cache_misses_total",
			Help:      "Total cache misses by cache.",
		},
		[]string{"cache"},
	)

	// BatchItemsTotal counts batch scoring slots by result.
	BatchItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletscope",
			Name:      "batch_items_total",
			Help:      "Total batch scoring items by result.",
		},
		[]string{"result"},
	)

	// ListEntries tracks loaded list sizes by list name.
	ListEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "walletscope",
			Name:      "list_entries",
			Help:      "Number of addresses loaded per list.",
		},
		[]string{"list"},
	)

	// ListReloadsTotal counts list reloads by result.
	ListReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walletscope",
			Name:      "list_reloads_total",
			Help:      "Total list reload attempts by result.",
		},
		[]string{"result"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "walletscope",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoresTotal,
		ScoreValue,
		ProviderCallsTotal,
		ProviderFallbacksTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		BatchItemsTotal,
		ListEntries,
		ListReloadsTotal,
		ActiveWebSocketClients,
	)
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
