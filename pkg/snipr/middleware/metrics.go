package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipr_http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snipr_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	redirectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snipr_redirects_total",
			Help: "Total short link redirects served",
		},
	)

	linksCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snipr_links_created_total",
			Help: "Total short links created",
		},
	)
)

// PrometheusMetrics records request count and latency for every request.
// Labels use the route template, not the raw path, to keep cardinality low.
func PrometheusMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// RecordRedirect counts a served redirect
func RecordRedirect() {
	redirectsTotal.Inc()
}

// RecordLinkCreated counts a created link
func RecordLinkCreated() {
	linksCreatedTotal.Inc()
}
