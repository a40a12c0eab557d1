package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	bulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_bulk_items_total",
			Help: "Bulk operation items by entity and outcome",
		},
		[]string{"entity", "outcome"},
	)

	metricReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_metric_reads_total",
			Help: "Analytics reads by metric and the source that served them",
		},
		[]string{"metric", "source"},
	)

	sourceFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_source_fallbacks_total",
			Help: "Primary record source failures that triggered a fallback",
		},
		[]string{"reason"},
	)

	auditFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_audit_append_failures_total",
			Help: "Audit entries that could not be appended to a sink",
		},
		[]string{"sink"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(bulkItemsTotal)
	prometheus.MustRegister(metricReadsTotal)
	prometheus.MustRegister(sourceFallbacksTotal)
	prometheus.MustRegister(auditFailuresTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordBulkItem(entity, outcome string) {
	bulkItemsTotal.WithLabelValues(entity, outcome).Inc()
}

func RecordMetricRead(metric, source string) {
	metricReadsTotal.WithLabelValues(metric, source).Inc()
}

func RecordSourceFallback(reason string) {
	sourceFallbacksTotal.WithLabelValues(reason).Inc()
}

func RecordAuditFailure(sink string) {
	auditFailuresTotal.WithLabelValues(sink).Inc()
}
