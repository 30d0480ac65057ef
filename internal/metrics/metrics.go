package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomsync_ws_connections",
		Help: "Current number of active websocket connections",
	})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomsync_commands_total",
		Help: "Total number of protocol commands processed, by kind",
	}, []string{"kind"})
	BroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roomsync_broadcast_drops_total",
		Help: "Events skipped because a client's queue was full",
	})
	DegradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomsync_degraded_total",
		Help: "Commands answered in degraded mode because the store was unavailable",
	}, []string{"kind"})
	StoreErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roomsync_store_errors_total",
		Help: "Store operations that failed after the availability check passed",
	}, []string{"kind"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		CommandsTotal,
		BroadcastDrops,
		DegradedTotal,
		StoreErrors,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// GinMiddleware records request counts and latencies.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
