package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	PromRegistry    = prometheus.NewRegistry()
	AmberRegisterer = prometheus.WrapRegistererWithPrefix("amber_", PromRegistry)

	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updates_total",
			Help: "Total number of update attempts by outcome",
		},
		[]string{"status"},
	)
	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbacks_total",
			Help: "Total number of rollback attempts by outcome",
		},
		[]string{"status"},
	)
	BackupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "backups_total",
			Help: "Total number of backups created",
		},
	)
	ApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apply_duration_seconds",
			Help:    "Duration of the live-tree apply step in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed.",
		},
		[]string{"code", "method", "path"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"code", "method", "path"},
	)
)

func init() {
	// register collectors
	AmberRegisterer.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AmberRegisterer.MustRegister(collectors.NewGoCollector())
	// register universal metrics
	AmberRegisterer.MustRegister(UpdatesTotal)
	AmberRegisterer.MustRegister(RollbacksTotal)
	AmberRegisterer.MustRegister(BackupsTotal)
	AmberRegisterer.MustRegister(ApplyDuration)
	AmberRegisterer.MustRegister(HTTPRequestsTotal)
	AmberRegisterer.MustRegister(HTTPRequestDuration)
}

// PrometheusMiddleware is a Gin middleware that instruments HTTP requests.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		duration := time.Since(startTime).Seconds()

		HTTPRequestsTotal.With(prometheus.Labels{
			"code":   strconv.Itoa(statusCode),
			"method": method,
			"path":   path,
		}).Inc()

		HTTPRequestDuration.With(prometheus.Labels{
			"code":   strconv.Itoa(statusCode),
			"method": method,
			"path":   path,
		}).Observe(duration)
	}
}
