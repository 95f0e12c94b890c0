package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civdef",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	ModerationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "moderation",
		Name:      "requests_total",
		Help:      "Moderation gateway calls by content kind and verdict",
	}, []string{"kind", "verdict"})

	ModerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civdef",
		Subsystem: "moderation",
		Name:      "duration_seconds",
		Help:      "Moderation gateway call latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"kind"})

	DescribeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "describe",
		Name:      "requests_total",
		Help:      "Spot description requests by result",
	}, []string{"result"})

	SyncRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Completed batch sync runs",
	})

	SyncMarkers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "sync",
		Name:      "markers_total",
		Help:      "Markers visited by batch sync, by outcome",
	}, []string{"outcome"})

	MarkersByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "civdef",
		Subsystem: "store",
		Name:      "markers",
		Help:      "Markers held in memory by verification status",
	}, []string{"status"})

	StoreLoadDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "store",
		Name:      "load_discarded_total",
		Help:      "Persisted entries excluded at load time",
	}, []string{"collection"})

	StorePersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "store",
		Name:      "persist_failures_total",
		Help:      "Failed writes of a persisted collection",
	}, []string{"collection"})

	ConnectivityOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "civdef",
		Subsystem: "connectivity",
		Name:      "online",
		Help:      "1 when the platform reports the network reachable",
	})

	ConnectivityProbeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "civdef",
		Subsystem: "connectivity",
		Name:      "probe_latency_seconds",
		Help:      "Round-trip latency of the reachability probe",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	IntelPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "intel",
		Name:      "polls_total",
		Help:      "Intel poller runs by source and result",
	}, []string{"source", "result"})

	IntelDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "civdef",
		Subsystem: "intel",
		Name:      "dropped_positions_total",
		Help:      "Zones or alerts dropped for invalid coordinates",
	})
)

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
