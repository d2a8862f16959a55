package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locker_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "locker_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	commandsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locker_device_commands_enqueued_total",
			Help: "Device commands appended to the outbox, by kind.",
		},
		[]string{"kind"},
	)
	devicePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locker_device_polls_total",
			Help: "Device command polls, by kind and whether a command was returned.",
		},
		[]string{"kind", "result"},
	)
	heartbeats = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "locker_device_heartbeats_total",
			Help: "Heartbeats and status reports accepted.",
		},
	)
	reportFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "locker_status_report_cabinet_failures_total",
			Help: "Cabinets in a status report that could not be applied.",
		},
	)
	pushFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "locker_push_failures_total",
			Help: "Web push deliveries that failed.",
		},
	)

	registerOnce sync.Once
)

// Register adds the collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpLatency, commandsEnqueued, devicePolls, heartbeats, reportFailures, pushFailures)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request counts and latency per route template.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func IncCommandEnqueued(kind string) {
	commandsEnqueued.WithLabelValues(kind).Inc()
}

func IncPoll(kind string, delivered bool) {
	result := "none"
	if delivered {
		result = "command"
	}
	devicePolls.WithLabelValues(kind, result).Inc()
}

func IncHeartbeat() {
	heartbeats.Inc()
}

func IncReportFailure() {
	reportFailures.Inc()
}

func IncPushFailure() {
	pushFailures.Inc()
}
