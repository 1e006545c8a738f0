// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chore_rewards",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chore_rewards",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	taskTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chore_rewards",
			Subsystem: "tasks",
			Name:      "transitions_total",
			Help:      "Task status transitions applied.",
		},
		[]string{"from", "to"},
	)

	tasksExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chore_rewards",
			Subsystem: "tasks",
			Name:      "expired_total",
			Help:      "Tasks moved to EXPIRED by the sweep.",
		},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chore_rewards",
			Subsystem: "settlement",
			Name:      "attempts_total",
			Help:      "Settlement attempts by outcome.",
		},
		[]string{"outcome"},
	)

	settlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chore_rewards",
			Subsystem: "settlement",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of ledger transfer calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	inviteRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chore_rewards",
			Subsystem: "invites",
			Name:      "redemptions_total",
			Help:      "Invite redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		taskTransitions,
		tasksExpired,
		settlements,
		settlementDuration,
		inviteRedemptions,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. The route template is used
// as the path label so ids do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordTransition counts a task status change.
func RecordTransition(from, to string) {
	taskTransitions.WithLabelValues(from, to).Inc()
}

// RecordExpired counts tasks expired by one sweep.
func RecordExpired(n int64) {
	if n > 0 {
		tasksExpired.Add(float64(n))
	}
}

// RecordSettlement counts a settlement attempt with its outcome
// (confirmed, failed, pending, existing).
func RecordSettlement(outcome string) {
	settlements.WithLabelValues(outcome).Inc()
}

// ObserveTransfer records the latency of one ledger call.
func ObserveTransfer(d time.Duration) {
	settlementDuration.Observe(d.Seconds())
}

// RecordRedemption counts an invite redemption attempt.
func RecordRedemption(outcome string) {
	inviteRedemptions.WithLabelValues(outcome).Inc()
}
