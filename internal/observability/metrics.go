package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pumpctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pumpctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	appFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pumpctl",
			Subsystem: "app",
			Name:      "frames_total",
			Help:      "Inbound app-layer frames by terminal decoder state.",
		},
		[]string{"command", "state"},
	)
	syncOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pumpctl",
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Reconciliation operations by outcome.",
		},
		[]string{"op", "outcome"},
	)
	syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pumpctl",
			Subsystem: "sync",
			Name:      "operation_duration_seconds",
			Help:      "Reconciliation operation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	guardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pumpctl",
			Subsystem: "guard",
			Name:      "decisions_total",
			Help:      "Pump identity guard decisions.",
		},
		[]string{"decision"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pumpctl",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications by kind and delivery outcome.",
		},
		[]string{"kind", "outcome"},
	)
	outboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pumpctl",
			Subsystem: "outbox",
			Name:      "depth",
			Help:      "Frames waiting in the outbound queue.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			appFrames,
			syncOps,
			syncDuration,
			guardDecisions,
			notifications,
			outboxDepth,
		)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one decoded or rejected inbound frame.
func RecordFrame(command, state string) {
	RegisterMetrics()
	appFrames.WithLabelValues(command, state).Inc()
}

// RecordSync counts one reconciliation call. outcome is accepted, rejected
// or error.
func RecordSync(op, outcome string, duration time.Duration) {
	RegisterMetrics()
	syncOps.WithLabelValues(op, outcome).Inc()
	syncDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordGuardDecision(decision string) {
	RegisterMetrics()
	guardDecisions.WithLabelValues(decision).Inc()
}

func RecordNotification(kind, outcome string) {
	RegisterMetrics()
	notifications.WithLabelValues(kind, outcome).Inc()
}

func SetOutboxDepth(n int) {
	RegisterMetrics()
	outboxDepth.Set(float64(n))
}
