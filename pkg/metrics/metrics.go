package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request latency (seconds).
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// Provider send latency (milliseconds).
	SenderCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sender_call_latency_ms",
			Help:    "Channel provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"channel", "status"},
	)

	// Notifications created.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_count",
			Help: "Total number of notifications created",
		},
		[]string{"priority"},
	)

	// Delivery attempt outcomes.
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Delivery attempt state transitions",
		},
		[]string{"channel", "status"}, // status: created, delivered, retrying, failed
	)

	// Channels skipped during dispatch by the preference gate.
	ChannelsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_channels_skipped_count",
			Help: "Channels skipped during dispatch",
		},
		[]string{"channel", "reason"}, // reason: disabled, frequency, dnd, quiet_hours
	)

	// Slow database queries.
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of slow database queries",
		},
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordSenderCallLatency(channel, status string, duration time.Duration) {
	SenderCallLatency.WithLabelValues(channel, status).Observe(float64(duration.Milliseconds()))
}

func IncrementNotificationsCreated(priority string) {
	NotificationsCreated.WithLabelValues(priority).Inc()
}

func IncrementDeliveryAttempts(channel, status string) {
	DeliveryAttemptsTotal.WithLabelValues(channel, status).Inc()
}

func IncrementChannelsSkipped(channel, reason string) {
	ChannelsSkipped.WithLabelValues(channel, reason).Inc()
}

func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}
