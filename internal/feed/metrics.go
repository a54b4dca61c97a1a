package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks whether the upstream feed stream is up.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_feed_active_connections",
		Help: "Whether the upstream feed WebSocket connection is active (0 or 1)",
	})

	// ReconnectAttemptsTotal tracks reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_feed_reconnect_attempts_total",
		Help: "Total number of feed reconnection attempts",
	})

	// ReconnectFailuresTotal tracks reconnection failures.
	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_feed_reconnect_failures_total",
		Help: "Total number of feed reconnection failures",
	})

	// ReconnectConsecutiveFailures tracks the current run of back-to-back
	// reconnection failures since the last successful dial, reset to 0 on
	// any success. A sustained run here means the single durable upstream
	// stream has been down long enough that every watched market's books
	// are going stale (§4.3).
	ReconnectConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_feed_reconnect_consecutive_failures",
		Help: "Consecutive feed reconnection failures since the last successful connect",
	})

	// MessagesReceivedTotal tracks messages received by event type.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadscan_feed_messages_received_total",
			Help: "Total number of feed wire frames received",
		},
		[]string{"event_type"},
	)

	// MessageLatencySeconds tracks per-frame processing latency.
	MessageLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spreadscan_feed_message_latency_seconds",
		Help:    "Feed frame processing latency",
		Buckets: prometheus.DefBuckets,
	})

	// SubscriptionCount tracks active token subscriptions.
	SubscriptionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_feed_subscription_count",
		Help: "Number of tokens currently subscribed on the feed",
	})

	// MessagesDroppedTotal tracks frames/messages dropped, by reason.
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spreadscan_feed_messages_dropped_total",
			Help: "Total number of feed messages dropped",
		},
		[]string{"reason"},
	)

	// ConnectionDuration tracks connection lifetime before disconnect.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spreadscan_feed_connection_duration_seconds",
		Help:    "Duration of feed connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})

	// UnsubscriptionsTotal tracks token unsubscriptions.
	UnsubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_feed_unsubscriptions_total",
		Help: "Total number of token unsubscriptions",
	})
)
