package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsConsumedTotal tracks Open/Close events drained from the
	// Detector, by kind.
	EventsConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadscan_consumer_events_total",
		Help: "Total number of window events consumed, by kind",
	}, []string{"kind"})

	// SubscribersGauge tracks the current number of live event subscribers.
	SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_consumer_subscribers",
		Help: "Number of live window-event subscribers",
	})

	// SubscriberDropsTotal tracks events dropped because a subscriber's
	// channel was full.
	SubscriberDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_consumer_subscriber_drops_total",
		Help: "Total number of window events dropped for a slow subscriber",
	})
)
