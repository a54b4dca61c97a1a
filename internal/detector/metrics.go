package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectionLatencySeconds tracks coarse-bucketed tick-to-decision
	// latency; exact p50/p95/p99 read-back for the health endpoint comes
	// from the Detector's own HDR histogram instead (§4.4, §6).
	DetectionLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spreadscan_detector_latency_seconds",
		Help:    "Tick-to-decision latency in the Spread Detector",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 20),
	})

	// WindowsOpenedTotal tracks window state-machine transitions into
	// Pending/Open, by resulting state.
	WindowsOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadscan_detector_windows_opened_total",
		Help: "Total number of window state transitions into pending/open",
	}, []string{"state"})

	// EventsDroppedTotal tracks Open/Close events dropped due to a full
	// event channel.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_detector_events_dropped_total",
		Help: "Total number of window events dropped because the event channel was full",
	})
)
