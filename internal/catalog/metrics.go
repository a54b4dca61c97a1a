package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketsSeenTotal tracks total markets returned by the catalog.
	MarketsSeenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_catalog_markets_seen_total",
		Help: "Total number of markets seen from the catalog API",
	})

	// MarketsRejectedTotal tracks markets excluded by an admission gate.
	MarketsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadscan_catalog_markets_rejected_total",
		Help: "Total number of markets rejected by an admission gate",
	}, []string{"reason"})

	// DesiredSetSize tracks the current size of the reconciled desired set.
	DesiredSetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_catalog_desired_set_size",
		Help: "Number of markets currently in the desired set",
	})

	// PollDurationSeconds tracks catalog poll latency.
	PollDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spreadscan_catalog_poll_duration_seconds",
		Help:    "Duration of catalog poll requests",
		Buckets: prometheus.DefBuckets,
	})

	// PollErrorsTotal tracks catalog poll failures.
	PollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_catalog_poll_errors_total",
		Help: "Total number of catalog poll failures",
	})
)
