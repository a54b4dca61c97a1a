package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunDurationSeconds tracks how long one aggregation pass takes.
	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spreadscan_aggregator_run_duration_seconds",
		Help:    "Duration of one Aggregator pass over persisted windows",
		Buckets: prometheus.DefBuckets,
	})

	// RunErrorsTotal counts failed aggregation passes.
	RunErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_aggregator_run_errors_total",
		Help: "Total number of Aggregator passes that failed",
	})

	// MarketsAggregatedTotal counts per-market stats rows upserted.
	MarketsAggregatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_aggregator_markets_aggregated_total",
		Help: "Total number of market_stats rows upserted across all runs",
	})
)
