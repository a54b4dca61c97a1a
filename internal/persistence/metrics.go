package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the writer queue's current occupancy.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_persistence_queue_depth",
		Help: "Current number of entries buffered in the persistence writer queue",
	})

	// OpensDroppedTotal tracks Open events dropped due to queue overflow.
	OpensDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_persistence_opens_dropped_total",
		Help: "Total number of Open events dropped due to writer queue overflow",
	})

	// ClosesDroppedTotal tracks Close events dropped even after eviction.
	ClosesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_persistence_closes_dropped_total",
		Help: "Total number of Close events dropped despite queue eviction",
	})

	// QueueEvictionsTotal tracks entries evicted to make room for a Close.
	QueueEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_persistence_queue_evictions_total",
		Help: "Total number of queue entries evicted to admit a Close event",
	})

	// WriteErrorsTotal tracks backend write failures, by kind.
	WriteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadscan_persistence_write_errors_total",
		Help: "Total number of backend write failures",
	}, []string{"kind"})
)
