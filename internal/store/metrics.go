package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketsTracked tracks the number of markets currently in the Store.
	MarketsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_store_markets_tracked",
		Help: "Number of markets currently tracked by the Market Store",
	})

	// TokensHydrated tracks the number of tokens with a two-sided book.
	TokensHydrated = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_store_tokens_hydrated",
		Help: "Number of tokens with both best bid and best ask present",
	})

	// BookUpdatesTotal tracks book mutations by kind (snapshot/changes).
	BookUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadscan_store_book_updates_total",
		Help: "Total number of order book mutations applied",
	}, []string{"kind"})
)
