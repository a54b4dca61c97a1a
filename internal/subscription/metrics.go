package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarketsAddedTotal counts markets admitted into the watched set.
	MarketsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_subscription_markets_added_total",
		Help: "Total number of markets inserted into the Store and subscribed on the feed",
	})

	// MarketsRemovedTotal counts markets dropped from the watched set.
	MarketsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_subscription_markets_removed_total",
		Help: "Total number of markets unsubscribed and removed from the Store",
	})

	// MarketsSkippedTotal counts markets rejected because MaxSubscriptions was reached.
	MarketsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_subscription_markets_skipped_total",
		Help: "Total number of candidate markets skipped because max subscriptions was reached",
	})

	// SubscribeErrorsTotal counts feed Subscribe() failures.
	SubscribeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_subscription_subscribe_errors_total",
		Help: "Total number of feed Subscribe() calls that returned an error",
	})

	// UnsubscribeErrorsTotal counts feed Unsubscribe() failures.
	UnsubscribeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spreadscan_subscription_unsubscribe_errors_total",
		Help: "Total number of feed Unsubscribe() calls that returned an error",
	})

	// WatchedMarketsGauge tracks the Store's current market count.
	WatchedMarketsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_subscription_watched_markets",
		Help: "Current number of markets in the watched set",
	})

	// PinnedMarketsGauge tracks how many markets are currently pinned.
	PinnedMarketsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spreadscan_subscription_pinned_markets",
		Help: "Current number of pinned markets tracked by the pinned watcher",
	})

	// PinnedRolloversTotal counts pinned-family rollovers (current -> next promotion).
	PinnedRolloversTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spreadscan_subscription_pinned_rollovers_total",
		Help: "Total number of pinned-family rollovers, by prefix",
	}, []string{"prefix"})
)
