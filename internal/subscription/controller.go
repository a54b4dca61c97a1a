// Package subscription implements the Subscription Controller (C8): it
// reconciles the Catalog Fetcher's desired set against the Market Store's
// watched set, and runs a separate faster-cadence watcher for pinned
// recurring-market families (§4.8).
package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/arbscan/spread-scanner/internal/store"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Feed is the subset of the Feed Connector the controller drives.
type Feed interface {
	Subscribe(tokenIDs []string) error
	Unsubscribe(tokenIDs []string) error
}

// Detector is the subset of the Spread Detector the controller drives. A
// market removed while its window is Open must synthesize a Close (§4.4).
type Detector interface {
	RemoveMarket(marketID string)
}

// MarketWriter persists a market's catalog metadata on admission (§4.1),
// so the query surface and a restarted process keep question/category/slug
// beyond the Catalog Fetcher's in-memory cache. *persistence.Writer
// satisfies this directly.
type MarketWriter interface {
	UpsertMarket(ctx context.Context, m *types.WatchedMarket) error
}

// Config holds Controller configuration.
type Config struct {
	Store        *store.Store
	Feed         Feed
	Detector     Detector
	MarketWriter MarketWriter
	DesiredSetCh       <-chan map[string]types.Market
	ReconcileInterval time.Duration
	MaxSubscriptions  int
	// RemoveGraceTicks is the number of consecutive reconcile ticks a
	// market must be absent from the desired set before it is removed,
	// guarding against a single flaky catalog poll evicting a market that
	// is still live (§4.8 "past any grace period").
	RemoveGraceTicks int
	Logger           *zap.Logger
}

// Controller is the Subscription Controller (§4.8).
type Controller struct {
	store             *store.Store
	feed              Feed
	detector          Detector
	marketWriter      MarketWriter
	desiredCh         <-chan map[string]types.Market
	reconcileInterval time.Duration
	maxSubscriptions  int
	removeGraceTicks  int
	logger            *zap.Logger

	mu            sync.Mutex
	latestDesired map[string]types.Market
	absentTicks   map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Subscription Controller.
func New(cfg Config) *Controller {
	graceTicks := cfg.RemoveGraceTicks
	if graceTicks < 1 {
		graceTicks = 1
	}
	return &Controller{
		store:             cfg.Store,
		feed:              cfg.Feed,
		detector:          cfg.Detector,
		marketWriter:      cfg.MarketWriter,
		desiredCh:         cfg.DesiredSetCh,
		reconcileInterval: cfg.ReconcileInterval,
		maxSubscriptions:  cfg.MaxSubscriptions,
		removeGraceTicks:  graceTicks,
		logger:            cfg.Logger,
		absentTicks:       make(map[string]int),
	}
}

// Start begins the watch-and-reconcile loops.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("subscription-controller-starting",
		zap.Duration("reconcile-interval", c.reconcileInterval),
		zap.Int("max-subscriptions", c.maxSubscriptions))

	c.wg.Add(2)
	go c.watchDesiredSet()
	go c.reconcileLoop()

	return nil
}

func (c *Controller) watchDesiredSet() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case next, ok := <-c.desiredCh:
			if !ok {
				return
			}
			c.mu.Lock()
			c.latestDesired = next
			c.mu.Unlock()
		}
	}
}

func (c *Controller) reconcileLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.reconcile()
		}
	}
}

// reconcile diffs the desired set against the Store's watched set (§4.8).
func (c *Controller) reconcile() {
	c.mu.Lock()
	desired := c.latestDesired
	c.mu.Unlock()
	if desired == nil {
		return
	}

	watched := c.store.AllMarkets()

	var toAdd []types.Market
	for id, m := range desired {
		if _, ok := c.store.MarketByID(id); !ok {
			toAdd = append(toAdd, m)
		}
		delete(c.absentTicks, id)
	}

	var toRemove []*types.WatchedMarket
	for _, w := range watched {
		if w.Pinned || c.store.IsPinned(w.MarketID) {
			continue
		}
		if _, ok := desired[w.MarketID]; ok {
			continue
		}
		c.absentTicks[w.MarketID]++
		if c.absentTicks[w.MarketID] >= c.removeGraceTicks {
			toRemove = append(toRemove, w)
			delete(c.absentTicks, w.MarketID)
		}
	}

	for _, m := range toAdd {
		c.addMarket(m, false)
	}
	for _, w := range toRemove {
		c.removeMarket(w)
	}

	WatchedMarketsGauge.Set(float64(c.store.MarketCount()))
}

// addMarket inserts into the Store then subscribes its tokens — order is
// mandatory (§4.8).
func (c *Controller) addMarket(m types.Market, pinned bool) {
	if c.store.MarketCount() >= c.maxSubscriptions {
		MarketsSkippedTotal.Inc()
		c.logger.Warn("max-subscriptions-reached-skipping-market", zap.String("market-id", m.ID))
		return
	}

	wm := &types.WatchedMarket{
		MarketID:     m.ID,
		Slug:         m.Slug,
		Question:     m.Question,
		Category:     m.Category,
		EndDate:      m.EndDate,
		YesTokenID:   m.YesTokenID,
		NoTokenID:    m.NoTokenID,
		SubscribedAt: time.Now(),
		Pinned:       pinned,
	}
	c.store.InsertMarket(wm, pinned)

	if err := c.feed.Subscribe([]string{m.YesTokenID, m.NoTokenID}); err != nil {
		SubscribeErrorsTotal.Inc()
		c.logger.Error("subscribe-failed", zap.String("market-id", m.ID), zap.Error(err))
		return
	}

	if c.marketWriter != nil {
		if err := c.marketWriter.UpsertMarket(c.ctx, wm); err != nil {
			c.logger.Error("upsert-market-metadata-failed", zap.String("market-id", m.ID), zap.Error(err))
		}
	}

	MarketsAddedTotal.Inc()
	c.logger.Info("market-added", zap.String("market-id", m.ID), zap.String("slug", m.Slug))
}

// removeMarket unsubscribes tokens, lets the Detector synthesize a Close
// for any Open window, then removes from the Store — order is mandatory
// (§4.8, §4.4 "Removal during Open").
func (c *Controller) removeMarket(w *types.WatchedMarket) {
	if err := c.feed.Unsubscribe([]string{w.YesTokenID, w.NoTokenID}); err != nil {
		UnsubscribeErrorsTotal.Inc()
		c.logger.Error("unsubscribe-failed", zap.String("market-id", w.MarketID), zap.Error(err))
	}

	c.detector.RemoveMarket(w.MarketID)
	c.store.RemoveMarket(w.MarketID)

	MarketsRemovedTotal.Inc()
	c.logger.Info("market-removed", zap.String("market-id", w.MarketID))
}

// Close stops the controller's loops.
func (c *Controller) Close() error {
	c.logger.Info("closing-subscription-controller")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}
