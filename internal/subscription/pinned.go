package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arbscan/spread-scanner/internal/catalog"
	"github.com/arbscan/spread-scanner/internal/store"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// PinnedConfig holds PinnedWatcher configuration.
type PinnedConfig struct {
	Client       *catalog.Client
	Store        *store.Store
	Feed         Feed
	Detector     Detector
	MarketWriter MarketWriter
	Prefixes     []string
	PollInterval time.Duration
	PreSubscribe time.Duration
	GracePeriod  time.Duration
	Logger       *zap.Logger
}

type familyState struct {
	// subscribed holds every pinned member currently subscribed for this
	// prefix, keyed by market ID, until it rolls out of the grace window.
	subscribed map[string]types.Market
}

// PinnedWatcher is the faster-cadence pinned-market rollover watcher
// (§4.8, §9 "Pinned markets"). It runs independently of the main
// Subscription Controller so a pinned family's short lifetime is never
// missed by the ordinary ~60s catalog refresh cadence.
type PinnedWatcher struct {
	client       *catalog.Client
	store        *store.Store
	feed         Feed
	detector     Detector
	marketWriter MarketWriter
	prefixes     []string
	pollInterval time.Duration
	preSubscribe time.Duration
	gracePeriod  time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	states map[string]*familyState // prefix -> state

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPinnedWatcher creates a PinnedWatcher.
func NewPinnedWatcher(cfg PinnedConfig) *PinnedWatcher {
	return &PinnedWatcher{
		client:       cfg.Client,
		store:        cfg.Store,
		feed:         cfg.Feed,
		detector:     cfg.Detector,
		marketWriter: cfg.MarketWriter,
		prefixes:     cfg.Prefixes,
		pollInterval: cfg.PollInterval,
		preSubscribe: cfg.PreSubscribe,
		gracePeriod:  cfg.GracePeriod,
		logger:       cfg.Logger,
		states:       make(map[string]*familyState),
	}
}

// Start begins polling. A no-op (but still started, for a uniform
// lifecycle) when no prefixes are configured.
func (p *PinnedWatcher) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.logger.Info("pinned-watcher-starting",
		zap.Strings("prefixes", p.prefixes),
		zap.Duration("poll-interval", p.pollInterval))

	if len(p.prefixes) == 0 {
		return nil
	}

	p.wg.Add(1)
	go p.run()
	return nil
}

func (p *PinnedWatcher) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

func (p *PinnedWatcher) pollAll() {
	for _, prefix := range p.prefixes {
		p.pollPrefix(prefix)
	}
}

// pollPrefix reconciles one pinned family: it finds the current soonest-
// expiring still-future member, pre-subscribes the next member inside the
// pre-subscribe window, and unsubscribes members past their grace period.
func (p *PinnedWatcher) pollPrefix(prefix string) {
	matches, err := p.client.FetchMarketsByPrefix(p.ctx, prefix, 3)
	if err != nil {
		p.logger.Warn("pinned-fetch-failed", zap.String("prefix", prefix), zap.Error(err))
		return
	}

	now := time.Now()
	var future []types.Market
	for _, m := range matches {
		if m.EndDate.After(now) {
			future = append(future, m)
		}
	}
	sort.Slice(future, func(i, j int) bool { return future[i].EndDate.Before(future[j].EndDate) })

	p.mu.Lock()
	state, ok := p.states[prefix]
	if !ok {
		state = &familyState{subscribed: make(map[string]types.Market)}
		p.states[prefix] = state
	}
	p.mu.Unlock()

	desired := make(map[string]types.Market)
	if len(future) > 0 {
		current := future[0]
		desired[current.ID] = current

		if len(future) > 1 && current.EndDate.Sub(now) <= p.preSubscribe {
			next := future[1]
			desired[next.ID] = next
		}
	}

	for id, m := range desired {
		if _, already := state.subscribed[id]; already {
			continue
		}
		p.subscribe(m)
		state.subscribed[id] = m
		PinnedRolloversTotal.WithLabelValues(prefix).Inc()
	}

	for id, m := range state.subscribed {
		if _, stillDesired := desired[id]; stillDesired {
			continue
		}
		if now.Sub(m.EndDate) < p.gracePeriod {
			continue // still within grace, leave subscribed
		}
		p.unsubscribe(m)
		delete(state.subscribed, id)
	}

	PinnedMarketsGauge.Set(float64(p.pinnedCount()))
}

func (p *PinnedWatcher) pinnedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.states {
		n += len(s.subscribed)
	}
	return n
}

func (p *PinnedWatcher) subscribe(m types.Market) {
	wm := &types.WatchedMarket{
		MarketID:     m.ID,
		Slug:         m.Slug,
		Question:     m.Question,
		Category:     m.Category,
		EndDate:      m.EndDate,
		YesTokenID:   m.YesTokenID,
		NoTokenID:    m.NoTokenID,
		SubscribedAt: time.Now(),
		Pinned:       true,
	}
	p.store.InsertMarket(wm, true)

	if err := p.feed.Subscribe([]string{m.YesTokenID, m.NoTokenID}); err != nil {
		SubscribeErrorsTotal.Inc()
		p.logger.Error("pinned-subscribe-failed", zap.String("market-id", m.ID), zap.Error(err))
		return
	}

	if p.marketWriter != nil {
		if err := p.marketWriter.UpsertMarket(p.ctx, wm); err != nil {
			p.logger.Error("upsert-market-metadata-failed", zap.String("market-id", m.ID), zap.Error(err))
		}
	}

	p.logger.Info("pinned-market-subscribed", zap.String("market-id", m.ID), zap.String("slug", m.Slug))
}

func (p *PinnedWatcher) unsubscribe(m types.Market) {
	if err := p.feed.Unsubscribe([]string{m.YesTokenID, m.NoTokenID}); err != nil {
		UnsubscribeErrorsTotal.Inc()
		p.logger.Error("pinned-unsubscribe-failed", zap.String("market-id", m.ID), zap.Error(err))
	}

	p.detector.RemoveMarket(m.ID)
	p.store.RemoveMarket(m.ID)

	p.logger.Info("pinned-market-expired-removed", zap.String("market-id", m.ID), zap.String("slug", m.Slug))
}

// Close stops the watcher's poll loop.
func (p *PinnedWatcher) Close() error {
	p.logger.Info("closing-pinned-watcher")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}
