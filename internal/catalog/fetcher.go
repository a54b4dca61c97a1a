// Package catalog implements the Catalog Fetcher (C1): it polls the
// upstream market catalog, applies admission gates, and emits a reconciled
// desired set of binary markets to the Subscription Controller.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/arbscan/spread-scanner/pkg/cache"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Fetcher periodically polls the catalog and applies the admission gates
// from §4.1: minimum 24h volume, minimum liquidity, and an expiry window.
type Fetcher struct {
	client       *Client
	cache        cache.MarketCache
	logger       *zap.Logger
	pollInterval time.Duration
	pageLimit    int

	minVolume24h float64
	minLiquidity float64
	minExpiry    time.Duration
	maxExpiry    time.Duration

	mu         sync.RWMutex
	desiredSet map[string]types.Market // market ID -> market

	desiredCh chan map[string]types.Market
}

// Config holds Fetcher configuration.
type Config struct {
	Client       *Client
	Cache        cache.MarketCache
	Logger       *zap.Logger
	PollInterval time.Duration
	PageLimit    int
	MinVolume24h float64
	MinLiquidity float64
	MinExpiry    time.Duration
	MaxExpiry    time.Duration
}

// New creates a new Fetcher.
func New(cfg *Config) *Fetcher {
	return &Fetcher{
		client:       cfg.Client,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		pageLimit:    cfg.PageLimit,
		minVolume24h: cfg.MinVolume24h,
		minLiquidity: cfg.MinLiquidity,
		minExpiry:    cfg.MinExpiry,
		maxExpiry:    cfg.MaxExpiry,
		desiredSet:   make(map[string]types.Market),
		desiredCh:    make(chan map[string]types.Market, 1),
	}
}

// DesiredSetChan returns the channel on which reconciled desired sets are
// published, one per poll tick. The channel is buffered to 1: a consumer
// that falls behind sees only the most recent snapshot, never a backlog.
func (f *Fetcher) DesiredSetChan() <-chan map[string]types.Market {
	return f.desiredCh
}

// Run polls the catalog on pollInterval until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) error {
	f.logger.Info("catalog-fetcher-starting",
		zap.Duration("poll-interval", f.pollInterval),
		zap.Float64("min-volume-24h", f.minVolume24h),
		zap.Float64("min-liquidity", f.minLiquidity))

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	f.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("catalog-fetcher-stopping")
			return ctx.Err()
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

// poll fetches one page set from the catalog, applies the admission gates,
// and publishes the reconciled desired set. On transport error it fails
// soft: logs and retains the previous desired set (§4.1).
func (f *Fetcher) poll(ctx context.Context) {
	start := time.Now()
	defer func() {
		PollDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	resp, err := f.client.FetchActiveMarkets(ctx, f.pageLimit, 0, "volume24hr")
	if err != nil {
		PollErrorsTotal.Inc()
		f.logger.Warn("poll-failed-retaining-previous-set", zap.Error(err))
		return
	}

	MarketsSeenTotal.Add(float64(len(resp.Data)))

	next := make(map[string]types.Market, len(resp.Data))

	for i := range resp.Data {
		m := resp.Data[i]
		if !f.admit(m) {
			continue
		}
		next[m.ID] = m
		f.cacheMarket(&m)
	}

	f.mu.Lock()
	f.desiredSet = next
	f.mu.Unlock()

	DesiredSetSize.Set(float64(len(next)))

	select {
	case f.desiredCh <- next:
	default:
		// Drop the stale snapshot in the buffer in favor of the fresh one.
		select {
		case <-f.desiredCh:
		default:
		}
		f.desiredCh <- next
	}

	f.logger.Debug("poll-complete",
		zap.Int("seen", len(resp.Data)),
		zap.Int("admitted", len(next)),
		zap.Duration("duration", time.Since(start)))
}

// admit applies the three gates from §4.1.
func (f *Fetcher) admit(m types.Market) bool {
	if m.YesTokenID == "" || m.NoTokenID == "" {
		MarketsRejectedTotal.WithLabelValues("unresolved_tokens").Inc()
		return false
	}

	if m.Volume24hr < f.minVolume24h {
		MarketsRejectedTotal.WithLabelValues("min_volume").Inc()
		return false
	}

	if m.Liquidity < f.minLiquidity {
		MarketsRejectedTotal.WithLabelValues("min_liquidity").Inc()
		return false
	}

	if m.EndDate.IsZero() {
		MarketsRejectedTotal.WithLabelValues("no_end_date").Inc()
		return false
	}

	untilExpiry := time.Until(m.EndDate)
	if untilExpiry < 0 {
		MarketsRejectedTotal.WithLabelValues("already_expired").Inc()
		return false
	}
	if f.minExpiry > 0 && untilExpiry < f.minExpiry {
		MarketsRejectedTotal.WithLabelValues("expiry_too_soon").Inc()
		return false
	}
	if f.maxExpiry > 0 && untilExpiry > f.maxExpiry {
		MarketsRejectedTotal.WithLabelValues("expiry_too_far").Inc()
		return false
	}

	return true
}

func (f *Fetcher) cacheMarket(m *types.Market) {
	if f.cache == nil {
		return
	}
	const cacheTTL = 24 * time.Hour
	if !f.cache.SetMarket(m, cacheTTL) {
		f.logger.Warn("failed-to-cache-market", zap.String("market-id", m.ID))
	}
}

// GetMarket retrieves a market descriptor from cache, or nil if absent.
func (f *Fetcher) GetMarket(marketID string) *types.Market {
	if f.cache == nil {
		return nil
	}
	m, found := f.cache.GetMarket(marketID)
	if !found {
		return nil
	}
	return m
}

// DesiredSet returns a snapshot of the current desired set.
func (f *Fetcher) DesiredSet() map[string]types.Market {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]types.Market, len(f.desiredSet))
	for k, v := range f.desiredSet {
		out[k] = v
	}
	return out
}
