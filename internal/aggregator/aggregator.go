// Package aggregator implements the Aggregator (C9): a scheduled rollup
// of persisted spread windows into per-market statistics (§4.9).
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Reader is the subset of the Persistence Writer's read surface the
// Aggregator needs: a time-bounded scan across every market.
type Reader interface {
	ListClosedWindowsSince(ctx context.Context, sinceNs int64) ([]*types.ClosedWindow, error)
}

// StatsWriter persists one market's rollup. *persistence.Writer satisfies
// this directly.
type StatsWriter interface {
	UpsertMarketStats(ctx context.Context, stats *types.MarketStats) error
}

// DetectorStats exposes the Detector's in-memory observation tally so the
// Aggregator can compute noise_ratio for windows that were discarded before
// ever reaching persistence (§4.4, §4.9).
type DetectorStats interface {
	ObservationStats(marketID string) (pendingStarted, discardedPending int)
}

// Config holds Aggregator wiring.
type Config struct {
	Reader   Reader
	Writer   StatsWriter
	Detector DetectorStats

	// Interval is how often a pass runs. Zero defaults to 60s (§4.9).
	Interval time.Duration
	// Window is how far back a pass scans. Zero defaults to 24h (§4.9).
	Window time.Duration

	Logger *zap.Logger
}

// Aggregator periodically rolls persisted windows up into per-market
// statistics for the query surface (§6) and the Classifier's peers.
type Aggregator struct {
	reader   Reader
	writer   StatsWriter
	detector DetectorStats
	interval time.Duration
	window   time.Duration
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Aggregator. If cfg.Reader is nil (console storage mode has
// nothing to scan), Start is a no-op — there is no durable history to roll
// up.
func New(cfg Config) *Aggregator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	window := cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}

	return &Aggregator{
		reader:   cfg.Reader,
		writer:   cfg.Writer,
		detector: cfg.Detector,
		interval: interval,
		window:   window,
		logger:   cfg.Logger,
	}
}

// Start begins the Aggregator's ticker loop.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.reader == nil {
		a.logger.Info("aggregator-disabled-no-reader")
		return nil
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.logger.Info("aggregator-starting",
		zap.Duration("interval", a.interval),
		zap.Duration("window", a.window))

	a.wg.Add(1)
	go a.run()

	return nil
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	if err := a.pass(); err != nil {
		a.logger.Error("aggregator-pass-failed", zap.Error(err))
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if err := a.pass(); err != nil {
				a.logger.Error("aggregator-pass-failed", zap.Error(err))
			}
		}
	}
}

func (a *Aggregator) pass() error {
	start := time.Now()
	defer func() {
		RunDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	since := start.Add(-a.window).UnixNano()
	windows, err := a.reader.ListClosedWindowsSince(a.ctx, since)
	if err != nil {
		RunErrorsTotal.Inc()
		return fmt.Errorf("list closed windows since: %w", err)
	}

	grouped := groupByMarket(windows)

	now := start
	for marketID, ws := range grouped {
		stats := a.computeStats(marketID, ws, now)
		if err := a.writer.UpsertMarketStats(a.ctx, stats); err != nil {
			RunErrorsTotal.Inc()
			a.logger.Error("upsert-market-stats-failed", zap.String("market-id", marketID), zap.Error(err))
			continue
		}
		MarketsAggregatedTotal.Inc()
	}

	a.logger.Debug("aggregator-pass-complete",
		zap.Int("markets", len(grouped)),
		zap.Int("windows-scanned", len(windows)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

func groupByMarket(windows []*types.ClosedWindow) map[string][]*types.ClosedWindow {
	out := make(map[string][]*types.ClosedWindow)
	for _, w := range windows {
		out[w.MarketID] = append(out[w.MarketID], w)
	}
	return out
}

// classWeight is §4.9's emphasis on class 1 (Best) and class 2 (Good)
// opportunities over the rest when composing the composite score.
func classWeight(c types.OpportunityClass) float64 {
	switch c {
	case types.OpportunityBest:
		return 2.0
	case types.OpportunityGood:
		return 1.5
	default:
		return 1.0
	}
}

// computeStats rolls one market's windows into §4.9's per-market summary.
func (a *Aggregator) computeStats(marketID string, windows []*types.ClosedWindow, now time.Time) *types.MarketStats {
	countByClass := make(map[types.OpportunityClass]int)
	var totalDurationMs, totalSpread, maxSpread, weightedScore float64

	for _, w := range windows {
		countByClass[w.OpportunityClass]++
		totalDurationMs += float64(w.DurationMs())
		totalSpread += w.CloseSpread
		if w.CloseSpread > maxSpread {
			maxSpread = w.CloseSpread
		}
		weightedScore += classWeight(w.OpportunityClass) * w.CloseSpread
	}

	n := float64(len(windows))
	avgDurationMs := 0.0
	avgSpread := 0.0
	if n > 0 {
		avgDurationMs = totalDurationMs / n
		avgSpread = totalSpread / n
	}

	noiseRatio := 0.0
	if a.detector != nil {
		started, discarded := a.detector.ObservationStats(marketID)
		if started > 0 {
			noiseRatio = float64(discarded) / float64(started)
		}
	}

	// Composite score: class-weighted average spread rewards frequent
	// high-value opportunities, scaled down by how noisy the market is.
	// A market that is all noise (noise_ratio -> 1) contributes ~0.
	composite := 0.0
	if n > 0 {
		composite = (weightedScore / n) * (1.0 - noiseRatio)
	}

	return &types.MarketStats{
		MarketID:       marketID,
		WindowCount:    len(windows),
		CountByClass:   countByClass,
		AvgDurationMs:  avgDurationMs,
		AvgSpread:      avgSpread,
		MaxSpread:      maxSpread,
		NoiseRatio:     noiseRatio,
		CompositeScore: composite,
		ComputedAt:     now,
	}
}

// Close stops the Aggregator's ticker loop.
func (a *Aggregator) Close() error {
	a.logger.Info("closing-aggregator")
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	return nil
}
