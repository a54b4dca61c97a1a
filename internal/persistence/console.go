package persistence

import (
	"context"
	"fmt"

	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// ConsoleBackend implements Backend by pretty-printing windows to the
// console. Used when no durable store is configured.
type ConsoleBackend struct {
	logger *zap.Logger
}

// NewConsoleBackend creates a console backend.
func NewConsoleBackend(logger *zap.Logger) *ConsoleBackend {
	logger.Info("console-backend-initialized")
	return &ConsoleBackend{logger: logger}
}

// UpsertMarket prints a market's catalog metadata on admission.
func (c *ConsoleBackend) UpsertMarket(_ context.Context, m *types.WatchedMarket) error {
	fmt.Printf("MARKET market=%-20s slug=%-30s category=%-12s ends=%s\n",
		m.MarketID, m.Slug, m.Category, m.EndDate.Format("2006-01-02"))
	return nil
}

// InsertOpen prints the opening of a spread window.
func (c *ConsoleBackend) InsertOpen(_ context.Context, w *types.ClosedWindow) error {
	fmt.Printf("OPEN   market=%-20s yes_ask=%s no_ask=%s combined=%s spread=%.4f (%s)\n",
		w.MarketID, w.OpenYesAsk, w.OpenNoAsk, w.OpenCombined, w.OpenSpread, w.SpreadCategory)
	return nil
}

// UpsertClose prints the closing of a spread window.
func (c *ConsoleBackend) UpsertClose(_ context.Context, w *types.ClosedWindow) error {
	fmt.Printf("CLOSE  market=%-20s duration=%dms ticks=%d reason=%-20s class=%d combined=%s->%s\n",
		w.MarketID, w.DurationMs(), w.TickCount, w.CloseReason, w.OpportunityClass, w.OpenCombined, w.CloseCombined)
	return nil
}

// UpsertMarketStats prints an Aggregator rollup.
func (c *ConsoleBackend) UpsertMarketStats(_ context.Context, stats *types.MarketStats) error {
	fmt.Printf("STATS  market=%-20s windows=%d avg_duration=%.1fms avg_spread=%.4f noise_ratio=%.2f score=%.3f\n",
		stats.MarketID, stats.WindowCount, stats.AvgDurationMs, stats.AvgSpread, stats.NoiseRatio, stats.CompositeScore)
	return nil
}

// Close is a no-op for console output.
func (c *ConsoleBackend) Close() error {
	c.logger.Info("closing-console-backend")
	return nil
}
