package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arbscan/spread-scanner/pkg/fixedpoint"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu      sync.Mutex
	windows []*types.ClosedWindow
	calls   int
}

func (f *fakeReader) ListClosedWindowsSince(_ context.Context, sinceNs int64) ([]*types.ClosedWindow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	var out []*types.ClosedWindow
	for _, w := range f.windows {
		if w.ClosedAtNs >= sinceNs {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeWriter struct {
	mu    sync.Mutex
	stats map[string]*types.MarketStats
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{stats: make(map[string]*types.MarketStats)}
}

func (f *fakeWriter) UpsertMarketStats(_ context.Context, stats *types.MarketStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[stats.MarketID] = stats
	return nil
}

func (f *fakeWriter) get(marketID string) *types.MarketStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[marketID]
}

type fakeDetectorStats struct {
	started   map[string]int
	discarded map[string]int
}

func (f *fakeDetectorStats) ObservationStats(marketID string) (int, int) {
	return f.started[marketID], f.discarded[marketID]
}

func testLoggerAgg() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func closedWindow(marketID string, class types.OpportunityClass, closeSpread float64, closedAtNs int64) *types.ClosedWindow {
	return &types.ClosedWindow{
		MarketID:         marketID,
		OpenedAtNs:       closedAtNs - int64(500*time.Millisecond),
		ClosedAtNs:       closedAtNs,
		OpenYesAsk:       fixedpoint.Price(4500),
		OpenNoAsk:        fixedpoint.Price(4500),
		OpenCombined:     fixedpoint.Price(9000),
		OpenSpread:       0.10,
		CloseSpread:      closeSpread,
		OpportunityClass: class,
	}
}

func waitForAgg(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAggregator_ComputesPerMarketRollup(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{windows: []*types.ClosedWindow{
		closedWindow("m1", types.OpportunityBest, 0.08, now.UnixNano()),
		closedWindow("m1", types.OpportunityGood, 0.06, now.UnixNano()),
		closedWindow("m1", types.OpportunityLowValue, 0.02, now.UnixNano()),
	}}
	writer := newFakeWriter()
	det := &fakeDetectorStats{started: map[string]int{"m1": 10}, discarded: map[string]int{"m1": 2}}

	agg := New(Config{
		Reader:   reader,
		Writer:   writer,
		Detector: det,
		Interval: 20 * time.Millisecond,
		Window:   time.Hour,
		Logger:   testLoggerAgg(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Close()

	waitForAgg(t, func() bool { return writer.get("m1") != nil })

	stats := writer.get("m1")
	if stats.WindowCount != 3 {
		t.Errorf("expected 3 windows, got %d", stats.WindowCount)
	}
	if stats.CountByClass[types.OpportunityBest] != 1 || stats.CountByClass[types.OpportunityGood] != 1 {
		t.Errorf("unexpected count_by_class: %+v", stats.CountByClass)
	}
	if stats.NoiseRatio != 0.2 {
		t.Errorf("expected noise_ratio 0.2, got %f", stats.NoiseRatio)
	}
	if stats.CompositeScore <= 0 {
		t.Errorf("expected a positive composite score, got %f", stats.CompositeScore)
	}
	if stats.MaxSpread != 0.08 {
		t.Errorf("expected max_spread 0.08, got %f", stats.MaxSpread)
	}
}

func TestAggregator_NoWindowsWritesNoStatsRow(t *testing.T) {
	reader := &fakeReader{}
	writer := newFakeWriter()

	agg := New(Config{
		Reader:   reader,
		Writer:   writer,
		Detector: &fakeDetectorStats{},
		Interval: time.Hour,
		Logger:   testLoggerAgg(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Close()

	waitForAgg(t, func() bool { return reader.calls > 0 })
	time.Sleep(20 * time.Millisecond)

	if writer.get("m1") != nil {
		t.Error("expected no stats row for a market with zero windows")
	}
}

func TestAggregator_HighNoiseRatioSuppressesCompositeScore(t *testing.T) {
	now := time.Now()
	reader := &fakeReader{windows: []*types.ClosedWindow{
		closedWindow("noisy", types.OpportunityBest, 0.08, now.UnixNano()),
	}}
	writer := newFakeWriter()
	det := &fakeDetectorStats{started: map[string]int{"noisy": 100}, discarded: map[string]int{"noisy": 99}}

	agg := New(Config{
		Reader:   reader,
		Writer:   writer,
		Detector: det,
		Interval: 20 * time.Millisecond,
		Logger:   testLoggerAgg(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer agg.Close()

	waitForAgg(t, func() bool { return writer.get("noisy") != nil })

	stats := writer.get("noisy")
	if stats.CompositeScore >= 0.02 {
		t.Errorf("expected a heavily suppressed composite score, got %f", stats.CompositeScore)
	}
}

func TestAggregator_NilReaderDisablesStart(t *testing.T) {
	agg := New(Config{Logger: testLoggerAgg()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agg.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// No goroutine should have been spawned; Close must not hang.
	done := make(chan struct{})
	go func() {
		agg.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close hung for a disabled aggregator")
	}
}
