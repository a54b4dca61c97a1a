package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// fakeBackend is an in-memory Backend test double.
type fakeBackend struct {
	mu      sync.Mutex
	markets []*types.WatchedMarket
	opens   []*types.ClosedWindow
	closes  []*types.ClosedWindow
	stats   []*types.MarketStats
	closed  bool

	failOpen  bool
	failClose bool
}

func (f *fakeBackend) UpsertMarket(_ context.Context, m *types.WatchedMarket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, m)
	return nil
}

func (f *fakeBackend) InsertOpen(_ context.Context, w *types.ClosedWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOpen {
		return errBackend
	}
	f.opens = append(f.opens, w)
	return nil
}

func (f *fakeBackend) UpsertClose(_ context.Context, w *types.ClosedWindow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClose {
		return errBackend
	}
	f.closes = append(f.closes, w)
	return nil
}

func (f *fakeBackend) UpsertMarketStats(_ context.Context, s *types.MarketStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, s)
	return nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) opensLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeBackend) closesLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closes)
}

type backendError string

func (e backendError) Error() string { return string(e) }

const errBackend = backendError("backend failure")

func testLogger() *zap.Logger {
	l, _ := zap.NewDevelopment()
	return l
}

func openEvent(marketID string) *types.WindowEvent {
	return &types.WindowEvent{
		Kind: types.WindowOpened,
		Window: &types.ClosedWindow{
			MarketID:   marketID,
			OpenedAtNs: 1,
		},
	}
}

func closeEvent(marketID string) *types.WindowEvent {
	return &types.WindowEvent{
		Kind: types.WindowClosed,
		Window: &types.ClosedWindow{
			MarketID:   marketID,
			OpenedAtNs: 1,
			ClosedAtNs: 2,
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestWriter_ForwardsOpenToBackend(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	w.EnqueueOpen(openEvent("market-1"))

	waitFor(t, func() bool { return backend.opensLen() == 1 })
}

func TestWriter_ForwardsCloseToBackend(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	w.EnqueueClose(closeEvent("market-1"))

	waitFor(t, func() bool { return backend.closesLen() == 1 })
}

func TestWriter_EnqueueOpen_DropsWhenQueueFull(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 1, testLogger())
	// Fill the queue without starting the dispatch loop so it stays full.
	w.queue <- openEvent("blocker")

	w.EnqueueOpen(openEvent("market-2"))

	if len(w.queue) != 1 {
		t.Fatalf("expected queue to remain at capacity 1, got %d", len(w.queue))
	}
}

func TestWriter_EnqueueClose_EvictsToAdmitOnOverflow(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 1, testLogger())
	w.queue <- openEvent("blocker")

	w.EnqueueClose(closeEvent("market-2"))

	if len(w.queue) != 1 {
		t.Fatalf("expected queue to hold exactly the evicting entry, got %d", len(w.queue))
	}
	evicted := <-w.queue
	if evicted.Window.MarketID != "market-2" {
		t.Fatalf("expected the close to have displaced the blocked open, got %q", evicted.Window.MarketID)
	}
}

func TestWriter_UpsertMarketStats_BypassesQueue(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 16, testLogger())

	stats := &types.MarketStats{MarketID: "market-1", WindowCount: 3}
	if err := w.UpsertMarketStats(context.Background(), stats); err != nil {
		t.Fatalf("upsert market stats: %v", err)
	}

	if len(backend.stats) != 1 || backend.stats[0].MarketID != "market-1" {
		t.Fatalf("expected stats forwarded directly to backend, got %+v", backend.stats)
	}
}

func TestWriter_UpsertMarket_BypassesQueue(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 16, testLogger())

	market := &types.WatchedMarket{MarketID: "market-1", Slug: "will-x-happen"}
	if err := w.UpsertMarket(context.Background(), market); err != nil {
		t.Fatalf("upsert market: %v", err)
	}

	if len(backend.markets) != 1 || backend.markets[0].MarketID != "market-1" {
		t.Fatalf("expected market forwarded directly to backend, got %+v", backend.markets)
	}
}

func TestWriter_Close_ClosesBackend(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, 16, testLogger())
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !backend.closed {
		t.Fatal("expected backend.Close to have been called")
	}
}

func TestWriter_DispatchLogsErrorsWithoutPanicking(t *testing.T) {
	backend := &fakeBackend{failOpen: true, failClose: true}
	w := New(backend, 16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Close()

	w.EnqueueOpen(openEvent("market-1"))
	w.EnqueueClose(closeEvent("market-1"))

	// Give the dispatch loop a moment; the assertion here is simply that
	// nothing panics and the writer remains responsive.
	time.Sleep(20 * time.Millisecond)
}
