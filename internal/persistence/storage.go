// Package persistence implements the Persistence Writer (C7): it owns the
// durable store and runs in its own task so the detection hot path never
// blocks on I/O.
package persistence

import (
	"context"
	"sync"

	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Backend persists window events. PostgresBackend and ConsoleBackend both
// implement it.
type Backend interface {
	// UpsertMarket persists a market's catalog metadata on admission
	// (§4.1, §4.8): question/slug/category/expiry, otherwise held only in
	// the Catalog Fetcher's in-memory cache and lost on restart.
	UpsertMarket(ctx context.Context, m *types.WatchedMarket) error
	// InsertOpen inserts a row keyed by (market_id, opened_at_ns) with
	// closed_at NULL (§4.7).
	InsertOpen(ctx context.Context, w *types.ClosedWindow) error
	// UpsertClose attempts to UPDATE the still-open row for
	// (market_id, opened_at_ns); if none was updated it INSERTs a complete
	// row (§4.7's race/overflow coverage).
	UpsertClose(ctx context.Context, w *types.ClosedWindow) error
	// UpsertMarketStats persists one Aggregator (C9) rollup.
	UpsertMarketStats(ctx context.Context, stats *types.MarketStats) error
	Close() error
}

// Writer is the Persistence Writer (§4.7). It owns a bounded queue fed by
// the Window Consumer and dispatches to Backend off the hot path.
type Writer struct {
	backend Backend
	logger  *zap.Logger

	queue chan *types.WindowEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Persistence Writer with a queue of the given size ("bounded
// but large", §4.7 — thousands of entries).
func New(backend Backend, queueSize int, logger *zap.Logger) *Writer {
	return &Writer{
		backend: backend,
		logger:  logger,
		queue:   make(chan *types.WindowEvent, queueSize),
	}
}

// Start begins the writer's dispatch loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("persistence-writer-starting", zap.Int("queue-capacity", cap(w.queue)))

	w.wg.Add(1)
	go w.run()

	return nil
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.queue:
			if !ok {
				return
			}
			w.dispatch(event)
		}
	}
}

func (w *Writer) dispatch(event *types.WindowEvent) {
	switch event.Kind {
	case types.WindowOpened:
		if err := w.backend.InsertOpen(w.ctx, event.Window); err != nil {
			w.logger.Error("insert-open-failed", zap.String("market-id", event.Window.MarketID), zap.Error(err))
			WriteErrorsTotal.WithLabelValues("open").Inc()
			return
		}
	case types.WindowClosed:
		if err := w.backend.UpsertClose(w.ctx, event.Window); err != nil {
			w.logger.Error("upsert-close-failed", zap.String("market-id", event.Window.MarketID), zap.Error(err))
			WriteErrorsTotal.WithLabelValues("close").Inc()
			return
		}
	}
	QueueDepth.Set(float64(len(w.queue)))
}

// EnqueueOpen enqueues an Open event. On overflow it is dropped: an Open
// lost this way is recovered when its Close falls back to a full INSERT
// (§4.7).
func (w *Writer) EnqueueOpen(event *types.WindowEvent) {
	select {
	case w.queue <- event:
		QueueDepth.Set(float64(len(w.queue)))
	default:
		OpensDroppedTotal.Inc()
		w.logger.Warn("writer-queue-full-dropping-open", zap.String("market-id", event.Window.MarketID))
	}
}

// EnqueueClose enqueues a Close event. The queue prefers to lose Opens over
// Closes (§4.7): on overflow it evicts one buffered entry before retrying
// once.
func (w *Writer) EnqueueClose(event *types.WindowEvent) {
	select {
	case w.queue <- event:
		QueueDepth.Set(float64(len(w.queue)))
		return
	default:
	}

	select {
	case <-w.queue:
		QueueEvictionsTotal.Inc()
	default:
	}

	select {
	case w.queue <- event:
		QueueDepth.Set(float64(len(w.queue)))
	default:
		ClosesDroppedTotal.Inc()
		w.logger.Error("writer-queue-full-dropping-close", zap.String("market-id", event.Window.MarketID))
	}
}

// QueueLen reports the writer queue's current depth, for health reporting.
func (w *Writer) QueueLen() int {
	return len(w.queue)
}

// UpsertMarketStats persists an Aggregator rollup directly (outside the
// event queue — the Aggregator runs on its own schedule, not the hot path).
func (w *Writer) UpsertMarketStats(ctx context.Context, stats *types.MarketStats) error {
	return w.backend.UpsertMarketStats(ctx, stats)
}

// UpsertMarket persists a market's catalog metadata directly (outside the
// event queue — admission happens on the Subscription Controller's
// reconcile cadence, not the hot path).
func (w *Writer) UpsertMarket(ctx context.Context, m *types.WatchedMarket) error {
	return w.backend.UpsertMarket(ctx, m)
}

// Close drains in-flight work and closes the backend.
func (w *Writer) Close() error {
	w.logger.Info("closing-persistence-writer")
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	err := w.backend.Close()
	w.logger.Info("persistence-writer-closed")
	return err
}
