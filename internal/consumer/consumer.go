// Package consumer implements the Window Consumer (C6): it drains the
// Spread Detector's Open/Close event stream, forwards every event to the
// Persistence Writer, and broadcasts best-effort to live subscribers
// (e.g. the HTTP live-event stream) without backpressuring the Detector.
package consumer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Writer is the subset of the Persistence Writer the Consumer drives.
type Writer interface {
	EnqueueOpen(event *types.WindowEvent)
	EnqueueClose(event *types.WindowEvent)
}

// Consumer is the Window Consumer (§4.6).
type Consumer struct {
	eventCh <-chan *types.WindowEvent
	writer  Writer
	logger  *zap.Logger

	subsMu sync.Mutex
	subs   map[chan *types.WindowEvent]struct{}

	// writerQueueTotal is monotonically non-decreasing: it counts every
	// event ever forwarded to the writer (§4.6). The health endpoint's
	// pending-writes figure does not read it; that comes from the writer's
	// own queue length.
	writerQueueTotal atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Window Consumer.
func New(eventCh <-chan *types.WindowEvent, writer Writer, logger *zap.Logger) *Consumer {
	return &Consumer{
		eventCh: eventCh,
		writer:  writer,
		logger:  logger,
		subs:    make(map[chan *types.WindowEvent]struct{}),
	}
}

// Start begins draining the Detector's event stream.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("window-consumer-starting")

	c.wg.Add(1)
	go c.run()

	return nil
}

func (c *Consumer) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.handle(event)
		}
	}
}

func (c *Consumer) handle(event *types.WindowEvent) {
	switch event.Kind {
	case types.WindowOpened:
		c.writer.EnqueueOpen(event)
		EventsConsumedTotal.WithLabelValues("open").Inc()
	case types.WindowClosed:
		c.writer.EnqueueClose(event)
		EventsConsumedTotal.WithLabelValues("close").Inc()
	}
	c.writerQueueTotal.Add(1)

	c.broadcast(event)
}

// broadcast fans an event out to every live subscriber. Slow subscribers
// are dropped without blocking the Detector's producer (§4.6).
func (c *Consumer) broadcast(event *types.WindowEvent) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	for ch := range c.subs {
		select {
		case ch <- event:
		default:
			SubscriberDropsTotal.Inc()
		}
	}
}

// Subscribe registers a live event subscriber (e.g. a websocket client).
// The returned channel must be drained by the caller; Unsubscribe removes
// it.
func (c *Consumer) Subscribe() chan *types.WindowEvent {
	ch := make(chan *types.WindowEvent, 64)

	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()

	SubscribersGauge.Set(float64(c.subscriberCount()))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Consumer) Unsubscribe(ch chan *types.WindowEvent) {
	c.subsMu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.subsMu.Unlock()

	SubscribersGauge.Set(float64(c.subscriberCount()))
}

func (c *Consumer) subscriberCount() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

// WriterQueueTotal reports the cumulative count of events forwarded to the
// Persistence Writer (§4.6). The health endpoint does not use it.
func (c *Consumer) WriterQueueTotal() int64 {
	return c.writerQueueTotal.Load()
}

// Close stops the consumer loop.
func (c *Consumer) Close() error {
	c.logger.Info("closing-window-consumer")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.subsMu.Lock()
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
	c.subsMu.Unlock()

	c.logger.Info("window-consumer-closed")
	return nil
}
