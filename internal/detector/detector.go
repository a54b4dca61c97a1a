// Package detector implements the Spread Detector (C4) — the hardest
// component. It owns a private price cache updated strictly in Price
// Message arrival order, runs the §4.4 window state machine per market,
// and emits Open/Close events to the Window Consumer.
package detector

import (
	"context"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/arbscan/spread-scanner/internal/classifier"
	"github.com/arbscan/spread-scanner/internal/store"
	"github.com/arbscan/spread-scanner/pkg/fixedpoint"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

// Config holds Spread Detector configuration.
type Config struct {
	MaxCombined float64 // is_arb iff combined < MaxCombined, strictly
	MinArbTicks int
	EventBuffer int
	Logger      *zap.Logger
}

type cacheEntry struct {
	ask fixedpoint.Price
	bid fixedpoint.Price
}

type marketObservations struct {
	pendingStarted   int
	discardedPending int
}

// Detector is the Spread Detector (§4.4).
type Detector struct {
	store  *store.Store
	config Config
	logger *zap.Logger

	priceCh <-chan *types.PriceMessage
	eventCh chan *types.WindowEvent

	cacheMu sync.Mutex // private cache; only the detection goroutine touches it
	cache   map[string]cacheEntry

	windowsMu sync.Mutex
	windows   map[string]*window // market id -> in-flight window

	obsMu sync.Mutex
	// observations tracks, per market, how many Pending windows were ever
	// started and how many of those were discarded as single-tick
	// glitches rather than reaching Open. The Aggregator (§4.9) divides
	// these to derive noise_ratio — discarded windows are never
	// persisted, so this in-memory tally is their only record.
	observations map[string]*marketObservations

	maxCombined fixedpoint.Price

	latency *hdrhistogram.Histogram

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Spread Detector reading Price Messages from priceCh.
func New(cfg Config, st *store.Store, priceCh <-chan *types.PriceMessage) *Detector {
	return &Detector{
		store:       st,
		config:      cfg,
		logger:      cfg.Logger,
		priceCh:     priceCh,
		eventCh:     make(chan *types.WindowEvent, cfg.EventBuffer),
		cache:        make(map[string]cacheEntry),
		windows:      make(map[string]*window),
		observations: make(map[string]*marketObservations),
		maxCombined:  fixedpoint.Price(cfg.MaxCombined * fixedpoint.Scale),
		latency:     hdrhistogram.New(1, 10_000_000, 3), // microseconds, up to 10s
	}
}

// Start begins draining Price Messages.
func (d *Detector) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.logger.Info("spread-detector-starting",
		zap.Float64("max-combined", d.config.MaxCombined),
		zap.Int("min-arb-ticks", d.config.MinArbTicks))

	d.wg.Add(1)
	go d.run()

	return nil
}

func (d *Detector) run() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			close(d.eventCh)
			return
		case msg, ok := <-d.priceCh:
			if !ok {
				close(d.eventCh)
				return
			}
			d.onPriceMessage(msg)
		}
	}
}

// onPriceMessage runs the §4.4 per-tick procedure for one token update.
func (d *Detector) onPriceMessage(msg *types.PriceMessage) {
	// Step 1: update private cache, strictly in arrival order (this
	// goroutine is the only writer).
	d.cacheMu.Lock()
	d.cache[msg.TokenID] = cacheEntry{ask: msg.BestAsk, bid: msg.BestBid}
	d.cacheMu.Unlock()

	// Step 2: resolve market.
	marketID, yesToken, noToken, ok := d.store.GetMarketForToken(msg.TokenID)
	if !ok {
		return
	}

	// Step 3: read yes_ask/no_ask from the private cache.
	d.cacheMu.Lock()
	yesEntry, hasYes := d.cache[yesToken]
	noEntry, hasNo := d.cache[noToken]
	d.cacheMu.Unlock()
	if !hasYes || !hasNo {
		return
	}
	yesAsk, noAsk := yesEntry.ask, noEntry.ask

	// Step 4: compute combined/spread/is_arb.
	combined := yesAsk.Add(noAsk)
	isArb := combined < d.maxCombined

	// Step 5: record latency.
	elapsedUs := time.Since(msg.ReceivedAt).Microseconds()
	if elapsedUs > 0 {
		_ = d.latency.RecordValue(elapsedUs)
	}
	DetectionLatencySeconds.Observe(time.Since(msg.ReceivedAt).Seconds())

	// Step 6: advance the state machine.
	d.advance(marketID, yesAsk, noAsk, combined, isArb, msg, elapsedUs)
}

func (d *Detector) advance(marketID string, yesAsk, noAsk, combined fixedpoint.Price, isArb bool, msg *types.PriceMessage, elapsedUs int64) {
	now := time.Now().UnixNano()

	d.windowsMu.Lock()
	w, exists := d.windows[marketID]

	switch {
	case !exists && isArb:
		w = &window{
			state:        statePending,
			tickCount:    1,
			firstSeenNs:  now,
			lastSeenNs:   now,
			openYesAsk:   yesAsk,
			openNoAsk:    noAsk,
			openCombined: combined,
			prevYesAsk:   yesAsk,
			prevNoAsk:    noAsk,
			lastCombined: combined,
		}
		d.windows[marketID] = w
		d.windowsMu.Unlock()
		d.recordPendingStarted(marketID)
		WindowsOpenedTotal.WithLabelValues("pending").Inc()
		return

	case !exists && !isArb:
		d.windowsMu.Unlock()
		return

	case w.state == statePending && isArb:
		w.tickCount++
		updateObservables(w, yesAsk, noAsk, msg)
		w.lastSeenNs = now
		w.lastCombined = combined

		if w.tickCount >= d.config.MinArbTicks {
			w.state = stateOpen
			d.windowsMu.Unlock()
			d.emitOpen(marketID, w)
			WindowsOpenedTotal.WithLabelValues("open").Inc()
			return
		}
		d.windowsMu.Unlock()
		return

	case w.state == statePending && !isArb:
		// Single-tick glitch: discard silently (§4.4).
		delete(d.windows, marketID)
		d.windowsMu.Unlock()
		d.recordPendingDiscarded(marketID)
		return

	case w.state == stateOpen && isArb:
		w.tickCount++
		updateObservables(w, yesAsk, noAsk, msg)
		w.lastSeenNs = now
		w.lastCombined = combined
		d.windowsMu.Unlock()
		return

	case w.state == stateOpen && !isArb:
		delete(d.windows, marketID)
		d.windowsMu.Unlock()
		d.emitClose(marketID, w, yesAsk, noAsk, combined, now, elapsedUs)
		return

	default:
		d.windowsMu.Unlock()
		return
	}
}

func updateObservables(w *window, yesAsk, noAsk fixedpoint.Price, msg *types.PriceMessage) {
	if msg.TradeFired {
		w.tradeEventFired = true
	}
	if msg.VolumeChanged {
		w.volumeChangeTicks++
	}
	if yesAsk != w.prevYesAsk || noAsk != w.prevNoAsk {
		w.priceShiftTicks++
	}
	w.prevYesAsk = yesAsk
	w.prevNoAsk = noAsk
}

func (d *Detector) emitOpen(marketID string, w *window) {
	openSpread := 1.0 - w.openCombined.Float64()

	event := &types.WindowEvent{
		Kind: types.WindowOpened,
		Window: &types.ClosedWindow{
			MarketID:     marketID,
			OpenedAtNs:   w.firstSeenNs,
			OpenYesAsk:   w.openYesAsk,
			OpenNoAsk:    w.openNoAsk,
			OpenCombined: w.openCombined,
			OpenSpread:   openSpread,
			SpreadCategory: types.ClassifySpread(openSpread),
		},
	}

	d.send(event)
}

func (d *Detector) emitClose(marketID string, w *window, yesAsk, noAsk, combined fixedpoint.Price, closedAtNs int64, elapsedUs int64) {
	closeSpread := 1.0 - combined.Float64()
	openSpread := 1.0 - w.openCombined.Float64()

	labels := classifier.Classify(classifier.Observables{
		TradeEventFired:   w.tradeEventFired,
		VolumeChangeTicks: w.volumeChangeTicks,
		PriceShiftTicks:   w.priceShiftTicks,
	})

	event := &types.WindowEvent{
		Kind: types.WindowClosed,
		Window: &types.ClosedWindow{
			MarketID:      marketID,
			OpenedAtNs:    w.firstSeenNs,
			ClosedAtNs:    closedAtNs,
			OpenYesAsk:    w.openYesAsk,
			OpenNoAsk:     w.openNoAsk,
			OpenCombined:  w.openCombined,
			OpenSpread:    openSpread,
			CloseYesAsk:   yesAsk,
			CloseNoAsk:    noAsk,
			CloseCombined: combined,
			CloseSpread:   closeSpread,

			SpreadCategory:    types.ClassifySpread(closeSpread),
			OpenDurationClass: labels.OpenDurationClass,
			CloseReason:       labels.CloseReason,
			OpportunityClass:  labels.OpportunityClass,

			TickCount:          w.tickCount,
			TradeEventFired:    w.tradeEventFired,
			VolumeChangeTicks:  w.volumeChangeTicks,
			PriceShiftTicks:    w.priceShiftTicks,
			DetectionLatencyUs: elapsedUs,
		},
	}

	d.send(event)
}

func (d *Detector) send(event *types.WindowEvent) {
	select {
	case d.eventCh <- event:
	default:
		d.logger.Warn("window-event-channel-full", zap.String("market-id", event.Window.MarketID))
		EventsDroppedTotal.Inc()
	}
}

// RemoveMarket synthesizes a Close event for any in-flight Open window on a
// market that the Subscription Controller is about to remove (§4.4
// "Removal during Open").
func (d *Detector) RemoveMarket(marketID string) {
	d.windowsMu.Lock()
	w, exists := d.windows[marketID]
	if !exists || w.state != stateOpen {
		delete(d.windows, marketID)
		d.windowsMu.Unlock()
		return
	}
	delete(d.windows, marketID)
	d.windowsMu.Unlock()

	d.emitClose(marketID, w, w.prevYesAsk, w.prevNoAsk, w.lastCombined, time.Now().UnixNano(), 0)
}

// Events returns the Detector's Open/Close event stream for the Window
// Consumer.
func (d *Detector) Events() <-chan *types.WindowEvent {
	return d.eventCh
}

// LatencySnapshot returns the current p50/p95/p99 detection latency in
// microseconds, for the health endpoint (§6).
func (d *Detector) LatencySnapshot() (p50, p95, p99 int64) {
	return d.latency.ValueAtQuantile(50), d.latency.ValueAtQuantile(95), d.latency.ValueAtQuantile(99)
}

// OpenWindowCount reports how many markets currently have an Open window.
func (d *Detector) OpenWindowCount() int {
	d.windowsMu.Lock()
	defer d.windowsMu.Unlock()

	n := 0
	for _, w := range d.windows {
		if w.state == stateOpen {
			n++
		}
	}
	return n
}

func (d *Detector) recordPendingStarted(marketID string) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	o, ok := d.observations[marketID]
	if !ok {
		o = &marketObservations{}
		d.observations[marketID] = o
	}
	o.pendingStarted++
}

func (d *Detector) recordPendingDiscarded(marketID string) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	o, ok := d.observations[marketID]
	if !ok {
		o = &marketObservations{}
		d.observations[marketID] = o
	}
	o.discardedPending++
}

// ObservationStats reports, for one market, how many Pending windows were
// ever started and how many were discarded as single-tick glitches. The
// Aggregator (§4.9) uses these to compute noise_ratio.
func (d *Detector) ObservationStats(marketID string) (pendingStarted, discardedPending int) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	o, ok := d.observations[marketID]
	if !ok {
		return 0, 0
	}
	return o.pendingStarted, o.discardedPending
}

// Close stops the detection loop.
func (d *Detector) Close() error {
	d.logger.Info("closing-spread-detector")
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info("spread-detector-closed")
	return nil
}
