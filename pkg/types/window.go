package types

import (
	"time"

	"github.com/arbscan/spread-scanner/pkg/fixedpoint"
)

// PriceMessage is the Feed Connector's output to the Spread Detector (§3).
// ReceivedAt is captured at the earliest point the frame enters the process
// and travels with the message for the lifetime of the tick so detection
// latency can be measured end to end.
type PriceMessage struct {
	TokenID       string
	BestAsk       fixedpoint.Price
	BestBid       fixedpoint.Price
	ReceivedAt    time.Time
	TradeFired    bool
	VolumeChanged bool
}

// SpreadCategory buckets a window's spread for reporting (§6).
type SpreadCategory string

const (
	SpreadNoise  SpreadCategory = "noise"
	SpreadSmall  SpreadCategory = "small"
	SpreadMedium SpreadCategory = "medium"
	SpreadLarge  SpreadCategory = "large"
)

// ClassifySpread buckets a spread value into a SpreadCategory per §6.
func ClassifySpread(spread float64) SpreadCategory {
	switch {
	case spread < 0.02:
		return SpreadNoise
	case spread < 0.05:
		return SpreadSmall
	case spread < 0.10:
		return SpreadMedium
	default:
		return SpreadLarge
	}
}

// OpenDurationClass is §4.5's open_duration_class label.
type OpenDurationClass string

const (
	DurationSingleTick OpenDurationClass = "single_tick"
	DurationMultiTick  OpenDurationClass = "multi_tick"
)

// CloseReason is §4.5's close_reason label, defined only for multi_tick
// windows.
type CloseReason string

const (
	CloseReasonNone                CloseReason = ""
	CloseReasonVolumeSpikeGradual  CloseReason = "volume_spike_gradual"
	CloseReasonVolumeSpikeInstant  CloseReason = "volume_spike_instant"
	CloseReasonPriceDrift          CloseReason = "price_drift"
	CloseReasonOrderVanished       CloseReason = "order_vanished"
)

// OpportunityClass is §4.5's four-level priority taxonomy. 0 means "noise"
// (never emitted/persisted); only 1-4 are surfaced.
type OpportunityClass int

const (
	OpportunityNoise OpportunityClass = iota
	OpportunityBest
	OpportunityGood
	OpportunityFastRequired
	OpportunityLowValue
)

// ClosedWindow is the persisted record for one detected arbitrage window
// (§3). ClosedAtNs is zero while the window is still open (closed_at IS
// NULL in the persistence layer).
type ClosedWindow struct {
	MarketID      string
	OpenedAtNs    int64
	ClosedAtNs    int64 // 0 while still open
	OpenYesAsk    fixedpoint.Price
	OpenNoAsk     fixedpoint.Price
	OpenCombined  fixedpoint.Price
	OpenSpread    float64
	CloseYesAsk   fixedpoint.Price
	CloseNoAsk    fixedpoint.Price
	CloseCombined fixedpoint.Price
	CloseSpread   float64

	SpreadCategory    SpreadCategory
	OpenDurationClass OpenDurationClass
	CloseReason       CloseReason
	OpportunityClass  OpportunityClass

	TickCount           int
	TradeEventFired     bool
	VolumeChangeTicks   int
	PriceShiftTicks     int
	DetectionLatencyUs  int64
}

// WindowEventKind distinguishes the two persistence operations the
// Detector drives (§4.7): an Open insert and a Close update-or-insert.
type WindowEventKind string

const (
	WindowOpened WindowEventKind = "open"
	WindowClosed WindowEventKind = "close"
)

// WindowEvent is what the Detector (C4) emits to the Window Consumer (C6).
// For a WindowOpened event only the Open* fields and MarketID/OpenedAtNs are
// populated; the rest fill in as the window closes.
type WindowEvent struct {
	Kind   WindowEventKind
	Window *ClosedWindow
}

// DurationMs is (closed_at - opened_at) / 1e6, zero while still open.
func (w *ClosedWindow) DurationMs() int64 {
	if w.ClosedAtNs == 0 {
		return 0
	}
	return (w.ClosedAtNs - w.OpenedAtNs) / 1_000_000
}

// MarketStats is the Aggregator's (C9) rolling per-market output (§4.9).
// Slug/Question/Category/EndDate are joined in from the markets table
// (§4.1, §4.8) so the query surface can label a market without callers
// having to cross-reference the Catalog Fetcher's in-memory cache.
type MarketStats struct {
	MarketID       string
	Slug           string
	Question       string
	Category       string
	EndDate        time.Time
	WindowCount    int
	CountByClass   map[OpportunityClass]int
	AvgDurationMs  float64
	AvgSpread      float64
	MaxSpread      float64
	NoiseRatio     float64
	CompositeScore float64
	ComputedAt     time.Time
}
