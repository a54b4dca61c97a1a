package detector

import "github.com/arbscan/spread-scanner/pkg/fixedpoint"

// state is a market's position in §4.4's window state machine.
type state int

const (
	stateIdle state = iota
	statePending
	stateOpen
)

// window tracks one market's in-flight spread window across ticks.
type window struct {
	state state

	tickCount   int
	firstSeenNs int64
	lastSeenNs  int64

	openYesAsk   fixedpoint.Price
	openNoAsk    fixedpoint.Price
	openCombined fixedpoint.Price

	prevYesAsk fixedpoint.Price
	prevNoAsk  fixedpoint.Price

	tradeEventFired   bool
	volumeChangeTicks int
	priceShiftTicks   int

	lastCombined fixedpoint.Price
}
