// Package classifier implements the Classifier (C5): a pure, deterministic
// function from window observables to the three labels §4.5 defines. It has
// no state and no side effects — identical observables always yield
// identical labels.
package classifier

import "github.com/arbscan/spread-scanner/pkg/types"

// Observables is the set of per-window facts the Detector accumulated over
// the window's lifetime (§4.4's "observable updates on every continuation
// tick").
type Observables struct {
	TradeEventFired   bool
	VolumeChangeTicks int
	PriceShiftTicks   int
}

// Labels is the Classifier's output (§4.5).
type Labels struct {
	OpenDurationClass types.OpenDurationClass
	CloseReason       types.CloseReason
	OpportunityClass  types.OpportunityClass
}

// Classify maps a closed window's observables to its labels. Every window
// passed in here has already reached Open (§4.4's state machine discards
// Pending-only windows silently), so open_duration_class is always
// multi_tick.
func Classify(obs Observables) Labels {
	reason := closeReason(obs)

	return Labels{
		OpenDurationClass: types.DurationMultiTick,
		CloseReason:       reason,
		OpportunityClass:  opportunityClass(reason),
	}
}

func closeReason(obs Observables) types.CloseReason {
	switch {
	case obs.TradeEventFired && obs.VolumeChangeTicks > 1:
		return types.CloseReasonVolumeSpikeGradual
	case obs.TradeEventFired && obs.VolumeChangeTicks == 1:
		return types.CloseReasonVolumeSpikeInstant
	case !obs.TradeEventFired && obs.PriceShiftTicks > 0:
		return types.CloseReasonPriceDrift
	default:
		return types.CloseReasonOrderVanished
	}
}

func opportunityClass(reason types.CloseReason) types.OpportunityClass {
	switch reason {
	case types.CloseReasonVolumeSpikeGradual:
		return types.OpportunityBest
	case types.CloseReasonPriceDrift:
		return types.OpportunityGood
	case types.CloseReasonVolumeSpikeInstant:
		return types.OpportunityFastRequired
	default:
		return types.OpportunityLowValue
	}
}
