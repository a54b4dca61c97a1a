package store

import (
	"testing"

	"github.com/arbscan/spread-scanner/pkg/types"
)

func TestBook_ApplySnapshot_BestLevels(t *testing.T) {
	b := newBook()

	b.applySnapshot(
		[]types.PriceLevel{{Price: "0.54", Size: "150.0"}, {Price: "0.55", Size: "250.0"}},
		[]types.PriceLevel{{Price: "0.52", Size: "100.5"}, {Price: "0.51", Size: "200.0"}},
	)

	bid, ask, hasBid, hasAsk := b.best()
	if !hasBid || !hasAsk {
		t.Fatal("expected both sides hydrated")
	}
	if ask.Float64() != 0.54 {
		t.Errorf("expected best ask 0.54, got %v", ask.Float64())
	}
	if bid.Float64() != 0.52 {
		t.Errorf("expected best bid 0.52, got %v", bid.Float64())
	}
	if ask < bid {
		t.Errorf("invariant violated: best ask %v < best bid %v", ask, bid)
	}
}

func TestBook_ApplySnapshot_ZeroSizeExcluded(t *testing.T) {
	b := newBook()

	b.applySnapshot(
		[]types.PriceLevel{{Price: "0.54", Size: "0"}, {Price: "0.56", Size: "10"}},
		nil,
	)

	_, ask, _, hasAsk := b.best()
	if !hasAsk {
		t.Fatal("expected ask side hydrated from the non-zero level")
	}
	if ask.Float64() != 0.56 {
		t.Errorf("expected best ask 0.56 (zero-size level excluded), got %v", ask.Float64())
	}
}

func TestBook_ApplyChanges_DeletesZeroSize(t *testing.T) {
	b := newBook()
	b.applySnapshot(
		[]types.PriceLevel{{Price: "0.54", Size: "150"}},
		[]types.PriceLevel{{Price: "0.52", Size: "100"}},
	)

	b.applyChanges([]types.PriceLevel{{Price: "0.54", Side: "SELL", Size: "0"}})

	_, _, _, hasAsk := b.best()
	if hasAsk {
		t.Error("expected ask level deleted by a size=0 change")
	}
}

func TestBook_ApplyChanges_SetsNewBestOnImprove(t *testing.T) {
	b := newBook()
	b.applySnapshot(
		[]types.PriceLevel{{Price: "0.54", Size: "150"}},
		[]types.PriceLevel{{Price: "0.52", Size: "100"}},
	)

	b.applyChanges([]types.PriceLevel{{Price: "0.53", Side: "SELL", Size: "20"}})

	_, ask, _, hasAsk := b.best()
	if !hasAsk || ask.Float64() != 0.53 {
		t.Errorf("expected best ask to improve to 0.53, got hasAsk=%v ask=%v", hasAsk, ask.Float64())
	}
}

func TestBook_ApplyChanges_IgnoresUnknownSide(t *testing.T) {
	b := newBook()
	b.applyChanges([]types.PriceLevel{{Price: "0.5", Side: "", Size: "10"}})

	_, _, hasBid, hasAsk := b.best()
	if hasBid || hasAsk {
		t.Error("expected change with no side to be a no-op")
	}
}
