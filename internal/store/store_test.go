package store

import (
	"testing"
	"time"

	"github.com/arbscan/spread-scanner/pkg/types"
)

func testMarket() *types.WatchedMarket {
	return &types.WatchedMarket{
		MarketID:     "m1",
		Slug:         "market-1",
		YesTokenID:   "yes-1",
		NoTokenID:    "no-1",
		SubscribedAt: time.Now(),
	}
}

func TestStore_InsertAndGetMarketForToken(t *testing.T) {
	s := New()
	s.InsertMarket(testMarket(), false)

	marketID, yesTok, noTok, ok := s.GetMarketForToken("yes-1")
	if !ok {
		t.Fatal("expected token resolved to market")
	}
	if marketID != "m1" || yesTok != "yes-1" || noTok != "no-1" {
		t.Errorf("unexpected resolution: %s %s %s", marketID, yesTok, noTok)
	}
}

func TestStore_RemoveMarket_ClearsReverseMapAndBooks(t *testing.T) {
	s := New()
	s.InsertMarket(testMarket(), false)

	removed, ok := s.RemoveMarket("m1")
	if !ok || removed.MarketID != "m1" {
		t.Fatal("expected market removed")
	}

	if _, _, _, ok := s.GetMarketForToken("yes-1"); ok {
		t.Error("expected token no longer resolvable after removal")
	}
	if _, ok := s.BestAsk("yes-1"); ok {
		t.Error("expected no book for removed token")
	}
}

func TestStore_GetSpreadInputs_NotReadyUntilBothSidesHydrated(t *testing.T) {
	s := New()
	s.InsertMarket(testMarket(), false)

	if _, ok := s.GetSpreadInputs("yes-1"); ok {
		t.Error("expected not-ready before any book data")
	}

	s.ApplyBookSnapshot("yes-1", []types.PriceLevel{{Price: "0.45", Size: "10"}}, []types.PriceLevel{{Price: "0.44", Size: "10"}})
	if _, ok := s.GetSpreadInputs("yes-1"); ok {
		t.Error("expected not-ready with only one token hydrated")
	}

	s.ApplyBookSnapshot("no-1", []types.PriceLevel{{Price: "0.49", Size: "10"}}, []types.PriceLevel{{Price: "0.48", Size: "10"}})

	inputs, ok := s.GetSpreadInputs("yes-1")
	if !ok {
		t.Fatal("expected ready once both tokens hydrated")
	}
	if inputs.YesAsk.Float64() != 0.45 || inputs.NoAsk.Float64() != 0.49 {
		t.Errorf("unexpected spread inputs: %+v", inputs)
	}
}

func TestStore_PinUnpin(t *testing.T) {
	s := New()
	s.InsertMarket(testMarket(), false)

	if s.IsPinned("m1") {
		t.Error("expected not pinned initially")
	}
	s.Pin("m1")
	if !s.IsPinned("m1") {
		t.Error("expected pinned after Pin")
	}
	s.Unpin("m1")
	if s.IsPinned("m1") {
		t.Error("expected not pinned after Unpin")
	}
}

func TestStore_Hydrated_CountsTwoSidedBooks(t *testing.T) {
	s := New()
	s.InsertMarket(testMarket(), false)

	if s.Hydrated() != 0 {
		t.Errorf("expected 0 hydrated tokens, got %d", s.Hydrated())
	}

	s.ApplyBookSnapshot("yes-1", []types.PriceLevel{{Price: "0.45", Size: "10"}}, []types.PriceLevel{{Price: "0.44", Size: "10"}})

	if s.Hydrated() != 1 {
		t.Errorf("expected 1 hydrated token, got %d", s.Hydrated())
	}
}
