package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arbscan/spread-scanner/pkg/cache"
	"github.com/arbscan/spread-scanner/pkg/types"
	"go.uber.org/zap"
)

func newTestFetcher(t *testing.T, serverURL string) *Fetcher {
	t.Helper()

	logger := zap.NewNop()
	backing, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	c := cache.NewMarketCache(backing)
	t.Cleanup(c.Close)

	return New(&Config{
		Client:       NewClient(serverURL, logger),
		Cache:        c,
		Logger:       logger,
		PollInterval: time.Hour,
		PageLimit:    50,
		MinVolume24h: 1000,
		MinLiquidity: 500,
		MinExpiry:    0,
		MaxExpiry:    30 * 24 * time.Hour,
	})
}

func marketJSON(id, slug string, volume, liquidity float64, endDate time.Time) map[string]any {
	return map[string]any{
		"id":           id,
		"slug":         slug,
		"question":     "Will " + slug + " happen?",
		"closed":       false,
		"active":       true,
		"endDate":      endDate.Format(time.RFC3339),
		"volume24hr":   volume,
		"liquidityNum": liquidity,
		"outcomes":     `["Yes","No"]`,
		"clobTokenIds": `["tok-yes-` + id + `","tok-no-` + id + `"]`,
	}
}

func TestFetcher_AdmitsQualifyingMarkets(t *testing.T) {
	soon := time.Now().Add(7 * 24 * time.Hour)
	markets := []map[string]any{
		marketJSON("m1", "market-1", 5000, 1000, soon),
		marketJSON("m2", "market-2", 10, 1000, soon),     // below min volume
		marketJSON("m3", "market-3", 5000, 10, soon),     // below min liquidity
		marketJSON("m4", "market-4", 5000, 1000, time.Now().Add(-time.Hour)), // expired
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(markets)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	f.poll(context.Background())

	desired := f.DesiredSet()
	if len(desired) != 1 {
		t.Fatalf("expected 1 admitted market, got %d: %+v", len(desired), desired)
	}
	if _, ok := desired["m1"]; !ok {
		t.Errorf("expected market m1 to be admitted")
	}
}

func TestFetcher_FailsSoftOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL)
	f.desiredSet = map[string]types.Market{"prev": {ID: "prev"}}

	f.poll(context.Background())

	desired := f.DesiredSet()
	if len(desired) != 1 {
		t.Fatalf("expected previous desired set retained, got %+v", desired)
	}
	if _, ok := desired["prev"]; !ok {
		t.Errorf("expected previous market 'prev' retained after transport error")
	}
}

func TestFetcher_RejectsUnresolvedTokens(t *testing.T) {
	f := newTestFetcher(t, "http://unused")

	m := types.Market{
		ID:         "m1",
		Volume24hr: 5000,
		Liquidity:  1000,
		EndDate:    time.Now().Add(time.Hour),
	}

	if f.admit(m) {
		t.Error("expected market with unresolved tokens to be rejected")
	}
}
