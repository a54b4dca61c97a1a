package cache

import (
	"time"

	"github.com/arbscan/spread-scanner/pkg/types"
)

// Cache is the interface for caching arbitrary keyed values.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns (value, true) if found, (nil, false) if not found.
	Get(key string) (interface{}, bool)

	// Set stores a value in the cache with a TTL.
	Set(key string, value interface{}, ttl time.Duration) bool

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()

	// Close closes the cache and releases resources.
	Close()
}

// MarketCache narrows Cache to the Catalog Fetcher's one use of it: caching
// admitted market descriptors (§4.1, §4.2) so a restart-free lookup never
// needs its own interface{} type assertion.
type MarketCache interface {
	GetMarket(marketID string) (*types.Market, bool)
	SetMarket(m *types.Market, ttl time.Duration) bool
	Delete(key string)
	Clear()
	Close()
}

// marketCache adapts a generic Cache to MarketCache, keyed by market ID.
type marketCache struct {
	Cache
}

// NewMarketCache wraps an existing Cache so callers work with
// *types.Market directly instead of interface{}.
func NewMarketCache(c Cache) MarketCache {
	return &marketCache{Cache: c}
}

func (m *marketCache) GetMarket(marketID string) (*types.Market, bool) {
	value, found := m.Cache.Get(marketID)
	if !found {
		return nil, false
	}
	market, ok := value.(*types.Market)
	if !ok {
		return nil, false
	}
	return market, true
}

func (m *marketCache) SetMarket(market *types.Market, ttl time.Duration) bool {
	return m.Cache.Set(market.ID, market, ttl)
}
