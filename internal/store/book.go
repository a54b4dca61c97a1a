package store

import (
	"sync"

	"github.com/arbscan/spread-scanner/pkg/fixedpoint"
	"github.com/arbscan/spread-scanner/pkg/types"
)

// book holds one token's order book and caches its best bid/ask. Each book
// carries its own mutex so that C3 (writer) and C4 (reader of cached bests)
// never contend on a lock shared across tokens (§4.2).
type book struct {
	mu sync.RWMutex

	asks map[fixedpoint.Price]float64
	bids map[fixedpoint.Price]float64

	bestAsk     fixedpoint.Price
	bestAskSize float64
	hasAsk      bool

	bestBid     fixedpoint.Price
	bestBidSize float64
	hasBid      bool
}

func newBook() *book {
	return &book{
		asks: make(map[fixedpoint.Price]float64),
		bids: make(map[fixedpoint.Price]float64),
	}
}

// applySnapshot replaces the book's sides with non-zero entries (§4.2).
func (b *book) applySnapshot(asks, bids []types.PriceLevel) {
	newAsks := make(map[fixedpoint.Price]float64, len(asks))
	for _, lvl := range asks {
		price, err := fixedpoint.ParsePrice(lvl.Price)
		if err != nil {
			continue
		}
		size, err := fixedpoint.ParseSize(lvl.Size)
		if err != nil || size <= 0 {
			continue
		}
		newAsks[price] = size
	}

	newBids := make(map[fixedpoint.Price]float64, len(bids))
	for _, lvl := range bids {
		price, err := fixedpoint.ParsePrice(lvl.Price)
		if err != nil {
			continue
		}
		size, err := fixedpoint.ParseSize(lvl.Size)
		if err != nil || size <= 0 {
			continue
		}
		newBids[price] = size
	}

	b.mu.Lock()
	b.asks = newAsks
	b.bids = newBids
	b.recomputeBestLocked()
	b.mu.Unlock()
}

// applyChanges applies incremental (price, side, size) deltas: size>0 sets
// the level, size==0 deletes it (§4.2).
func (b *book) applyChanges(changes []types.PriceLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range changes {
		price, err := fixedpoint.ParsePrice(c.Price)
		if err != nil {
			continue
		}
		size, err := fixedpoint.ParseSize(c.Size)
		if err != nil {
			continue
		}

		side := b.sideMap(c.Side)
		if side == nil {
			continue
		}

		if size <= 0 {
			delete(side, price)
		} else {
			side[price] = size
		}
	}

	b.recomputeBestLocked()
}

func (b *book) sideMap(side string) map[fixedpoint.Price]float64 {
	switch side {
	case "BUY":
		return b.bids
	case "SELL":
		return b.asks
	default:
		return nil
	}
}

// recomputeBestLocked scans both sides for the best bid/ask. Caller holds
// b.mu for writing. Books carry at most a handful of live levels in this
// scanner's target markets, so a linear scan is cheaper than keeping a
// sorted structure in sync on every delta.
func (b *book) recomputeBestLocked() {
	b.hasAsk = false
	for price := range b.asks {
		if !b.hasAsk || price < b.bestAsk {
			b.bestAsk = price
			b.bestAskSize = b.asks[price]
			b.hasAsk = true
		}
	}

	b.hasBid = false
	for price := range b.bids {
		if !b.hasBid || price > b.bestBid {
			b.bestBid = price
			b.bestBidSize = b.bids[price]
			b.hasBid = true
		}
	}
}

func (b *book) best() (bid, ask fixedpoint.Price, hasBid, hasAsk bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bestBid, b.bestAsk, b.hasBid, b.hasAsk
}
