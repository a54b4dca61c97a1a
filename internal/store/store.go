// Package store implements the Market Store (C2): the concurrent directory
// of watched markets, their token-level order books, and the pinned set.
package store

import (
	"sync"

	"github.com/arbscan/spread-scanner/pkg/fixedpoint"
	"github.com/arbscan/spread-scanner/pkg/types"
)

type tokenRef struct {
	marketID string
	isYes    bool
}

// Store is the Market Store (§4.2). Markets/reverse-map/pinned-set
// membership is guarded by a single RWMutex since those change only on
// subscribe/unsubscribe; each token's book carries its own lock for its
// levels. The books map has its own RWMutex, and the per-tick paths
// (ApplyBookChanges, GetSpreadInputs) do take these store-wide locks, for
// reading only, so a subscribe/unsubscribe holding a write lock blocks them.
type Store struct {
	mu            sync.RWMutex
	markets       map[string]*types.WatchedMarket // market id -> market
	tokenToMarket map[string]tokenRef             // token id -> market ref
	pinned        map[string]bool                 // market id -> pinned

	booksMu sync.RWMutex
	books   map[string]*book // token id -> book
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		markets:       make(map[string]*types.WatchedMarket),
		tokenToMarket: make(map[string]tokenRef),
		pinned:        make(map[string]bool),
		books:         make(map[string]*book),
	}
}

// InsertMarket adds a market and wires its reverse-map entries and fresh,
// empty books for both tokens. Safe to call again for an already-present
// market id: it refreshes the descriptor without touching existing books.
func (s *Store) InsertMarket(m *types.WatchedMarket, pinned bool) {
	s.mu.Lock()
	s.markets[m.MarketID] = m
	s.tokenToMarket[m.YesTokenID] = tokenRef{marketID: m.MarketID, isYes: true}
	s.tokenToMarket[m.NoTokenID] = tokenRef{marketID: m.MarketID, isYes: false}
	if pinned {
		s.pinned[m.MarketID] = true
	}
	s.mu.Unlock()

	s.booksMu.Lock()
	if _, ok := s.books[m.YesTokenID]; !ok {
		s.books[m.YesTokenID] = newBook()
	}
	if _, ok := s.books[m.NoTokenID]; !ok {
		s.books[m.NoTokenID] = newBook()
	}
	s.booksMu.Unlock()

	MarketsTracked.Set(float64(s.MarketCount()))
}

// RemoveMarket removes a market, its reverse-map entries, its books, and
// its pinned flag, returning the removed descriptor if present.
func (s *Store) RemoveMarket(marketID string) (*types.WatchedMarket, bool) {
	s.mu.Lock()
	m, ok := s.markets[marketID]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	delete(s.markets, marketID)
	delete(s.tokenToMarket, m.YesTokenID)
	delete(s.tokenToMarket, m.NoTokenID)
	delete(s.pinned, marketID)
	s.mu.Unlock()

	s.booksMu.Lock()
	delete(s.books, m.YesTokenID)
	delete(s.books, m.NoTokenID)
	s.booksMu.Unlock()

	MarketsTracked.Set(float64(s.MarketCount()))

	return m, true
}

// MarketByID returns the watched market descriptor for marketID.
func (s *Store) MarketByID(marketID string) (*types.WatchedMarket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[marketID]
	return m, ok
}

// AllMarkets returns a snapshot of every currently-watched market.
func (s *Store) AllMarkets() []*types.WatchedMarket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.WatchedMarket, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out
}

// Pin marks a market as exempt from automatic removal (§4.8).
func (s *Store) Pin(marketID string) {
	s.mu.Lock()
	s.pinned[marketID] = true
	s.mu.Unlock()
}

// Unpin clears a market's pinned flag.
func (s *Store) Unpin(marketID string) {
	s.mu.Lock()
	delete(s.pinned, marketID)
	s.mu.Unlock()
}

// IsPinned reports whether marketID is currently pinned.
func (s *Store) IsPinned(marketID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pinned[marketID]
}

// getBook returns the book for a token, or nil if the token isn't watched.
func (s *Store) getBook(token string) *book {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()
	return s.books[token]
}

// ApplyBookSnapshot replaces a token's book with the given non-zero levels.
func (s *Store) ApplyBookSnapshot(token string, asks, bids []types.PriceLevel) {
	b := s.getBook(token)
	if b == nil {
		return
	}
	b.applySnapshot(asks, bids)
	BookUpdatesTotal.WithLabelValues("snapshot").Inc()
	TokensHydrated.Set(float64(s.Hydrated()))
}

// ApplyBookChanges applies incremental deltas to a token's book.
func (s *Store) ApplyBookChanges(token string, changes []types.PriceLevel) {
	b := s.getBook(token)
	if b == nil {
		return
	}
	b.applyChanges(changes)
	BookUpdatesTotal.WithLabelValues("changes").Inc()
	TokensHydrated.Set(float64(s.Hydrated()))
}

// BestAsk returns the token's best ask price.
func (s *Store) BestAsk(token string) (fixedpoint.Price, bool) {
	b := s.getBook(token)
	if b == nil {
		return 0, false
	}
	_, ask, _, hasAsk := b.best()
	return ask, hasAsk
}

// BestBid returns the token's best bid price.
func (s *Store) BestBid(token string) (fixedpoint.Price, bool) {
	b := s.getBook(token)
	if b == nil {
		return 0, false
	}
	bid, _, hasBid, _ := b.best()
	return bid, hasBid
}

// SpreadInputs is a snapshot (§4.2 get_spread_inputs) of one market's best
// asks and bids on both tokens.
type SpreadInputs struct {
	MarketID string
	YesAsk   fixedpoint.Price
	NoAsk    fixedpoint.Price
	YesBid   fixedpoint.Price
	NoBid    fixedpoint.Price
}

// GetSpreadInputs returns the market's current best ask/bid on both tokens.
// ok is false ("not ready") unless both sides of both tokens are hydrated.
func (s *Store) GetSpreadInputs(token string) (SpreadInputs, bool) {
	s.mu.RLock()
	ref, exists := s.tokenToMarket[token]
	if !exists {
		s.mu.RUnlock()
		return SpreadInputs{}, false
	}
	m := s.markets[ref.marketID]
	s.mu.RUnlock()
	if m == nil {
		return SpreadInputs{}, false
	}

	yesBook := s.getBook(m.YesTokenID)
	noBook := s.getBook(m.NoTokenID)
	if yesBook == nil || noBook == nil {
		return SpreadInputs{}, false
	}

	yesBid, yesAsk, hasYesBid, hasYesAsk := yesBook.best()
	noBid, noAsk, hasNoBid, hasNoAsk := noBook.best()

	if !hasYesAsk || !hasNoAsk || !hasYesBid || !hasNoBid {
		return SpreadInputs{}, false
	}

	return SpreadInputs{
		MarketID: m.MarketID,
		YesAsk:   yesAsk,
		NoAsk:    noAsk,
		YesBid:   yesBid,
		NoBid:    noBid,
	}, true
}

// GetMarketForToken resolves the market a token belongs to.
func (s *Store) GetMarketForToken(token string) (marketID, yesToken, noToken string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.tokenToMarket[token]
	if !exists {
		return "", "", "", false
	}
	m, exists := s.markets[ref.marketID]
	if !exists {
		return "", "", "", false
	}
	return m.MarketID, m.YesTokenID, m.NoTokenID, true
}

// Hydrated reports how many watched tokens currently have a two-sided book,
// for the health endpoint (§6).
func (s *Store) Hydrated() int64 {
	s.booksMu.RLock()
	toks := make([]*book, 0, len(s.books))
	for _, b := range s.books {
		toks = append(toks, b)
	}
	s.booksMu.RUnlock()

	var n int64
	for _, b := range toks {
		_, _, hasBid, hasAsk := b.best()
		if hasBid && hasAsk {
			n++
		}
	}
	return n
}

// Subscribed returns the number of watched tokens.
func (s *Store) Subscribed() int64 {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()
	return int64(len(s.books))
}

// MarketCount returns the number of watched markets.
func (s *Store) MarketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markets)
}
