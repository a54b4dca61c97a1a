// Package fixedpoint implements quantised decimal prices for order books.
//
// Prices on the wire arrive as decimal strings with at most four digits of
// precision. Storing them as float64 would let accumulated rounding error
// leak into price comparisons (best_ask >= best_bid, combined < 1.0); a
// scaled integer keeps every comparison exact.
package fixedpoint

import (
	"fmt"
	"strconv"
)

// Scale is the multiplier for the four decimal places carried by a Price
// (per the CLOB tick size).
const Scale = 10000

// Price is a price quantised to four decimal places, stored as an integer
// number of ten-thousandths (e.g. 0.4567 -> 4567).
type Price int64

// One represents the payout value of a fully-resolved binary market.
const One Price = Scale

// ParsePrice parses a decimal string such as "0.4567" into a Price.
func ParsePrice(s string) (Price, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return Price(f*Scale + 0.5), nil
}

// ParseSize parses a decimal size string such as "12.5" into a float64.
// Sizes are not used in price comparisons so they stay floating point,
// matching the teacher's own treatment of order sizes.
func ParseSize(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return f, nil
}

// Float64 returns the price as a float64, for reporting and arithmetic that
// crosses back into the classifier/aggregator's float-based observables.
func (p Price) Float64() float64 {
	return float64(p) / Scale
}

// Add returns the sum of two prices.
func (p Price) Add(o Price) Price {
	return p + o
}

// String renders the price with four decimal places.
func (p Price) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', 4, 64)
}
