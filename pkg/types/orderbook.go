package types

import (
	"encoding/json"
	"strconv"
)

// WireFrame is a single server->client message from the upstream feed (§6).
// event_type is one of "book", "price_change", "last_trade_price"; any other
// value is ignored by the feed connector. Changes carries price_change
// deltas; a delta with size "0" deletes that price level.
type WireFrame struct {
	EventType    string       `json:"event_type"`
	AssetID      string       `json:"asset_id"`
	Market       string       `json:"market"`
	Timestamp    int64        `json:"-"`
	Hash         string       `json:"hash,omitempty"`
	Bids         []PriceLevel `json:"bids,omitempty"`
	Asks         []PriceLevel `json:"asks,omitempty"`
	Changes      []PriceLevel `json:"changes,omitempty"`
	Size         string       `json:"size,omitempty"` // last_trade_price
}

// UnmarshalJSON parses the wire's string-encoded timestamp field.
func (w *WireFrame) UnmarshalJSON(data []byte) error {
	type alias WireFrame
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*alias
	}{alias: (*alias)(w)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if aux.TimestampStr != "" {
		ts, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err == nil {
			w.Timestamp = ts
		}
	}

	return nil
}

// PriceLevel is a single (price, size) pair. For price_change deltas, Side
// is "BUY" (bid) or "SELL" (ask); book snapshots leave Side empty since bid
// and ask levels already arrive in separate arrays.
type PriceLevel struct {
	Price string `json:"price"`
	Side  string `json:"side,omitempty"`
	Size  string `json:"size"`
}
