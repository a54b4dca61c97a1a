package types

import (
	"encoding/json"
	"time"
)

// Market represents a candidate market descriptor returned by the upstream
// catalog API (§6). Binary markets resolve to exactly two outcome tokens,
// YES and NO.
type Market struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Question    string    `json:"question"`
	Category    string    `json:"category"`
	Closed      bool      `json:"closed"`
	Active      bool      `json:"active"`
	EndDate     time.Time `json:"endDate"`
	Volume24hr  float64   `json:"volume24hr"`
	Liquidity   float64   `json:"liquidityNum"`
	Outcomes    string    `json:"outcomes"`     // JSON string: "[\"Yes\", \"No\"]"
	ClobTokens  string    `json:"clobTokenIds"` // JSON string: "[\"token1\", \"token2\"]"
	YesTokenID  string    `json:"-"`            // resolved by UnmarshalJSON
	NoTokenID   string    `json:"-"`            // resolved by UnmarshalJSON
}

// UnmarshalJSON resolves the outcomes/clobTokenIds string-encoded arrays
// into YesTokenID/NoTokenID. When outcome labels disambiguate YES/NO
// (case-insensitively) those labels win; otherwise position 0 is assumed
// YES and position 1 NO (§9 Open Question ii).
func (m *Market) UnmarshalJSON(data []byte) error {
	type alias Market
	aux := &struct{ *alias }{alias: (*alias)(m)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if m.Outcomes == "" || m.ClobTokens == "" {
		return nil
	}

	var labels []string
	var tokenIDs []string

	if err := json.Unmarshal([]byte(m.Outcomes), &labels); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(m.ClobTokens), &tokenIDs); err != nil {
		return nil
	}
	if len(labels) < 2 || len(tokenIDs) < 2 {
		return nil
	}

	yesIdx, noIdx := resolveOutcomeIndices(labels)
	m.YesTokenID = tokenIDs[yesIdx]
	m.NoTokenID = tokenIDs[noIdx]

	return nil
}

// resolveOutcomeIndices picks the YES/NO label indices. Falls back to
// positional [0]=YES, [1]=NO when labels don't disambiguate.
func resolveOutcomeIndices(labels []string) (yesIdx, noIdx int) {
	yesIdx, noIdx = 0, 1

	for i, label := range labels {
		switch normalizeLabel(label) {
		case "yes":
			yesIdx = i
		case "no":
			noIdx = i
		}
	}

	return yesIdx, noIdx
}

func normalizeLabel(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// CatalogResponse represents a page of the upstream catalog's market list.
type CatalogResponse struct {
	Data   []Market `json:"data"`
	Count  int      `json:"count"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

// WatchedMarket is the subscription-controller's record of a market whose
// tokens are currently subscribed on the feed.
type WatchedMarket struct {
	MarketID     string
	Slug         string
	Question     string
	Category     string
	EndDate      time.Time
	YesTokenID   string
	NoTokenID    string
	SubscribedAt time.Time
	Pinned       bool
}
