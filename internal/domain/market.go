package domain

import "time"

// Side is one of the two binary outcomes of a 15-minute up/down market.
const (
	SideUp   = "up"
	SideDown = "down"
)

// MarketInfo identifies one specific 15-minute market window. TokenIDs maps
// outcome side ("up"/"down") to the ERC-1155 token ID tradable for that
// outcome; it always carries exactly those two entries.
type MarketInfo struct {
	Slug            string
	Question        string
	TokenIDs        map[string]string
	EndTime         time.Time
	AcceptingOrders bool
}

// TokenFor returns the token ID for a side, or "" when unknown.
func (m MarketInfo) TokenFor(side string) string {
	return m.TokenIDs[side]
}

// SideFor returns the outcome side owning the given token ID, or "" when the
// token does not belong to this market.
func (m MarketInfo) SideFor(tokenID string) string {
	for side, id := range m.TokenIDs {
		if id == tokenID {
			return side
		}
	}
	return ""
}

// Clone returns a deep copy so callers can hold MarketInfo across a market
// switch without observing the new token mapping.
func (m MarketInfo) Clone() MarketInfo {
	out := m
	out.TokenIDs = make(map[string]string, len(m.TokenIDs))
	for k, v := range m.TokenIDs {
		out.TokenIDs[k] = v
	}
	return out
}
