package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook. A size of zero or
// below means the level is absent.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot is an immutable view of one asset's two-sided book. Bids are
// sorted descending by price, asks ascending. A new snapshot is published for
// every feed message; snapshots are never edited in place.
type BookSnapshot struct {
	AssetID    string
	Bids       []PriceLevel
	Asks       []PriceLevel
	MidPrice   float64
	ObservedAt time.Time
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (s BookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (s BookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// Spread returns best ask minus best bid, or 0 when either side is empty.
func (s BookSnapshot) Spread() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0
	}
	return s.BestAsk() - s.BestBid()
}
