// Package book maintains per-asset two-sided orderbooks built from feed
// messages and derives mid price and spread from them.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Manager keeps the latest immutable BookSnapshot per asset. Every update
// builds a fresh snapshot and swaps it in atomically, so readers never see a
// partially applied book.
type Manager struct {
	mu    sync.RWMutex
	books map[string]domain.BookSnapshot
}

// NewManager creates an empty book manager.
func NewManager() *Manager {
	return &Manager{
		books: make(map[string]domain.BookSnapshot),
	}
}

// ApplyFullBook replaces the entire book for an asset and returns the new
// snapshot. Levels with size <= 0 are dropped; duplicate prices on a side
// collapse to the last occurrence.
func (m *Manager) ApplyFullBook(assetID string, bids, asks []domain.PriceLevel) domain.BookSnapshot {
	snap := domain.BookSnapshot{
		AssetID:    assetID,
		Bids:       normalizeSide(bids, true),
		Asks:       normalizeSide(asks, false),
		ObservedAt: time.Now().UTC(),
	}
	snap.MidPrice = midPrice(snap)

	m.mu.Lock()
	m.books[assetID] = snap
	m.mu.Unlock()
	return snap
}

// ApplyDelta inserts, updates, or removes a single level. side is
// domain.OrderSideBuy for bids, domain.OrderSideSell for asks. A size <= 0
// removes the level. The previous snapshot is left untouched; a new one
// replaces it atomically.
func (m *Manager) ApplyDelta(assetID string, side domain.OrderSide, price, size float64) domain.BookSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.books[assetID]
	snap := domain.BookSnapshot{
		AssetID:    assetID,
		Bids:       prev.Bids,
		Asks:       prev.Asks,
		ObservedAt: time.Now().UTC(),
	}

	switch side {
	case domain.OrderSideBuy:
		snap.Bids = applyLevel(prev.Bids, price, size, true)
	case domain.OrderSideSell:
		snap.Asks = applyLevel(prev.Asks, price, size, false)
	}
	snap.MidPrice = midPrice(snap)

	m.books[assetID] = snap
	return snap
}

// Snapshot returns the latest snapshot for an asset. ok is false before the
// first message for that asset arrives.
func (m *Manager) Snapshot(assetID string) (domain.BookSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.books[assetID]
	return snap, ok
}

// MidPrice returns the mid price for an asset, 0 when the book is empty or
// one-sided.
func (m *Manager) MidPrice(assetID string) float64 {
	snap, ok := m.Snapshot(assetID)
	if !ok {
		return 0
	}
	return snap.MidPrice
}

// Spread returns best ask minus best bid, 0 when the book is empty or
// one-sided.
func (m *Manager) Spread(assetID string) float64 {
	snap, ok := m.Snapshot(assetID)
	if !ok {
		return 0
	}
	return snap.Spread()
}

// normalizeSide copies, filters, deduplicates, and sorts one side of a book.
func normalizeSide(levels []domain.PriceLevel, descending bool) []domain.PriceLevel {
	byPrice := make(map[float64]float64, len(levels))
	for _, l := range levels {
		if l.Size <= 0 {
			delete(byPrice, l.Price)
			continue
		}
		byPrice[l.Price] = l.Size
	}

	out := make([]domain.PriceLevel, 0, len(byPrice))
	for price, size := range byPrice {
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	sortSide(out, descending)
	return out
}

// applyLevel returns a new sorted slice with one level inserted, updated, or
// removed. The input slice is never mutated.
func applyLevel(levels []domain.PriceLevel, price, size float64, descending bool) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels)+1)
	for _, l := range levels {
		if l.Price != price {
			out = append(out, l)
		}
	}
	if size > 0 {
		out = append(out, domain.PriceLevel{Price: price, Size: size})
		sortSide(out, descending)
	}
	return out
}

func sortSide(levels []domain.PriceLevel, descending bool) {
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
}

func midPrice(snap domain.BookSnapshot) float64 {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return 0
	}
	return (snap.Bids[0].Price + snap.Asks[0].Price) / 2
}
