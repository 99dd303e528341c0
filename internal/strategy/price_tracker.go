package strategy

import (
	"math"
	"sync"
	"time"
)

// PricePoint is a single observed mid price for one side of the market.
type PricePoint struct {
	Price float64
	At    time.Time
}

// PriceTracker keeps a bounded sliding window of mid prices per side
// ("up" / "down"). History is trimmed on every write: points older than
// lookback are dropped first, then the oldest points beyond maxHistory.
type PriceTracker struct {
	mu         sync.Mutex
	history    map[string][]PricePoint
	lookback   time.Duration
	maxHistory int
}

// Move describes a detected flash move on one side.
type Move struct {
	From    float64 // highest price inside the lookback window
	To      float64 // latest price
	Dropped float64 // From - To
}

func NewPriceTracker(lookback time.Duration, maxHistory int) *PriceTracker {
	if lookback <= 0 {
		lookback = 5 * time.Minute
	}
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &PriceTracker{
		history:    make(map[string][]PricePoint),
		lookback:   lookback,
		maxHistory: maxHistory,
	}
}

// Record appends a price sample for the given side at the current time.
func (t *PriceTracker) Record(side string, price float64) {
	t.RecordAt(side, price, time.Now())
}

// RecordAt appends a price sample with an explicit timestamp.
func (t *PriceTracker) RecordAt(side string, price float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pts := append(t.history[side], PricePoint{Price: price, At: at})
	pts = trimByAge(pts, at.Add(-t.lookback))
	if len(pts) > t.maxHistory {
		pts = pts[len(pts)-t.maxHistory:]
	}
	t.history[side] = pts
}

// Volatility returns the sample standard deviation of prices for side
// within the given window, measured back from the newest sample.
// Returns 0 when fewer than two samples qualify.
func (t *PriceTracker) Volatility(side string, window time.Duration) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	pts := t.history[side]
	if len(pts) == 0 {
		return 0
	}
	cutoff := pts[len(pts)-1].At.Add(-window)

	var sum float64
	var n int
	for _, p := range pts {
		if p.At.Before(cutoff) {
			continue
		}
		sum += p.Price
		n++
	}
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)

	var sq float64
	for _, p := range pts {
		if p.At.Before(cutoff) {
			continue
		}
		d := p.Price - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// DetectDrop reports whether the latest price for side sits at least
// threshold below the highest price seen inside the lookback window.
func (t *PriceTracker) DetectDrop(side string, threshold float64, lookback time.Duration) (Move, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pts := t.history[side]
	if len(pts) < 2 {
		return Move{}, false
	}
	latest := pts[len(pts)-1]
	cutoff := latest.At.Add(-lookback)

	high := latest.Price
	for _, p := range pts {
		if p.At.Before(cutoff) {
			continue
		}
		if p.Price > high {
			high = p.Price
		}
	}
	drop := high - latest.Price
	if drop < threshold {
		return Move{}, false
	}
	return Move{From: high, To: latest.Price, Dropped: drop}, true
}

// HistoryCount returns the number of retained samples for side.
func (t *PriceTracker) HistoryCount(side string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.history[side])
}

// Clear drops all retained samples for every side. Called when the
// tracked market rolls over to the next window.
func (t *PriceTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = make(map[string][]PricePoint)
}

func trimByAge(pts []PricePoint, cutoff time.Time) []PricePoint {
	idx := 0
	for idx < len(pts) && pts[idx].At.Before(cutoff) {
		idx++
	}
	return pts[idx:]
}
