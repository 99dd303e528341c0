package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ExitKind names the rule that triggered a position exit.
type ExitKind string

const (
	ExitTakeProfit ExitKind = "take_profit"
	ExitStopLoss   ExitKind = "stop_loss"
)

// Exit is a position the tracker wants closed, with the unrealized PnL
// at signal time. The caller executes the sell and confirms with Close.
type Exit struct {
	Position domain.Position
	Kind     ExitKind
	PnL      float64
}

// Tracker owns the set of open positions and the realized session
// stats. Thresholds are fractions of position cost: takeProfit 0.10
// signals once unrealized PnL reaches +10% of cost, stopLoss 0.20 once
// it reaches -20%. Take profit is always evaluated first.
type Tracker struct {
	mu         sync.Mutex
	open       []domain.Position
	closed     []domain.Position
	stats      domain.SessionStats
	takeProfit float64
	stopLoss   float64
}

func NewTracker(takeProfit, stopLoss float64) *Tracker {
	return &Tracker{takeProfit: takeProfit, stopLoss: stopLoss}
}

// Open records a freshly filled entry and returns it with the assigned ID.
func (t *Tracker) Open(side, tokenID string, entryPrice, size float64, orderID string) domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := domain.Position{
		ID:         uuid.NewString(),
		Side:       side,
		TokenID:    tokenID,
		EntryPrice: entryPrice,
		Size:       size,
		OrderID:    orderID,
		OpenedAt:   time.Now(),
		Status:     domain.PositionStatusOpen,
	}
	t.open = append(t.open, p)
	return p
}

// EvaluateExits checks every open position against the current prices
// and returns those that hit a threshold, in the order they were
// opened. Positions without a price are skipped. Each position is
// returned at most once per call, with take profit taking precedence
// over stop loss.
func (t *Tracker) EvaluateExits(prices map[string]float64) []Exit {
	t.mu.Lock()
	defer t.mu.Unlock()

	var exits []Exit
	for _, p := range t.open {
		cur, ok := prices[p.TokenID]
		if !ok || cur <= 0 {
			continue
		}
		cost := p.Cost()
		if cost <= 0 {
			continue
		}
		pnl := p.PnL(cur)
		switch {
		case pnl/cost >= t.takeProfit:
			exits = append(exits, Exit{Position: p, Kind: ExitTakeProfit, PnL: pnl})
		case pnl <= -t.stopLoss*cost:
			exits = append(exits, Exit{Position: p, Kind: ExitStopLoss, PnL: pnl})
		}
	}
	return exits
}

// Close marks the position realized and folds the PnL into the session
// stats. Returns ErrPositionClosed when the position was already
// closed by an earlier call, ErrNotFound when the ID is unknown.
func (t *Tracker) Close(id string, exitPrice, pnl float64) (domain.Position, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, p := range t.open {
		if p.ID != id {
			continue
		}
		now := time.Now()
		p.Status = domain.PositionStatusClosed
		p.ClosedAt = &now
		p.ExitPrice = &exitPrice
		p.RealizedPnL = pnl

		t.open = append(t.open[:i], t.open[i+1:]...)
		t.closed = append(t.closed, p)

		t.stats.TradesClosed++
		t.stats.TotalPnL += pnl
		if pnl >= 0 {
			t.stats.Wins++
		} else {
			t.stats.Losses++
		}
		return p, nil
	}
	for _, p := range t.closed {
		if p.ID == id {
			return domain.Position{}, fmt.Errorf("position: close %s: %w", id, domain.ErrPositionClosed)
		}
	}
	return domain.Position{}, fmt.Errorf("position: close %s: %w", id, domain.ErrNotFound)
}

// OpenCount returns the number of currently open positions.
func (t *Tracker) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// CanOpen reports whether opening one more position stays within max.
// A max of zero or below means unlimited.
func (t *Tracker) CanOpen(max int) bool {
	if max <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open) < max
}

// OpenPositions returns a copy of the open set in opening order.
func (t *Tracker) OpenPositions() []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Position, len(t.open))
	copy(out, t.open)
	return out
}

// ClosedPositions returns a copy of every realized position this session.
func (t *Tracker) ClosedPositions() []domain.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Position, len(t.closed))
	copy(out, t.closed)
	return out
}

// Stats returns a snapshot of the realized session stats.
func (t *Tracker) Stats() domain.SessionStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// UnrealizedPnL sums the mark-to-market PnL of the open set against
// the given prices. Positions without a price contribute zero.
func (t *Tracker) UnrealizedPnL(prices map[string]float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var total float64
	for _, p := range t.open {
		if cur, ok := prices[p.TokenID]; ok && cur > 0 {
			total += p.PnL(cur)
		}
	}
	return total
}
