package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is one open or historical trade in a single outcome token. A
// position transitions open -> closed exactly once; closed positions are kept
// only for stats aggregation and are never re-evaluated for exits.
type Position struct {
	ID          string
	Side        string // "up" or "down"
	TokenID     string
	EntryPrice  float64
	Size        float64
	OrderID     string
	OpenedAt    time.Time
	Status      PositionStatus
	ClosedAt    *time.Time
	ExitPrice   *float64
	RealizedPnL float64 // set only when closed
}

// PnL returns the unrealized profit at the given current price.
func (p Position) PnL(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) * p.Size
}

// Cost returns the entry notional of the position.
func (p Position) Cost() float64 {
	return p.EntryPrice * p.Size
}

// SessionStats aggregates closed trades over one trading session. All fields
// accumulate monotonically.
type SessionStats struct {
	TradesClosed int
	TotalPnL     float64
	Wins         int
	Losses       int
}

// WinRate returns wins as a percentage of closed trades, 0 when none closed.
func (s SessionStats) WinRate() float64 {
	if s.TradesClosed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TradesClosed) * 100
}
