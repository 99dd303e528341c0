// Package render formats the periodic status line and the end of session
// summary for the terminal.
package render

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

const maxEvents = 5

// Status keeps the latest strategy status line plus a short ring of recent
// trade events, and renders both through the logger once per tick.
type Status struct {
	mu     sync.Mutex
	line   string
	events []string
}

func NewStatus() *Status {
	return &Status{}
}

// SetLine replaces the strategy's one-line status.
func (s *Status) SetLine(line string) {
	s.mu.Lock()
	s.line = line
	s.mu.Unlock()
}

// Append pushes an event into the ring, dropping the oldest past capacity.
func (s *Status) Append(event string) {
	s.mu.Lock()
	s.events = append(s.events, event)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.mu.Unlock()
}

// Events returns a copy of the retained event ring, oldest first.
func (s *Status) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

// Render emits the current status through the logger.
func (s *Status) Render(logger *slog.Logger, stats domain.SessionStats, unrealized float64) {
	s.mu.Lock()
	line := s.line
	recent := strings.Join(s.events, " | ")
	s.mu.Unlock()

	logger.Info("status",
		"strategy", line,
		"closed", stats.TradesClosed,
		"realized_pnl", fmt.Sprintf("%+.2f", stats.TotalPnL),
		"unrealized_pnl", fmt.Sprintf("%+.2f", unrealized),
		"recent", recent)
}

// Summary logs the end of session report: aggregate stats plus one line per
// closed trade.
func Summary(logger *slog.Logger, stats domain.SessionStats, closed []domain.Position) {
	logger.Info("session summary",
		"trades", stats.TradesClosed,
		"wins", stats.Wins,
		"losses", stats.Losses,
		"win_rate", fmt.Sprintf("%.1f%%", stats.WinRate()),
		"total_pnl", fmt.Sprintf("%+.2f", stats.TotalPnL))

	for _, p := range closed {
		exit := 0.0
		if p.ExitPrice != nil {
			exit = *p.ExitPrice
		}
		logger.Info("trade",
			"side", p.Side,
			"entry", fmt.Sprintf("%.3f", p.EntryPrice),
			"exit", fmt.Sprintf("%.3f", exit),
			"size", fmt.Sprintf("%.2f", p.Size),
			"pnl", fmt.Sprintf("%+.2f", p.RealizedPnL))
	}
}
