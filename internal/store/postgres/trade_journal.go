package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// journalTimeout bounds how long a write may stall the trading path.
const journalTimeout = 3 * time.Second

// TradeJournal persists position opens and closes to the trades table. It
// sits behind the loop's recorder seam; write failures are logged, never
// surfaced.
type TradeJournal struct {
	client *Client
	logger *slog.Logger
}

func NewTradeJournal(c *Client, logger *slog.Logger) *TradeJournal {
	return &TradeJournal{client: c, logger: logger.With("component", "trade_journal")}
}

// RecordOpen inserts a freshly opened position.
func (j *TradeJournal) RecordOpen(ctx context.Context, p domain.Position) {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	_, err := j.client.pool.Exec(ctx, `
		INSERT INTO trades (id, side, token_id, entry_price, size, order_id, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Side, p.TokenID, p.EntryPrice, p.Size, p.OrderID, string(p.Status), p.OpenedAt)
	if err != nil {
		j.logger.Warn("journal open failed", "position", p.ID, "error", err)
	}
}

// RecordClose marks a position closed with its exit price and realized PnL.
func (j *TradeJournal) RecordClose(ctx context.Context, p domain.Position) {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	_, err := j.client.pool.Exec(ctx, `
		UPDATE trades
		SET status = $2, closed_at = $3, exit_price = $4, realized_pnl = $5
		WHERE id = $1`,
		p.ID, string(p.Status), p.ClosedAt, p.ExitPrice, p.RealizedPnL)
	if err != nil {
		j.logger.Warn("journal close failed", "position", p.ID, "error", err)
	}
}

// ClosedTrades returns realized trades since the given time, newest first.
// Used by the session archiver when a previous run's trades are wanted too.
func (j *TradeJournal) ClosedTrades(ctx context.Context, since time.Time) ([]domain.Position, error) {
	rows, err := j.client.pool.Query(ctx, `
		SELECT id, side, token_id, entry_price, size, order_id, status,
		       opened_at, closed_at, exit_price, realized_pnl
		FROM trades
		WHERE status = 'closed' AND closed_at >= $1
		ORDER BY closed_at DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var status string
		var pnl *float64
		if err := rows.Scan(&p.ID, &p.Side, &p.TokenID, &p.EntryPrice, &p.Size,
			&p.OrderID, &status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice, &pnl); err != nil {
			return nil, err
		}
		p.Status = domain.PositionStatus(status)
		if pnl != nil {
			p.RealizedPnL = *pnl
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
