package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// tradeChannel is the Pub/Sub channel trade events are published on.
const tradeChannel = "updown:trades"

// publishTimeout bounds how long a publish may stall the caller.
const publishTimeout = 2 * time.Second

// tradeEvent is the wire form of one position lifecycle event.
type tradeEvent struct {
	Event      string   `json:"event"` // "open" or "close"
	PositionID string   `json:"position_id"`
	Side       string   `json:"side"`
	TokenID    string   `json:"token_id"`
	EntryPrice float64  `json:"entry_price"`
	Size       float64  `json:"size"`
	ExitPrice  *float64 `json:"exit_price,omitempty"`
	PnL        *float64 `json:"pnl,omitempty"`
	At         int64    `json:"at"` // unix seconds
}

// TradeBus publishes position opens and closes to Redis Pub/Sub. It sits
// behind the loop's recorder seam, so publish failures are logged and
// swallowed rather than surfaced to the trading path.
type TradeBus struct {
	client *Client
	logger *slog.Logger
}

func NewTradeBus(c *Client, logger *slog.Logger) *TradeBus {
	return &TradeBus{client: c, logger: logger.With("component", "trade_bus")}
}

// RecordOpen publishes an open event.
func (b *TradeBus) RecordOpen(ctx context.Context, p domain.Position) {
	b.publish(ctx, tradeEvent{
		Event:      "open",
		PositionID: p.ID,
		Side:       p.Side,
		TokenID:    p.TokenID,
		EntryPrice: p.EntryPrice,
		Size:       p.Size,
		At:         p.OpenedAt.Unix(),
	})
}

// RecordClose publishes a close event.
func (b *TradeBus) RecordClose(ctx context.Context, p domain.Position) {
	ev := tradeEvent{
		Event:      "close",
		PositionID: p.ID,
		Side:       p.Side,
		TokenID:    p.TokenID,
		EntryPrice: p.EntryPrice,
		Size:       p.Size,
		ExitPrice:  p.ExitPrice,
		PnL:        &p.RealizedPnL,
		At:         time.Now().Unix(),
	}
	if p.ClosedAt != nil {
		ev.At = p.ClosedAt.Unix()
	}
	b.publish(ctx, ev)
}

func (b *TradeBus) publish(ctx context.Context, ev tradeEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("marshal trade event", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.client.rdb.Publish(ctx, tradeChannel, payload).Err(); err != nil {
		b.logger.Warn("publish trade event", "event", ev.Event, "error", err)
	}
}
