package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// PaperTrader fills every order instantly without touching the exchange.
// Used for dry runs against the live feed.
type PaperTrader struct {
	logger *slog.Logger
	seq    atomic.Int64
}

func NewPaperTrader(logger *slog.Logger) *PaperTrader {
	return &PaperTrader{logger: logger.With("component", "paper_trader")}
}

func (t *PaperTrader) PlaceOrder(_ context.Context, tokenID string, price, size float64, side domain.OrderSide) domain.OrderResult {
	if price <= 0 || size <= 0 {
		return domain.OrderResult{Success: false, Message: "price and size must be positive"}
	}
	id := fmt.Sprintf("paper-%d", t.seq.Add(1))
	t.logger.Info("paper fill",
		"order_id", id, "token_id", tokenID, "side", string(side), "price", price, "size", size)
	return domain.OrderResult{Success: true, OrderID: id, Status: "matched"}
}

func (t *PaperTrader) OpenOrders(context.Context) ([]domain.OpenOrder, error) { return nil, nil }

func (t *PaperTrader) CancelOrder(context.Context, string) error { return nil }

func (t *PaperTrader) CancelAll(context.Context) error { return nil }
