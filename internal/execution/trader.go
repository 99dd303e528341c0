// Package execution adapts the CLOB client to the strategy loop's trading
// surface. Rejections and transport failures both come back inside
// OrderResult so the loop never has to branch on error shape.
package execution

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"strconv"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

// usdcDecimals converts share and dollar quantities to the 6-decimal
// fixed-point integers the exchange contract expects.
const usdcDecimals = 1e6

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Trader signs and routes orders through the CLOB client.
type Trader struct {
	clob      *polymarket.ClobClient
	orderType string
	logger    *slog.Logger
}

func NewTrader(clob *polymarket.ClobClient, orderType string, logger *slog.Logger) *Trader {
	if orderType == "" {
		orderType = "GTC"
	}
	return &Trader{
		clob:      clob,
		orderType: orderType,
		logger:    logger.With("component", "trader"),
	}
}

// PlaceOrder builds, signs, and submits a limit order. price is per share in
// dollars, size is shares. Failures of any kind yield Success=false.
func (t *Trader) PlaceOrder(ctx context.Context, tokenID string, price, size float64, side domain.OrderSide) domain.OrderResult {
	if price <= 0 || size <= 0 {
		return domain.OrderResult{Success: false, Message: "price and size must be positive"}
	}

	shares := int64(math.Round(size * usdcDecimals))
	dollars := int64(math.Round(price * size * usdcDecimals))

	payload := crypto.OrderPayload{
		Salt:       strconv.FormatInt(rand.Int63(), 10),
		Maker:      t.clob.Address(),
		Signer:     t.clob.Address(),
		Taker:      zeroAddress,
		TokenID:    tokenID,
		Expiration: "0",
		Nonce:      "0",
		FeeRateBps: "0",
	}
	switch side {
	case domain.OrderSideBuy:
		// buying shares with dollars
		payload.Side = 0
		payload.MakerAmount = strconv.FormatInt(dollars, 10)
		payload.TakerAmount = strconv.FormatInt(shares, 10)
	case domain.OrderSideSell:
		// selling shares for dollars
		payload.Side = 1
		payload.MakerAmount = strconv.FormatInt(shares, 10)
		payload.TakerAmount = strconv.FormatInt(dollars, 10)
	default:
		return domain.OrderResult{Success: false, Message: "unknown order side " + string(side)}
	}

	res, err := t.clob.PostOrder(ctx, payload, t.orderType)
	if err != nil {
		t.logger.Warn("order submit failed", "token_id", tokenID, "side", string(side), "error", err)
		return domain.OrderResult{Success: false, Message: err.Error()}
	}
	return res
}

// OpenOrders lists the wallet's resting orders.
func (t *Trader) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	return t.clob.GetOpenOrders(ctx)
}

// CancelOrder cancels one resting order.
func (t *Trader) CancelOrder(ctx context.Context, orderID string) error {
	return t.clob.CancelOrder(ctx, orderID)
}

// CancelAll clears every resting order, used during shutdown.
func (t *Trader) CancelAll(ctx context.Context) error {
	return t.clob.CancelAll(ctx)
}
