package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
)

func testLogger() *slog.Logger {
	var sb strings.Builder
	return slog.New(slog.NewTextHandler(&sb, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTrader(t *testing.T, handler http.HandlerFunc) *Trader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	signer, err := crypto.NewSigner("0000000000000000000000000000000000000000000000000000000000000001", 137)
	require.NoError(t, err)
	return NewTrader(polymarket.NewClobClient(srv.URL, signer), "GTC", testLogger())
}

func TestTrader_BuyAmountsInSixDecimals(t *testing.T) {
	var gotOrder map[string]any
	trader := newTestTrader(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotOrder = body["order"].(map[string]any)
		fmt.Fprint(w, `{"success":true,"orderID":"ord-1","status":"live"}`)
	})

	res := trader.PlaceOrder(context.Background(), "111", 0.25, 40, domain.OrderSideBuy)
	require.True(t, res.Success)
	assert.Equal(t, "ord-1", res.OrderID)

	// buy: maker pays dollars (0.25*40 = 10 USDC), taker delivers shares (40)
	assert.Equal(t, "10000000", gotOrder["makerAmount"])
	assert.Equal(t, "40000000", gotOrder["takerAmount"])
	assert.Equal(t, "BUY", gotOrder["side"])
}

func TestTrader_SellFlipsAmounts(t *testing.T) {
	var gotOrder map[string]any
	trader := newTestTrader(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotOrder = body["order"].(map[string]any)
		fmt.Fprint(w, `{"success":true,"orderID":"ord-2","status":"live"}`)
	})

	res := trader.PlaceOrder(context.Background(), "111", 0.30, 40, domain.OrderSideSell)
	require.True(t, res.Success)

	assert.Equal(t, "40000000", gotOrder["makerAmount"])
	assert.Equal(t, "12000000", gotOrder["takerAmount"])
	assert.Equal(t, "SELL", gotOrder["side"])
}

func TestTrader_TransportErrorBecomesFailedResult(t *testing.T) {
	trader := newTestTrader(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	res := trader.PlaceOrder(context.Background(), "111", 0.25, 40, domain.OrderSideBuy)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Message)
}

func TestTrader_RejectsNonPositiveInputs(t *testing.T) {
	trader := newTestTrader(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	assert.False(t, trader.PlaceOrder(context.Background(), "111", 0, 40, domain.OrderSideBuy).Success)
	assert.False(t, trader.PlaceOrder(context.Background(), "111", 0.25, 0, domain.OrderSideBuy).Success)
}

func TestPaperTrader_FillsInstantly(t *testing.T) {
	trader := NewPaperTrader(testLogger())

	res := trader.PlaceOrder(context.Background(), "111", 0.25, 40, domain.OrderSideBuy)
	require.True(t, res.Success)
	assert.Equal(t, "matched", res.Status)

	again := trader.PlaceOrder(context.Background(), "111", 0.25, 40, domain.OrderSideBuy)
	assert.NotEqual(t, res.OrderID, again.OrderID)

	orders, err := trader.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}
