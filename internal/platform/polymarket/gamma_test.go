package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

func testLogger() *slog.Logger {
	var sb strings.Builder
	return slog.New(slog.NewTextHandler(&sb, &slog.HandlerOptions{Level: slog.LevelError}))
}

// gammaStub serves /markets?slug=... from a fixed slug to market table.
func gammaStub(t *testing.T, markets map[string]gammaMarket) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slug := r.URL.Query().Get("slug")
		m, ok := markets[slug]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			fmt.Fprint(w, "[]")
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode([]gammaMarket{m}))
	}))
}

func stubMarket(slug string, accepting bool) gammaMarket {
	return gammaMarket{
		ID:              "1",
		Slug:            slug,
		Question:        "Bitcoin Up or Down?",
		Outcomes:        `["Up","Down"]`,
		ClobTokenIDs:    `["111","222"]`,
		EndDate:         "2026-08-31T12:15:00Z",
		Active:          true,
		AcceptingOrders: flexBool(accepting),
	}
}

// fixed test clock inside the 12:00-12:15 window
var testNow = time.Date(2026, 8, 31, 12, 7, 30, 0, time.UTC)

func newTestGamma(t *testing.T, markets map[string]gammaMarket) (*GammaClient, *httptest.Server) {
	t.Helper()
	srv := gammaStub(t, markets)
	t.Cleanup(srv.Close)
	g := NewGammaClient(srv.URL, testLogger())
	g.now = func() time.Time { return testNow }
	return g, srv
}

func TestGamma_CurrentMarketFindsCurrentWindow(t *testing.T) {
	windowStart := testNow.Unix() / windowSeconds * windowSeconds
	slug := fmt.Sprintf("btc-updown-15m-%d", windowStart)

	g, _ := newTestGamma(t, map[string]gammaMarket{slug: stubMarket(slug, true)})

	info, err := g.CurrentMarket(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, slug, info.Slug)
	assert.Equal(t, "111", info.TokenFor(domain.SideUp))
	assert.Equal(t, "222", info.TokenFor(domain.SideDown))
	assert.True(t, info.AcceptingOrders)
	assert.Equal(t, time.Date(2026, 8, 31, 12, 15, 0, 0, time.UTC), info.EndTime)
}

func TestGamma_CurrentMarketFallsForwardWhenCurrentClosed(t *testing.T) {
	windowStart := testNow.Unix() / windowSeconds * windowSeconds
	current := fmt.Sprintf("btc-updown-15m-%d", windowStart)
	next := fmt.Sprintf("btc-updown-15m-%d", windowStart+windowSeconds)

	g, _ := newTestGamma(t, map[string]gammaMarket{
		current: stubMarket(current, false),
		next:    stubMarket(next, true),
	})

	info, err := g.CurrentMarket(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, next, info.Slug)
}

func TestGamma_CurrentMarketFallsBackToPreviousWindow(t *testing.T) {
	windowStart := testNow.Unix() / windowSeconds * windowSeconds
	prev := fmt.Sprintf("btc-updown-15m-%d", windowStart-windowSeconds)

	g, _ := newTestGamma(t, map[string]gammaMarket{prev: stubMarket(prev, true)})

	info, err := g.CurrentMarket(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, prev, info.Slug)
}

func TestGamma_CurrentMarketNoneAccepting(t *testing.T) {
	g, _ := newTestGamma(t, nil)

	_, err := g.CurrentMarket(context.Background(), "BTC")
	assert.ErrorIs(t, err, domain.ErrNoActiveMarket)
}

func TestGamma_UnknownCoinUsesLowercaseSymbol(t *testing.T) {
	windowStart := testNow.Unix() / windowSeconds * windowSeconds
	slug := fmt.Sprintf("doge-updown-15m-%d", windowStart)

	g, _ := newTestGamma(t, map[string]gammaMarket{slug: stubMarket(slug, true)})

	info, err := g.CurrentMarket(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.Equal(t, slug, info.Slug)
}

func TestGammaMarket_ToMarketInfoRejectsMismatchedArrays(t *testing.T) {
	m := stubMarket("x", true)
	m.ClobTokenIDs = `["111"]`
	_, err := m.toMarketInfo()
	assert.Error(t, err)
}

func TestGammaMarket_ToMarketInfoRequiresUpDownOutcomes(t *testing.T) {
	m := stubMarket("x", true)
	m.Outcomes = `["Yes","No"]`
	_, err := m.toMarketInfo()
	assert.Error(t, err)
}

func TestFlexBool(t *testing.T) {
	var v struct {
		A flexBool `json:"a"`
		B flexBool `json:"b"`
		C flexBool `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":true,"b":"false","c":"True"}`), &v))
	assert.True(t, bool(v.A))
	assert.False(t, bool(v.B))
	assert.True(t, bool(v.C))
}
