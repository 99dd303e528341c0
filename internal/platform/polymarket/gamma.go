// Package polymarket holds the REST clients for the Gamma discovery API and
// the CLOB trading API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// windowSeconds is the length of one up/down market window.
const windowSeconds = 900

// slugPrefixes maps coin symbols to the prefix Gamma uses in up/down market
// slugs. Unlisted symbols fall back to the lowercased symbol.
var slugPrefixes = map[string]string{
	"BTC": "btc",
	"ETH": "eth",
	"SOL": "sol",
	"XRP": "xrp",
}

// GammaClient resolves the active 15-minute up/down market for a coin via
// the Gamma REST API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewGammaClient creates a discovery client. baseURL is the Gamma API root,
// e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "gamma"),
		now:        time.Now,
	}
}

// CurrentMarket finds the up/down market accepting orders for the coin.
// Slugs embed the unix timestamp of the window boundary, so the client
// probes the current window first, then the next, then the previous one
// (whose market may still accept orders right at the boundary).
func (g *GammaClient) CurrentMarket(ctx context.Context, coin string) (domain.MarketInfo, error) {
	prefix, ok := slugPrefixes[strings.ToUpper(coin)]
	if !ok {
		prefix = strings.ToLower(coin)
	}
	windowStart := g.now().Unix() / windowSeconds * windowSeconds

	for _, ts := range []int64{windowStart, windowStart + windowSeconds, windowStart - windowSeconds} {
		slug := fmt.Sprintf("%s-updown-15m-%d", prefix, ts)
		info, err := g.marketBySlug(ctx, slug)
		if err != nil {
			g.logger.Debug("slug probe failed", "slug", slug, "error", err)
			continue
		}
		if !info.AcceptingOrders {
			g.logger.Debug("market not accepting orders", "slug", slug)
			continue
		}
		return info, nil
	}
	return domain.MarketInfo{}, fmt.Errorf("polymarket/gamma: no %s market accepting orders: %w",
		coin, domain.ErrNoActiveMarket)
}

func (g *GammaClient) marketBySlug(ctx context.Context, slug string) (domain.MarketInfo, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.MarketInfo{}, err
	}

	var markets []gammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.MarketInfo{}, fmt.Errorf("slug %s: %w", slug, domain.ErrNotFound)
	}
	return markets[0].toMarketInfo()
}

// toMarketInfo decodes the doubly encoded outcome and token fields and pairs
// them positionally into the side to token map.
func (m gammaMarket) toMarketInfo() (domain.MarketInfo, error) {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("decode outcomes %q: %w", m.Outcomes, err)
	}
	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return domain.MarketInfo{}, fmt.Errorf("decode clobTokenIds %q: %w", m.ClobTokenIDs, err)
	}
	if len(outcomes) != len(tokenIDs) {
		return domain.MarketInfo{}, fmt.Errorf("outcomes/tokens length mismatch: %d vs %d",
			len(outcomes), len(tokenIDs))
	}

	tokens := make(map[string]string, len(outcomes))
	for i, outcome := range outcomes {
		tokens[strings.ToLower(outcome)] = tokenIDs[i]
	}
	if tokens[domain.SideUp] == "" || tokens[domain.SideDown] == "" {
		return domain.MarketInfo{}, fmt.Errorf("market %s has no up/down outcomes", m.Slug)
	}

	info := domain.MarketInfo{
		Slug:            m.Slug,
		Question:        m.Question,
		TokenIDs:        tokens,
		AcceptingOrders: bool(m.AcceptingOrders) && !bool(m.Closed),
	}
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		info.EndTime = t
	}
	return info, nil
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
