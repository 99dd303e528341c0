package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

// ClobClient places, cancels, and lists orders against the CLOB REST API.
// Call DeriveAPIKey once before issuing authenticated requests.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// NewClobClient creates the trading client. baseURL is the CLOB API root,
// e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string, signer *crypto.Signer) *ClobClient {
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
	}
}

// DeriveAPIKey runs the L1 auth flow: a signed ClobAuth message in
// POLY_* headers against derive-api-key yields the HMAC credentials used by
// every later request.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s: %w",
			resp.StatusCode, string(body), domain.ErrUnauthorized)
	}

	var creds apiKeyCreds
	if err := json.Unmarshal(body, &creds); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	c.hmacAuth = &crypto.HMACAuth{
		Key:        creds.APIKey,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	}
	return nil
}

// PostOrder signs and submits the order payload, returning the exchange's
// verdict. A reject comes back as a result with Success=false, not an error.
func (c *ClobClient) PostOrder(ctx context.Context, order crypto.OrderPayload, orderType string) (domain.OrderResult, error) {
	sig, err := c.signer.SignOrder(order)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          order.Salt,
			"maker":         order.Maker,
			"signer":        order.Signer,
			"taker":         order.Taker,
			"tokenID":       order.TokenID,
			"makerAmount":   order.MakerAmount,
			"takerAmount":   order.TakerAmount,
			"expiration":    order.Expiration,
			"nonce":         order.Nonce,
			"feeRateBps":    order.FeeRateBps,
			"side":          sideName(order.Side),
			"signatureType": order.SignatureType,
			"signature":     sig,
		},
		"owner":     c.ownerKey(),
		"orderType": orderType,
	}

	respBody, err := c.doAuthenticated(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult apiOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return domain.OrderResult{
		Success: apiResult.Success,
		OrderID: apiResult.OrderID,
		Status:  apiResult.Status,
		Message: apiResult.ErrorMsg,
	}, nil
}

// CancelOrder cancels a single resting order by ID.
func (c *ClobClient) CancelOrder(ctx context.Context, orderID string) error {
	respBody, err := c.doAuthenticated(ctx, http.MethodDelete, "/order", map[string]any{"orderID": orderID})
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result apiCancelResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel %s failed: %s", orderID, result.ErrorMsg)
	}
	return nil
}

// CancelAll cancels every resting order for the authenticated wallet.
func (c *ClobClient) CancelAll(ctx context.Context) error {
	respBody, err := c.doAuthenticated(ctx, http.MethodDelete, "/cancel-all", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}

	var result apiCancelResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel-all response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel-all failed: %s", result.ErrorMsg)
	}
	return nil
}

// GetOpenOrders lists the wallet's resting orders.
func (c *ClobClient) GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	respBody, err := c.doAuthenticated(ctx, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get open orders: %w", err)
	}

	var apiOrders []apiOpenOrder
	if err := json.Unmarshal(respBody, &apiOrders); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode orders: %w", err)
	}

	orders := make([]domain.OpenOrder, 0, len(apiOrders))
	for _, o := range apiOrders {
		price, _ := strconv.ParseFloat(o.Price, 64)
		size, _ := strconv.ParseFloat(o.OriginalSize, 64)
		matched, _ := strconv.ParseFloat(o.SizeMatched, 64)
		orders = append(orders, domain.OpenOrder{
			ID:           o.ID,
			TokenID:      o.AssetID,
			Side:         domain.OrderSide(o.Side),
			Price:        price,
			OriginalSize: size,
			SizeMatched:  matched,
			CreatedAt:    time.Unix(o.CreatedAt, 0),
		})
	}
	return orders, nil
}

// Address returns the trading wallet address.
func (c *ClobClient) Address() string { return c.signer.Address().Hex() }

// ownerKey is the API key identifying the order owner; empty until
// DeriveAPIKey has run.
func (c *ClobClient) ownerKey() string {
	if c.hmacAuth == nil {
		return ""
	}
	return c.hmacAuth.Key
}

func sideName(side int) string {
	if side == 1 {
		return "SELL"
	}
	return "BUY"
}

// doAuthenticated marshals body, applies L2 headers when credentials are
// present, and returns the raw response body.
func (c *ClobClient) doAuthenticated(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx statuses onto the domain sentinels.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, body)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, body)
	}
}
