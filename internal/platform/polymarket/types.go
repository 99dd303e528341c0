package polymarket

import (
	"encoding/json"
	"strings"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string, both of
// which the Gamma API emits depending on endpoint.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// gammaMarket is one market as returned by the Gamma API. Outcomes and
// ClobTokenIDs arrive as JSON encoded strings inside the JSON document.
type gammaMarket struct {
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	Question        string   `json:"question"`
	Outcomes        string   `json:"outcomes"`     // e.g. "[\"Up\",\"Down\"]"
	ClobTokenIDs    string   `json:"clobTokenIds"` // e.g. "[\"123\",\"456\"]"
	EndDate         string   `json:"endDate"`
	Active          flexBool `json:"active"`
	Closed          flexBool `json:"closed"`
	AcceptingOrders flexBool `json:"acceptingOrders"`
}

// apiOrderResult is the CLOB response to order placement.
type apiOrderResult struct {
	Success     bool   `json:"success"`
	ErrorMsg    string `json:"errorMsg,omitempty"`
	OrderID     string `json:"orderID,omitempty"`
	Status      string `json:"status,omitempty"`
	ShouldRetry bool   `json:"shouldRetry,omitempty"`
}

// apiOpenOrder is one resting order as returned by GET /orders.
type apiOpenOrder struct {
	ID           string `json:"id"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	CreatedAt    int64  `json:"created_at"` // unix seconds
}

// apiCancelResult is the CLOB response to order cancellation.
type apiCancelResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
}

// apiKeyCreds is the CLOB response to the derive-api-key flow.
type apiKeyCreds struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}
