package feed

import (
	"strconv"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// wsCommand is the subscription request sent to the market-data feed.
type wsCommand struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel,omitempty"`
	AssetIDs []string `json:"assets_ids"`
}

// wsEnvelope is the minimal outer shape used to route inbound frames.
type wsEnvelope struct {
	EventType string `json:"event_type"`
}

// wireLevel is one price level as carried on the wire (stringified decimals).
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookMessage is a full orderbook snapshot frame.
type bookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

// priceChangeMessage is an incremental level update frame. Size "0" removes
// the level.
type priceChangeMessage struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Side      string `json:"side"` // "BUY" or "SELL"
	Price     string `json:"price"`
	Size      string `json:"size"`
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func parseLevels(in []wireLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(in))
	for _, l := range in {
		price, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out
}
