package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// priceTTL keeps mirrored prices from outliving the 15-minute window they
// belong to.
const priceTTL = 20 * time.Minute

// PriceMirror writes the latest mid price per token into Redis hashes at
// "mid:{tokenID}" with fields "price" and "ts".
type PriceMirror struct {
	client *Client
}

func NewPriceMirror(c *Client) *PriceMirror {
	return &PriceMirror{client: c}
}

func midKey(tokenID string) string {
	return "mid:" + tokenID
}

// SetMid stores the latest mid price for a token.
func (m *PriceMirror) SetMid(ctx context.Context, tokenID string, mid float64, ts time.Time) error {
	key := midKey(tokenID)
	pipe := m.client.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": strconv.FormatFloat(mid, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set mid %s: %w", tokenID, err)
	}
	return nil
}

// GetMid reads the mirrored mid price for a token. Returns ErrNotFound when
// the token has no mirrored price.
func (m *PriceMirror) GetMid(ctx context.Context, tokenID string) (float64, time.Time, error) {
	vals, err := m.client.rdb.HGetAll(ctx, midKey(tokenID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mid %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	price, err := strconv.ParseFloat(vals["price"], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mid %s: %w", tokenID, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", tokenID, err)
	}
	return price, time.Unix(0, tsNano), nil
}
