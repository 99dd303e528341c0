package strategy

import (
	"context"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// Strategy is the decision layer the loop drives. OnBookUpdate runs on the
// feed dispatch path and must return quickly; OnTick runs once per loop tick
// with the current mid price per token.
type Strategy interface {
	Name() string
	OnBookUpdate(ctx context.Context, snap domain.BookSnapshot)
	OnTick(ctx context.Context, prices map[string]float64)
	RenderStatus(prices map[string]float64) string
}

// MarketChangeHook is implemented by strategies that want to know when the
// active market rolls to the next window.
type MarketChangeHook interface {
	OnMarketChange(oldSlug, newSlug string)
}

// ConnectHook is implemented by strategies that react to feed connectivity.
type ConnectHook interface {
	OnConnect()
}

// DisconnectHook is implemented by strategies that react to feed loss.
type DisconnectHook interface {
	OnDisconnect()
}
