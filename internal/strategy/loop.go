package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/market"
	"github.com/alanyoungcy/updownbot/internal/position"
	"github.com/alanyoungcy/updownbot/internal/render"
)

// Market is the slice of the market controller the loop drives. Satisfied
// by *market.Controller.
type Market interface {
	Start(ctx context.Context) error
	Stop()
	WaitForData(ctx context.Context, timeout time.Duration) bool
	MidPrice(side string) float64
	CurrentMarket() (domain.MarketInfo, bool)
	TokenIDs() map[string]string
	IsConnected() bool
	OnBookUpdate(fn feed.BookListener)
	OnMarketChange(fn market.MarketChangeListener)
	OnConnect(fn func())
	OnDisconnect(fn func())
}

// Trader places and manages orders on the exchange. Ordinary rejections come
// back inside OrderResult, not as errors.
type Trader interface {
	PlaceOrder(ctx context.Context, tokenID string, price, size float64, side domain.OrderSide) domain.OrderResult
	OpenOrders(ctx context.Context) ([]domain.OpenOrder, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Recorder receives position lifecycle events for journaling. Implementations
// must not block the trading path; failures are theirs to log.
type Recorder interface {
	RecordOpen(ctx context.Context, p domain.Position)
	RecordClose(ctx context.Context, p domain.Position)
}

type nopRecorder struct{}

func (nopRecorder) RecordOpen(context.Context, domain.Position)  {}
func (nopRecorder) RecordClose(context.Context, domain.Position) {}

// Config holds the loop's trading parameters.
type Config struct {
	TickInterval    time.Duration
	OrderNotional   float64 // dollars committed per entry
	MaxPositions    int     // 0 means unlimited
	RefreshInterval time.Duration
	OrderMaxAge     time.Duration // resting orders older than this get cancelled
	DataTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 2 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 30 * time.Second
	}
	if c.OrderMaxAge <= 0 {
		c.OrderMaxAge = 2 * time.Minute
	}
	if c.DataTimeout <= 0 {
		c.DataTimeout = 15 * time.Second
	}
}

// Loop runs one strategy against one market. It owns the tick cadence, the
// exit checks against the position tracker, and the debounced refresh of
// resting orders. Buys and sells go through ExecuteBuy / executeSell so the
// strategy itself never talks to the exchange.
type Loop struct {
	cfg       Config
	market    Market
	trader    Trader
	prices    *PriceTracker
	positions *position.Tracker
	strat     Strategy
	recorder  Recorder
	status    *render.Status
	logger    *slog.Logger

	refreshMu     sync.Mutex
	lastRefresh   time.Time
	refreshing    bool
	stopping      bool
	refreshCancel context.CancelFunc
	openOrders    []domain.OpenOrder

	wg          sync.WaitGroup
	stopOnce    sync.Once
	summaryOnce sync.Once
}

func NewLoop(cfg Config, m Market, trader Trader, prices *PriceTracker, positions *position.Tracker, strat Strategy, recorder Recorder, logger *slog.Logger) *Loop {
	cfg.applyDefaults()
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Loop{
		cfg:       cfg,
		market:    m,
		trader:    trader,
		prices:    prices,
		positions: positions,
		strat:     strat,
		recorder:  recorder,
		status:    render.NewStatus(),
		logger:    logger.With("component", "loop", "strategy", strat.Name()),
	}
}

// Start wires the loop into the market's event streams and brings the market
// up. It returns once the feed has delivered both sides of the book, or after
// the data timeout with a warning.
func (l *Loop) Start(ctx context.Context) error {
	l.market.OnBookUpdate(func(snap domain.BookSnapshot) {
		if side, ok := l.sideFor(snap.AssetID); ok && snap.MidPrice > 0 {
			l.prices.Record(side, snap.MidPrice)
		}
		l.strat.OnBookUpdate(ctx, snap)
	})
	l.market.OnMarketChange(func(oldSlug, newSlug string) {
		l.logger.Info("market rolled", "old", oldSlug, "new", newSlug)
		l.status.Append(fmt.Sprintf("market rolled to %s", newSlug))
		l.prices.Clear()
		if hook, ok := l.strat.(MarketChangeHook); ok {
			hook.OnMarketChange(oldSlug, newSlug)
		}
	})
	l.market.OnConnect(func() {
		l.status.Append("feed connected")
		if hook, ok := l.strat.(ConnectHook); ok {
			hook.OnConnect()
		}
	})
	l.market.OnDisconnect(func() {
		l.status.Append("feed disconnected")
		if hook, ok := l.strat.(DisconnectHook); ok {
			hook.OnDisconnect()
		}
	})

	if err := l.market.Start(ctx); err != nil {
		return fmt.Errorf("strategy: start market: %w", err)
	}
	if !l.market.WaitForData(ctx, l.cfg.DataTimeout) {
		l.logger.Warn("order book not fully populated, trading on partial data",
			"timeout", l.cfg.DataTimeout)
	}
	return nil
}

// Run drives the tick loop until the context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick executes one iteration: strategy hook, exit evaluation, debounced
// order refresh, status render.
func (l *Loop) Tick(ctx context.Context) {
	prices := l.currentPrices()

	l.strat.OnTick(ctx, prices)

	for _, exit := range l.positions.EvaluateExits(prices) {
		l.executeSell(ctx, exit, prices[exit.Position.TokenID])
	}

	l.maybeRefreshOrders(ctx)

	if line := l.strat.RenderStatus(prices); line != "" {
		l.status.SetLine(line)
	}
	l.status.Render(l.logger, l.positions.Stats(), l.positions.UnrealizedPnL(prices))
}

// ExecuteBuy opens a position on the given side at the current mid, sized so
// the entry notional matches configuration. The limit is padded two cents
// above mid and capped at 0.99.
func (l *Loop) ExecuteBuy(ctx context.Context, side string) (domain.Position, error) {
	if !l.positions.CanOpen(l.cfg.MaxPositions) {
		return domain.Position{}, fmt.Errorf("strategy: buy %s: position cap %d reached: %w",
			side, l.cfg.MaxPositions, domain.ErrInvalidOrder)
	}
	tokenID := l.tokenFor(side)
	if tokenID == "" {
		return domain.Position{}, fmt.Errorf("strategy: buy %s: %w", side, domain.ErrNoActiveMarket)
	}
	price := l.market.MidPrice(side)
	if price <= 0 {
		return domain.Position{}, fmt.Errorf("strategy: buy %s: no mid price: %w", side, domain.ErrInvalidOrder)
	}

	size := l.cfg.OrderNotional / price
	limit := price + 0.02
	if limit > 0.99 {
		limit = 0.99
	}

	res := l.trader.PlaceOrder(ctx, tokenID, limit, size, domain.OrderSideBuy)
	if !res.Success {
		l.logger.Warn("buy rejected", "side", side, "limit", limit, "size", size, "reason", res.Message)
		return domain.Position{}, fmt.Errorf("strategy: buy %s rejected: %s: %w", side, res.Message, domain.ErrInvalidOrder)
	}

	pos := l.positions.Open(side, tokenID, price, size, res.OrderID)
	l.recorder.RecordOpen(ctx, pos)
	l.logger.Info("position opened",
		"side", side, "entry", price, "size", size, "order_id", res.OrderID)
	l.status.Append(fmt.Sprintf("BUY %s %.2f @ %.3f", side, size, price))
	return pos, nil
}

// executeSell closes one position flagged by the tracker. The limit is padded
// two cents below the current price with a floor of 0.01. A position already
// closed by a previous tick is skipped silently.
func (l *Loop) executeSell(ctx context.Context, exit position.Exit, currentPrice float64) {
	limit := currentPrice - 0.02
	if limit < 0.01 {
		limit = 0.01
	}

	res := l.trader.PlaceOrder(ctx, exit.Position.TokenID, limit, exit.Position.Size, domain.OrderSideSell)
	if !res.Success {
		l.logger.Warn("sell rejected",
			"position", exit.Position.ID, "kind", string(exit.Kind), "reason", res.Message)
		return
	}

	closed, err := l.positions.Close(exit.Position.ID, currentPrice, exit.PnL)
	if err != nil {
		l.logger.Debug("close skipped", "position", exit.Position.ID, "error", err)
		return
	}
	l.recorder.RecordClose(ctx, closed)
	l.logger.Info("position closed",
		"side", closed.Side, "kind", string(exit.Kind), "pnl", exit.PnL, "exit", currentPrice)
	l.status.Append(fmt.Sprintf("SELL %s %s pnl %+.2f", closed.Side, exit.Kind, exit.PnL))
}

// maybeRefreshOrders refreshes the cached open-order set and cancels stale
// resting orders. At most one refresh runs at a time, spaced by the
// configured interval from the previous attempt. No refresh starts once the
// loop is stopping, and Stop cancels one already in flight.
func (l *Loop) maybeRefreshOrders(ctx context.Context) {
	l.refreshMu.Lock()
	if l.stopping || l.refreshing || time.Since(l.lastRefresh) < l.cfg.RefreshInterval {
		l.refreshMu.Unlock()
		return
	}
	l.refreshing = true
	l.lastRefresh = time.Now()
	rctx, cancel := context.WithCancel(ctx)
	l.refreshCancel = cancel
	l.wg.Add(1)
	l.refreshMu.Unlock()

	go func() {
		defer l.wg.Done()
		defer cancel()
		defer func() {
			l.refreshMu.Lock()
			l.refreshing = false
			l.refreshMu.Unlock()
		}()

		orders, err := l.trader.OpenOrders(rctx)
		if err != nil {
			l.logger.Warn("open orders fetch failed", "error", err)
			return
		}
		l.refreshMu.Lock()
		l.openOrders = append([]domain.OpenOrder(nil), orders...)
		l.refreshMu.Unlock()

		for _, o := range orders {
			if rctx.Err() != nil {
				return
			}
			if time.Since(o.CreatedAt) < l.cfg.OrderMaxAge {
				continue
			}
			if err := l.trader.CancelOrder(rctx, o.ID); err != nil {
				l.logger.Warn("cancel failed", "order_id", o.ID, "error", err)
				continue
			}
			l.logger.Info("stale order cancelled", "order_id", o.ID, "age", time.Since(o.CreatedAt))
		}
	}()
}

// OpenOrders returns the resting orders seen by the most recent refresh.
// It is a cached view; staleness is bounded by the refresh interval.
func (l *Loop) OpenOrders() []domain.OpenOrder {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()
	return append([]domain.OpenOrder(nil), l.openOrders...)
}

// Stop shuts the loop down exactly once: refuses new refreshes, cancels any
// in-flight one and waits for it to settle, stops the market, and logs the
// session summary.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.refreshMu.Lock()
		l.stopping = true
		cancel := l.refreshCancel
		l.refreshMu.Unlock()
		if cancel != nil {
			cancel()
		}
		l.wg.Wait()
		l.market.Stop()
		l.summaryOnce.Do(func() {
			render.Summary(l.logger, l.positions.Stats(), l.positions.ClosedPositions())
		})
	})
}

// currentPrices maps each subscribed token ID to its current mid price.
// Tokens without both book sides are omitted.
func (l *Loop) currentPrices() map[string]float64 {
	prices := make(map[string]float64, 2)
	for side, tokenID := range l.market.TokenIDs() {
		if mid := l.market.MidPrice(side); mid > 0 {
			prices[tokenID] = mid
		}
	}
	return prices
}

func (l *Loop) tokenFor(side string) string {
	return l.market.TokenIDs()[side]
}

func (l *Loop) sideFor(assetID string) (string, bool) {
	for side, tokenID := range l.market.TokenIDs() {
		if tokenID == assetID {
			return side, true
		}
	}
	return "", false
}

// Positions exposes the tracker for strategies that size against exposure.
func (l *Loop) Positions() *position.Tracker { return l.positions }

// Prices exposes the price history tracker.
func (l *Loop) Prices() *PriceTracker { return l.prices }
