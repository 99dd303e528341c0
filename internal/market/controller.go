// Package market keeps exactly one 15-minute market identity and its feed
// connection active per coin, rolling to the next window as markets expire.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/feed"
)

// Discovery resolves the currently active market window for a coin.
type Discovery interface {
	CurrentMarket(ctx context.Context, coin string) (domain.MarketInfo, error)
}

// Conn is the slice of the feed connection the controller drives. Satisfied
// by *feed.Connection.
type Conn interface {
	Start(ctx context.Context, assetIDs []string) error
	SetAssetIDs(assetIDs []string)
	Stop()
	IsConnected() bool
	OnBookUpdate(fn feed.BookListener)
	OnConnect(fn func())
	OnDisconnect(fn func())
}

// MarketChangeListener is fired after the active market identity has been
// switched. Listeners run to completion before the switch returns.
type MarketChangeListener func(oldSlug, newSlug string)

// Options configures controller behavior.
type Options struct {
	CheckInterval   time.Duration
	AutoSwitch      bool
	DiscoverTimeout time.Duration
}

// Controller owns the active MarketInfo and the lifetime of its feed
// connection. All accessors are safe to call at any time and never fail;
// absence of data yields zero values.
type Controller struct {
	coin      string
	opts      Options
	discovery Discovery
	conn      Conn
	books     *book.Manager
	logger    *slog.Logger

	mu      sync.RWMutex
	current *domain.MarketInfo

	listenerMu sync.RWMutex
	onChange   []MarketChangeListener

	cancelCheck context.CancelFunc
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

// NewController creates a controller for one coin. books must be the same
// manager the connection writes into.
func NewController(coin string, discovery Discovery, conn Conn, books *book.Manager, opts Options, logger *slog.Logger) *Controller {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 30 * time.Second
	}
	if opts.DiscoverTimeout <= 0 {
		opts.DiscoverTimeout = 10 * time.Second
	}
	return &Controller{
		coin:      coin,
		opts:      opts,
		discovery: discovery,
		conn:      conn,
		books:     books,
		logger:    logger.With(slog.String("component", "market_controller")),
	}
}

// OnMarketChange registers a listener for market switches.
func (c *Controller) OnMarketChange(fn MarketChangeListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// OnBookUpdate registers a book-update listener on the underlying connection.
func (c *Controller) OnBookUpdate(fn feed.BookListener) { c.conn.OnBookUpdate(fn) }

// OnConnect registers a connect listener on the underlying connection.
func (c *Controller) OnConnect(fn func()) { c.conn.OnConnect(fn) }

// OnDisconnect registers a disconnect listener on the underlying connection.
func (c *Controller) OnDisconnect(fn func()) { c.conn.OnDisconnect(fn) }

// Start discovers the active market, starts the feed connection subscribed to
// its two token IDs, and begins the periodic discovery check. A discovery
// miss is reported as an error; the caller treats it as a boolean failure.
func (c *Controller) Start(ctx context.Context) error {
	discoverCtx, cancel := context.WithTimeout(ctx, c.opts.DiscoverTimeout)
	market, err := c.discovery.CurrentMarket(discoverCtx, c.coin)
	cancel()
	if err != nil {
		return fmt.Errorf("market: discover %s: %w", c.coin, err)
	}

	c.mu.Lock()
	m := market.Clone()
	c.current = &m
	c.mu.Unlock()

	c.logger.Info("active market",
		slog.String("slug", market.Slug),
		slog.Time("window_end", market.EndTime),
	)

	if err := c.conn.Start(ctx, tokenList(market)); err != nil {
		return fmt.Errorf("market: start feed: %w", err)
	}

	checkCtx, cancelCheck := context.WithCancel(ctx)
	c.cancelCheck = cancelCheck
	c.wg.Add(1)
	go c.checkLoop(checkCtx)

	return nil
}

// WaitForData blocks until both sides of the book have produced at least one
// snapshot, or the timeout elapses. It reports success and never fails hard.
func (c *Controller) WaitForData(ctx context.Context, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if c.haveBothSides() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
}

func (c *Controller) haveBothSides() bool {
	ids := c.TokenIDs()
	if len(ids) < 2 {
		return false
	}
	for _, id := range ids {
		if _, ok := c.books.Snapshot(id); !ok {
			return false
		}
	}
	return true
}

// checkLoop periodically re-runs discovery and switches the active market
// when a new window appears.
func (c *Controller) checkLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		discoverCtx, cancel := context.WithTimeout(ctx, c.opts.DiscoverTimeout)
		market, err := c.discovery.CurrentMarket(discoverCtx, c.coin)
		cancel()
		if err != nil {
			// Retried on the next interval.
			c.logger.Warn("market discovery failed", slog.String("error", err.Error()))
			continue
		}

		c.mu.RLock()
		currentSlug := ""
		if c.current != nil {
			currentSlug = c.current.Slug
		}
		c.mu.RUnlock()

		if market.Slug == currentSlug || !c.opts.AutoSwitch {
			continue
		}
		c.switchTo(market)
	}
}

// switchTo installs the new market identity, re-points the feed subscription,
// and fires the market-change listeners. The identity is updated before any
// listener runs, so listeners reading TokenIDs already see the new mapping;
// old book state is logically orphaned from that point on.
func (c *Controller) switchTo(market domain.MarketInfo) {
	c.mu.Lock()
	oldSlug := ""
	if c.current != nil {
		oldSlug = c.current.Slug
	}
	m := market.Clone()
	c.current = &m
	c.mu.Unlock()

	c.conn.SetAssetIDs(tokenList(market))

	c.listenerMu.RLock()
	listeners := c.onChange
	c.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(oldSlug, market.Slug)
	}

	c.logger.Info("market switched",
		slog.String("old", oldSlug),
		slog.String("new", market.Slug),
	)
}

// MidPrice returns the mid price for a side, 0 when unknown.
func (c *Controller) MidPrice(side string) float64 {
	id := c.tokenFor(side)
	if id == "" {
		return 0
	}
	return c.books.MidPrice(id)
}

// Spread returns the spread for a side, 0 when unknown.
func (c *Controller) Spread(side string) float64 {
	id := c.tokenFor(side)
	if id == "" {
		return 0
	}
	return c.books.Spread(id)
}

// Orderbook returns the latest snapshot for a side.
func (c *Controller) Orderbook(side string) (domain.BookSnapshot, bool) {
	id := c.tokenFor(side)
	if id == "" {
		return domain.BookSnapshot{}, false
	}
	return c.books.Snapshot(id)
}

// IsConnected reports whether the feed transport is up.
func (c *Controller) IsConnected() bool { return c.conn.IsConnected() }

// CurrentMarket returns a copy of the active market identity.
func (c *Controller) CurrentMarket() (domain.MarketInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return domain.MarketInfo{}, false
	}
	return c.current.Clone(), true
}

// TokenIDs returns a copy of the side -> token ID mapping, empty when no
// market is active.
func (c *Controller) TokenIDs() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string)
	if c.current != nil {
		for k, v := range c.current.TokenIDs {
			out[k] = v
		}
	}
	return out
}

func (c *Controller) tokenFor(side string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.TokenFor(side)
}

// Stop cancels the periodic check and stops the feed connection. Safe to call
// multiple times.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		if c.cancelCheck != nil {
			c.cancelCheck()
		}
		c.wg.Wait()
		c.conn.Stop()
	})
}

func tokenList(m domain.MarketInfo) []string {
	ids := make([]string, 0, len(m.TokenIDs))
	// Stable order: up first, then down.
	if id := m.TokenFor(domain.SideUp); id != "" {
		ids = append(ids, id)
	}
	if id := m.TokenFor(domain.SideDown); id != "" {
		ids = append(ids, id)
	}
	return ids
}
