package strategy

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/market"
	"github.com/alanyoungcy/updownbot/internal/position"
)

func testLogger() *slog.Logger {
	var sb strings.Builder
	return slog.New(slog.NewTextHandler(&sb, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeMarket struct {
	mu      sync.Mutex
	mids    map[string]float64
	tokens  map[string]string
	started int
	stopped int

	bookFns   []feed.BookListener
	changeFns []market.MarketChangeListener
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		mids:   map[string]float64{},
		tokens: map[string]string{domain.SideUp: "tok-up", domain.SideDown: "tok-down"},
	}
}

func (m *fakeMarket) setMid(side string, mid float64) {
	m.mu.Lock()
	m.mids[side] = mid
	m.mu.Unlock()
}

func (m *fakeMarket) Start(context.Context) error { m.started++; return nil }
func (m *fakeMarket) Stop()                       { m.stopped++ }
func (m *fakeMarket) WaitForData(context.Context, time.Duration) bool { return true }

func (m *fakeMarket) MidPrice(side string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mids[side]
}

func (m *fakeMarket) CurrentMarket() (domain.MarketInfo, bool) {
	return domain.MarketInfo{Slug: "btc-updown-15m-1700000000", TokenIDs: m.tokens}, true
}

func (m *fakeMarket) TokenIDs() map[string]string { return m.tokens }
func (m *fakeMarket) IsConnected() bool           { return true }

func (m *fakeMarket) OnBookUpdate(fn feed.BookListener) { m.bookFns = append(m.bookFns, fn) }
func (m *fakeMarket) OnMarketChange(fn market.MarketChangeListener) {
	m.changeFns = append(m.changeFns, fn)
}
func (m *fakeMarket) OnConnect(func())    {}
func (m *fakeMarket) OnDisconnect(func()) {}

type placedOrder struct {
	TokenID string
	Price   float64
	Size    float64
	Side    domain.OrderSide
}

type fakeTrader struct {
	mu        sync.Mutex
	placed    []placedOrder
	reject    bool
	orders    []domain.OpenOrder
	openBlock chan struct{} // when set, OpenOrders blocks until closed or ctx done
	openCalls int
	cancelled []string
}

func (t *fakeTrader) PlaceOrder(_ context.Context, tokenID string, price, size float64, side domain.OrderSide) domain.OrderResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.placed = append(t.placed, placedOrder{TokenID: tokenID, Price: price, Size: size, Side: side})
	if t.reject {
		return domain.OrderResult{Success: false, Message: "rejected"}
	}
	return domain.OrderResult{Success: true, OrderID: "ord-1", Status: "matched"}
}

func (t *fakeTrader) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	t.mu.Lock()
	t.openCalls++
	block := t.openBlock
	orders := t.orders
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return orders, nil
}

func (t *fakeTrader) CancelOrder(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = append(t.cancelled, id)
	return nil
}

func (t *fakeTrader) placedOrders() []placedOrder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]placedOrder, len(t.placed))
	copy(out, t.placed)
	return out
}

type recordingRecorder struct {
	mu     sync.Mutex
	opens  []domain.Position
	closes []domain.Position
}

func (r *recordingRecorder) RecordOpen(_ context.Context, p domain.Position) {
	r.mu.Lock()
	r.opens = append(r.opens, p)
	r.mu.Unlock()
}

func (r *recordingRecorder) RecordClose(_ context.Context, p domain.Position) {
	r.mu.Lock()
	r.closes = append(r.closes, p)
	r.mu.Unlock()
}

type idleStrategy struct{}

func (idleStrategy) Name() string                                      { return "idle" }
func (idleStrategy) OnBookUpdate(context.Context, domain.BookSnapshot) {}
func (idleStrategy) OnTick(context.Context, map[string]float64)        {}
func (idleStrategy) RenderStatus(map[string]float64) string            { return "" }

func newTestLoop(t *testing.T, cfg Config, fm *fakeMarket, ft *fakeTrader, strat Strategy, rec Recorder) *Loop {
	t.Helper()
	if strat == nil {
		strat = idleStrategy{}
	}
	return NewLoop(cfg, fm, ft,
		NewPriceTracker(time.Hour, 1000),
		position.NewTracker(0.10, 0.20),
		strat, rec, testLogger())
}

func TestLoop_FlashCrashRoundTrip(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	rec := &recordingRecorder{}

	fc := NewFlashCrash(FlashCrashConfig{
		DropThreshold: 0.30,
		Lookback:      time.Minute,
		Cooldown:      time.Hour,
	}, testLogger())

	loop := newTestLoop(t, Config{
		OrderNotional:   10,
		MaxPositions:    3,
		RefreshInterval: time.Hour,
	}, fm, ft, fc, rec)
	fc.Bind(loop)

	ctx := context.Background()
	require.NoError(t, loop.Start(ctx))

	// a 0.60 -> 0.25 collapse on the down side
	base := time.Now()
	loop.Prices().RecordAt(domain.SideDown, 0.60, base.Add(-20*time.Second))
	loop.Prices().RecordAt(domain.SideDown, 0.25, base)
	fm.setMid(domain.SideDown, 0.25)

	loop.Tick(ctx)

	placed := ft.placedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, domain.OrderSideBuy, placed[0].Side)
	assert.Equal(t, "tok-down", placed[0].TokenID)
	assert.InDelta(t, 0.27, placed[0].Price, 1e-9) // mid + 0.02 pad
	assert.InDelta(t, 40.0, placed[0].Size, 1e-9)  // 10 / 0.25
	require.Len(t, rec.opens, 1)
	assert.Equal(t, 1, loop.Positions().OpenCount())

	// price recovers past the take profit threshold
	fm.setMid(domain.SideDown, 0.28)
	loop.Tick(ctx)

	placed = ft.placedOrders()
	require.Len(t, placed, 2)
	assert.Equal(t, domain.OrderSideSell, placed[1].Side)
	assert.InDelta(t, 0.26, placed[1].Price, 1e-9) // mid - 0.02 pad
	assert.InDelta(t, 40.0, placed[1].Size, 1e-9)

	stats := loop.Positions().Stats()
	assert.Equal(t, 1, stats.TradesClosed)
	assert.InDelta(t, 1.2, stats.TotalPnL, 1e-9)
	require.Len(t, rec.closes, 1)
	assert.Zero(t, loop.Positions().OpenCount())
}

func TestLoop_ExecuteBuyCapsLimitAt99Cents(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	loop := newTestLoop(t, Config{OrderNotional: 10}, fm, ft, nil, nil)

	fm.setMid(domain.SideUp, 0.98)
	_, err := loop.ExecuteBuy(context.Background(), domain.SideUp)
	require.NoError(t, err)

	placed := ft.placedOrders()
	require.Len(t, placed, 1)
	assert.InDelta(t, 0.99, placed[0].Price, 1e-9)
}

func TestLoop_ExecuteBuyRespectsPositionCap(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	loop := newTestLoop(t, Config{OrderNotional: 10, MaxPositions: 1}, fm, ft, nil, nil)
	fm.setMid(domain.SideUp, 0.50)

	_, err := loop.ExecuteBuy(context.Background(), domain.SideUp)
	require.NoError(t, err)

	_, err = loop.ExecuteBuy(context.Background(), domain.SideUp)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Len(t, ft.placedOrders(), 1)
}

func TestLoop_ExecuteBuyRejectionOpensNothing(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{reject: true}
	loop := newTestLoop(t, Config{OrderNotional: 10}, fm, ft, nil, nil)
	fm.setMid(domain.SideUp, 0.50)

	_, err := loop.ExecuteBuy(context.Background(), domain.SideUp)
	assert.Error(t, err)
	assert.Zero(t, loop.Positions().OpenCount())
}

func TestLoop_SellFloorAtOneCent(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	loop := newTestLoop(t, Config{OrderNotional: 10, RefreshInterval: time.Hour}, fm, ft, nil, nil)

	fm.setMid(domain.SideUp, 0.10)
	_, err := loop.ExecuteBuy(context.Background(), domain.SideUp)
	require.NoError(t, err)

	// crash to 0.02 trips the stop loss; the padded limit clamps at 0.01
	fm.setMid(domain.SideUp, 0.02)
	loop.Tick(context.Background())

	placed := ft.placedOrders()
	require.Len(t, placed, 2)
	assert.Equal(t, domain.OrderSideSell, placed[1].Side)
	assert.InDelta(t, 0.01, placed[1].Price, 1e-9)
}

func TestLoop_RefreshDebounced(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	loop := newTestLoop(t, Config{RefreshInterval: time.Hour}, fm, ft, nil, nil)

	ctx := context.Background()
	loop.maybeRefreshOrders(ctx)
	loop.maybeRefreshOrders(ctx)
	loop.wg.Wait()

	ft.mu.Lock()
	calls := ft.openCalls
	ft.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestLoop_RefreshCancelsStaleOrders(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{orders: []domain.OpenOrder{
		{ID: "old", CreatedAt: time.Now().Add(-10 * time.Minute)},
		{ID: "fresh", CreatedAt: time.Now()},
	}}
	loop := newTestLoop(t, Config{RefreshInterval: time.Second, OrderMaxAge: 2 * time.Minute}, fm, ft, nil, nil)

	loop.maybeRefreshOrders(context.Background())
	loop.wg.Wait()

	ft.mu.Lock()
	cancelled := ft.cancelled
	ft.mu.Unlock()
	assert.Equal(t, []string{"old"}, cancelled)
}

func TestLoop_StopCancelsInFlightRefresh(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{openBlock: make(chan struct{})}
	loop := newTestLoop(t, Config{RefreshInterval: time.Nanosecond}, fm, ft, nil, nil)

	// refresh hangs on the trader until its context is cancelled
	loop.maybeRefreshOrders(context.Background())

	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight refresh")
	}

	// stopped loops schedule no further refreshes
	loop.maybeRefreshOrders(context.Background())
	ft.mu.Lock()
	calls := ft.openCalls
	ft.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestLoop_RefreshSpacingStampedAtScheduleTime(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{openBlock: make(chan struct{})}
	loop := newTestLoop(t, Config{RefreshInterval: time.Hour}, fm, ft, nil, nil)

	loop.maybeRefreshOrders(context.Background())

	// the spacing clock starts when the refresh is scheduled, not when the
	// fetch completes
	loop.refreshMu.Lock()
	stamped := !loop.lastRefresh.IsZero()
	loop.refreshMu.Unlock()
	assert.True(t, stamped)

	close(ft.openBlock)
	loop.wg.Wait()
}

func TestLoop_RefreshCachesOpenOrders(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{orders: []domain.OpenOrder{
		{ID: "resting", TokenID: "tok-up", CreatedAt: time.Now()},
	}}
	loop := newTestLoop(t, Config{RefreshInterval: time.Hour}, fm, ft, nil, nil)

	assert.Empty(t, loop.OpenOrders())

	loop.maybeRefreshOrders(context.Background())
	loop.wg.Wait()

	orders := loop.OpenOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "resting", orders[0].ID)
}

func TestLoop_MarketChangeClearsPriceHistory(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	loop := newTestLoop(t, Config{}, fm, ft, nil, nil)

	require.NoError(t, loop.Start(context.Background()))
	loop.Prices().Record(domain.SideUp, 0.60)
	require.Equal(t, 1, loop.Prices().HistoryCount(domain.SideUp))

	require.NotEmpty(t, fm.changeFns)
	fm.changeFns[0]("old-slug", "new-slug")
	assert.Zero(t, loop.Prices().HistoryCount(domain.SideUp))
}

func TestLoop_BookUpdatesFeedPriceTracker(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	loop := newTestLoop(t, Config{}, fm, ft, nil, nil)

	require.NoError(t, loop.Start(context.Background()))
	require.NotEmpty(t, fm.bookFns)

	fm.bookFns[0](domain.BookSnapshot{AssetID: "tok-up", MidPrice: 0.55})
	assert.Equal(t, 1, loop.Prices().HistoryCount(domain.SideUp))

	// unknown asset IDs and zero mids are ignored
	fm.bookFns[0](domain.BookSnapshot{AssetID: "tok-other", MidPrice: 0.55})
	fm.bookFns[0](domain.BookSnapshot{AssetID: "tok-up", MidPrice: 0})
	assert.Equal(t, 1, loop.Prices().HistoryCount(domain.SideUp))
}

func TestLoop_StopIsIdempotent(t *testing.T) {
	fm := newFakeMarket()
	ft := &fakeTrader{}
	loop := newTestLoop(t, Config{}, fm, ft, nil, nil)

	require.NoError(t, loop.Start(context.Background()))
	loop.Stop()
	loop.Stop()
	assert.Equal(t, 1, fm.stopped)
}
