package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// FlashCrashConfig tunes the mean reversion entry.
type FlashCrashConfig struct {
	DropThreshold float64       // minimum drop from window high to latest, in price
	Lookback      time.Duration // window the high is searched in
	Cooldown      time.Duration // minimum gap between entries on the same side
}

func (c *FlashCrashConfig) applyDefaults() {
	if c.DropThreshold <= 0 {
		c.DropThreshold = 0.30
	}
	if c.Lookback <= 0 {
		c.Lookback = time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
}

// FlashCrash buys a side whose price collapses inside the lookback window,
// betting on reversion before the window resolves. Exits are the loop's
// take profit / stop loss machinery; this strategy only opens.
type FlashCrash struct {
	cfg    FlashCrashConfig
	loop   *Loop
	logger *slog.Logger

	mu       sync.Mutex
	lastFire map[string]time.Time
}

func NewFlashCrash(cfg FlashCrashConfig, logger *slog.Logger) *FlashCrash {
	cfg.applyDefaults()
	return &FlashCrash{
		cfg:      cfg,
		logger:   logger.With("component", "flash_crash"),
		lastFire: make(map[string]time.Time),
	}
}

// Bind attaches the strategy to its loop. Must be called before Start.
func (f *FlashCrash) Bind(loop *Loop) { f.loop = loop }

func (f *FlashCrash) Name() string { return "flash_crash" }

func (f *FlashCrash) OnBookUpdate(ctx context.Context, snap domain.BookSnapshot) {}

// OnTick scans both sides for a qualifying drop and enters on the collapsed
// side. One entry per side per cooldown window.
func (f *FlashCrash) OnTick(ctx context.Context, prices map[string]float64) {
	for _, side := range []string{domain.SideUp, domain.SideDown} {
		mv, ok := f.loop.Prices().DetectDrop(side, f.cfg.DropThreshold, f.cfg.Lookback)
		if !ok {
			continue
		}
		if !f.armFire(side) {
			continue
		}
		f.logger.Info("flash move detected",
			"side", side, "from", mv.From, "to", mv.To, "dropped", mv.Dropped)
		if _, err := f.loop.ExecuteBuy(ctx, side); err != nil {
			f.logger.Warn("entry skipped", "side", side, "error", err)
		}
	}
}

// armFire marks an attempt on side unless one happened within the cooldown.
func (f *FlashCrash) armFire(side string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.lastFire[side]; ok && time.Since(last) < f.cfg.Cooldown {
		return false
	}
	f.lastFire[side] = time.Now()
	return true
}

// OnMarketChange resets the per side cooldowns for the fresh window.
func (f *FlashCrash) OnMarketChange(oldSlug, newSlug string) {
	f.mu.Lock()
	f.lastFire = make(map[string]time.Time)
	f.mu.Unlock()
}

func (f *FlashCrash) RenderStatus(prices map[string]float64) string {
	var parts []string
	for _, side := range []string{domain.SideUp, domain.SideDown} {
		vol := f.loop.Prices().Volatility(side, f.cfg.Lookback)
		parts = append(parts, fmt.Sprintf("%s vol %.4f (%d pts)",
			side, vol, f.loop.Prices().HistoryCount(side)))
	}
	return strings.Join(parts, " | ")
}
