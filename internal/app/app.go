// Package app wires the trading session together: market controller, feed,
// strategy loop, execution, and the optional redis/postgres/s3 adapters. It
// owns startup order, graceful shutdown, and the end-of-session archive.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/position"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates an App from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies, starts the strategy loop, and blocks until the
// context is cancelled. Shutdown cancels resting orders (live mode) and
// archives the session before releasing connections.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting session",
		slog.String("coin", a.cfg.Market.Coin),
		slog.Bool("dry_run", a.cfg.Trading.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	defer cleanup()

	prices := strategy.NewPriceTracker(a.cfg.Prices.Lookback.Duration, a.cfg.Prices.MaxHistory)
	positions := position.NewTracker(a.cfg.Trading.TakeProfit, a.cfg.Trading.StopLoss)

	flash := strategy.NewFlashCrash(strategy.FlashCrashConfig{
		DropThreshold: a.cfg.FlashCrash.DropThreshold,
		Lookback:      a.cfg.FlashCrash.Lookback.Duration,
		Cooldown:      a.cfg.FlashCrash.Cooldown.Duration,
	}, a.logger)

	loop := strategy.NewLoop(strategy.Config{
		TickInterval:    a.cfg.Trading.TickInterval.Duration,
		OrderNotional:   a.cfg.Trading.OrderNotional,
		MaxPositions:    a.cfg.Trading.MaxPositions,
		RefreshInterval: a.cfg.Trading.RefreshInterval.Duration,
		OrderMaxAge:     a.cfg.Trading.OrderMaxAge.Duration,
		DataTimeout:     a.cfg.Market.DataTimeout.Duration,
	}, deps.Market, deps.Trader, prices, positions, flash, deps.recorder(), a.logger)
	flash.Bind(loop)

	if deps.PriceMirror != nil {
		mirror := deps.PriceMirror
		deps.Market.OnBookUpdate(func(snap domain.BookSnapshot) {
			mctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := mirror.SetMid(mctx, snap.AssetID, snap.MidPrice, snap.ObservedAt); err != nil {
				a.logger.Debug("price mirror write failed", slog.String("error", err.Error()))
			}
		})
	}

	startedAt := time.Now()
	if err := loop.Start(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		loop.Stop()
		return nil
	})

	err = g.Wait()
	a.shutdown(deps, flash.Name(), startedAt, positions)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// shutdown runs the post-loop teardown under its own deadline: cancel the
// live order sweep and upload the session archive.
func (a *App) shutdown(deps *Dependencies, stratName string, startedAt time.Time, positions *position.Tracker) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if deps.LiveTrader != nil {
		if err := deps.LiveTrader.CancelAll(ctx); err != nil {
			a.logger.Warn("cancel sweep failed", slog.String("error", err.Error()))
		}
	}

	if deps.Archiver != nil {
		key, err := deps.Archiver.ArchiveSession(ctx, a.cfg.Market.Coin, stratName,
			startedAt, positions.Stats(), positions.ClosedPositions())
		if err != nil {
			a.logger.Warn("session archive failed", slog.String("error", err.Error()))
		} else {
			a.logger.Info("session archived", slog.String("key", key))
		}
	}
}
