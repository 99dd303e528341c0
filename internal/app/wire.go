package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/updownbot/internal/blob/s3"
	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/cache/redis"
	"github.com/alanyoungcy/updownbot/internal/config"
	"github.com/alanyoungcy/updownbot/internal/crypto"
	"github.com/alanyoungcy/updownbot/internal/execution"
	"github.com/alanyoungcy/updownbot/internal/feed"
	"github.com/alanyoungcy/updownbot/internal/market"
	"github.com/alanyoungcy/updownbot/internal/platform/polymarket"
	"github.com/alanyoungcy/updownbot/internal/store/postgres"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// Dependencies bundles everything the trading session needs. Optional
// adapters (redis, postgres, s3) are nil when disabled in configuration.
type Dependencies struct {
	Market *market.Controller
	Trader strategy.Trader

	// Live-only: used for the shutdown cancel sweep. Nil in dry-run.
	LiveTrader *execution.Trader

	PriceMirror *redis.PriceMirror
	TradeBus    *redis.TradeBus
	Journal     *postgres.TradeJournal
	Archiver    *s3blob.Archiver
}

// Wire constructs the concrete dependency graph from configuration and
// returns it with a cleanup function that releases connections in reverse
// order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	books := book.NewManager()
	conn := feed.NewConnection(cfg.Polymarket.WsHost, books, logger)
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, logger)
	deps.Market = market.NewController(cfg.Market.Coin, gamma, conn, books, market.Options{
		CheckInterval: cfg.Market.CheckInterval.Duration,
		AutoSwitch:    cfg.Market.AutoSwitch,
	}, logger)

	if cfg.Trading.DryRun {
		deps.Trader = execution.NewPaperTrader(logger)
	} else {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer)
		if err := clob.DeriveAPIKey(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: derive api key: %w", err)
		}
		logger.Info("trading live", slog.String("address", clob.Address()))

		trader := execution.NewTrader(clob, cfg.Trading.OrderType, logger)
		deps.Trader = trader
		deps.LiveTrader = trader
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceMirror = redis.NewPriceMirror(redisClient)
		deps.TradeBus = redis.NewTradeBus(redisClient, logger)
	}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		deps.Journal = postgres.NewTradeJournal(pgClient, logger)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket unreachable, session archiving may fail",
				slog.String("bucket", cfg.S3.Bucket), slog.String("error", err.Error()))
		}

		deps.Archiver = s3blob.NewArchiver(s3Client)
	}

	return deps, cleanup, nil
}

// recorder assembles the Recorder chain from whichever sinks are enabled.
// Returns nil when none are, which the loop treats as a no-op.
func (d *Dependencies) recorder() strategy.Recorder {
	var sinks []strategy.Recorder
	if d.TradeBus != nil {
		sinks = append(sinks, d.TradeBus)
	}
	if d.Journal != nil {
		sinks = append(sinks, d.Journal)
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return multiRecorder(sinks)
	}
}
