// Package config defines the bot's configuration and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration. Fields are populated from a TOML file
// merged over Defaults(), then overridden by UPDOWN_* environment variables.
type Config struct {
	Market     MarketConfig     `toml:"market"`
	Trading    TradingConfig    `toml:"trading"`
	Prices     PricesConfig     `toml:"prices"`
	FlashCrash FlashCrashConfig `toml:"flash_crash"`
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	LogLevel   string           `toml:"log_level"`
}

// MarketConfig controls market discovery and rollover.
type MarketConfig struct {
	Coin          string   `toml:"coin"`
	AutoSwitch    bool     `toml:"auto_switch"`
	CheckInterval duration `toml:"check_interval"`
	DataTimeout   duration `toml:"data_timeout"`
}

// TradingConfig holds position sizing and exit thresholds. TakeProfit and
// StopLoss are fractions of position cost.
type TradingConfig struct {
	DryRun          bool     `toml:"dry_run"`
	OrderNotional   float64  `toml:"order_notional"`
	MaxPositions    int      `toml:"max_positions"`
	TakeProfit      float64  `toml:"take_profit"`
	StopLoss        float64  `toml:"stop_loss"`
	TickInterval    duration `toml:"tick_interval"`
	RefreshInterval duration `toml:"refresh_interval"`
	OrderMaxAge     duration `toml:"order_max_age"`
	OrderType       string   `toml:"order_type"`
}

// PricesConfig bounds the in-memory price history.
type PricesConfig struct {
	Lookback   duration `toml:"lookback"`
	MaxHistory int      `toml:"max_history"`
}

// FlashCrashConfig tunes the flash crash entry signal.
type FlashCrashConfig struct {
	DropThreshold float64  `toml:"drop_threshold"`
	Lookback      duration `toml:"lookback"`
	Cooldown      duration `toml:"cooldown"`
}

// WalletConfig holds the trading wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	ChainID   int    `toml:"chain_id"`
}

// RedisConfig holds optional Redis mirroring parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds optional trade journal parameters.
type PostgresConfig struct {
	Enabled  bool   `toml:"enabled"`
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"max_conns"`
}

// S3Config holds optional session archive parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "30s" or "5m".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration a TOML file is merged over.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Coin:          "BTC",
			AutoSwitch:    true,
			CheckInterval: duration{30 * time.Second},
			DataTimeout:   duration{15 * time.Second},
		},
		Trading: TradingConfig{
			DryRun:          true,
			OrderNotional:   10.0,
			MaxPositions:    1,
			TakeProfit:      0.10,
			StopLoss:        0.20,
			TickInterval:    duration{2 * time.Second},
			RefreshInterval: duration{30 * time.Second},
			OrderMaxAge:     duration{2 * time.Minute},
			OrderType:       "GTC",
		},
		Prices: PricesConfig{
			Lookback:   duration{5 * time.Minute},
			MaxHistory: 1000,
		},
		FlashCrash: FlashCrashConfig{
			DropThreshold: 0.30,
			Lookback:      duration{time.Minute},
			Cooldown:      duration{30 * time.Second},
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			ChainID:   137,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "updownbot",
			User:     "postgres",
			SSLMode:  "disable",
			MaxConns: 5,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "updownbot-sessions",
			ForcePathStyle: true,
		},
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCoins = map[string]bool{
	"BTC": true,
	"ETH": true,
	"SOL": true,
	"XRP": true,
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if !validCoins[strings.ToUpper(c.Market.Coin)] {
		errs = append(errs, fmt.Sprintf("market: unsupported coin %q (valid: BTC, ETH, SOL, XRP)", c.Market.Coin))
	}
	if c.Market.CheckInterval.Duration <= 0 {
		errs = append(errs, "market: check_interval must be positive")
	}

	if c.Trading.OrderNotional <= 0 {
		errs = append(errs, "trading: order_notional must be positive")
	}
	if c.Trading.MaxPositions < 0 {
		errs = append(errs, "trading: max_positions must not be negative")
	}
	if c.Trading.TakeProfit <= 0 {
		errs = append(errs, "trading: take_profit must be positive")
	}
	if c.Trading.StopLoss <= 0 {
		errs = append(errs, "trading: stop_loss must be positive")
	}
	if c.Trading.TickInterval.Duration <= 0 {
		errs = append(errs, "trading: tick_interval must be positive")
	}
	switch c.Trading.OrderType {
	case "GTC", "GTD", "FOK", "FAK":
	default:
		errs = append(errs, fmt.Sprintf("trading: unknown order_type %q (valid: GTC, GTD, FOK, FAK)", c.Trading.OrderType))
	}

	if c.Prices.Lookback.Duration <= 0 {
		errs = append(errs, "prices: lookback must be positive")
	}
	if c.Prices.MaxHistory <= 0 {
		errs = append(errs, "prices: max_history must be positive")
	}

	if c.FlashCrash.DropThreshold <= 0 || c.FlashCrash.DropThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("flash_crash: drop_threshold must be in (0, 1), got %g", c.FlashCrash.DropThreshold))
	}
	if c.FlashCrash.Lookback.Duration <= 0 {
		errs = append(errs, "flash_crash: lookback must be positive")
	}

	// wallet only matters when real orders go out
	if !c.Trading.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set when dry_run is off")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
