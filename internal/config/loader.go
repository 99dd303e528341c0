package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path, merges it over Defaults(), and applies
// UPDOWN_* environment overrides. Validation is the caller's job.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// pick up a .env file when present
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields from well-known UPDOWN_* variables so
// operators can inject secrets without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Market.Coin, "UPDOWN_MARKET_COIN")
	setBool(&cfg.Market.AutoSwitch, "UPDOWN_MARKET_AUTO_SWITCH")
	setDuration(&cfg.Market.CheckInterval, "UPDOWN_MARKET_CHECK_INTERVAL")
	setDuration(&cfg.Market.DataTimeout, "UPDOWN_MARKET_DATA_TIMEOUT")

	setBool(&cfg.Trading.DryRun, "UPDOWN_TRADING_DRY_RUN")
	setFloat64(&cfg.Trading.OrderNotional, "UPDOWN_TRADING_ORDER_NOTIONAL")
	setInt(&cfg.Trading.MaxPositions, "UPDOWN_TRADING_MAX_POSITIONS")
	setFloat64(&cfg.Trading.TakeProfit, "UPDOWN_TRADING_TAKE_PROFIT")
	setFloat64(&cfg.Trading.StopLoss, "UPDOWN_TRADING_STOP_LOSS")
	setDuration(&cfg.Trading.TickInterval, "UPDOWN_TRADING_TICK_INTERVAL")
	setDuration(&cfg.Trading.RefreshInterval, "UPDOWN_TRADING_REFRESH_INTERVAL")
	setDuration(&cfg.Trading.OrderMaxAge, "UPDOWN_TRADING_ORDER_MAX_AGE")
	setStr(&cfg.Trading.OrderType, "UPDOWN_TRADING_ORDER_TYPE")

	setDuration(&cfg.Prices.Lookback, "UPDOWN_PRICES_LOOKBACK")
	setInt(&cfg.Prices.MaxHistory, "UPDOWN_PRICES_MAX_HISTORY")

	setFloat64(&cfg.FlashCrash.DropThreshold, "UPDOWN_FLASH_CRASH_DROP_THRESHOLD")
	setDuration(&cfg.FlashCrash.Lookback, "UPDOWN_FLASH_CRASH_LOOKBACK")
	setDuration(&cfg.FlashCrash.Cooldown, "UPDOWN_FLASH_CRASH_COOLDOWN")

	setStr(&cfg.Wallet.PrivateKey, "UPDOWN_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "UPDOWN_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "UPDOWN_WALLET_KEY_PASSWORD")

	setStr(&cfg.Polymarket.ClobHost, "UPDOWN_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "UPDOWN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "UPDOWN_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "UPDOWN_POLYMARKET_CHAIN_ID")

	setBool(&cfg.Redis.Enabled, "UPDOWN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "UPDOWN_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWN_REDIS_TLS_ENABLED")

	setBool(&cfg.Postgres.Enabled, "UPDOWN_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "UPDOWN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.MaxConns, "UPDOWN_POSTGRES_MAX_CONNS")

	setBool(&cfg.S3.Enabled, "UPDOWN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "UPDOWN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "UPDOWN_S3_REGION")
	setStr(&cfg.S3.Bucket, "UPDOWN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "UPDOWN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "UPDOWN_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "UPDOWN_S3_FORCE_PATH_STYLE")

	setStr(&cfg.LogLevel, "UPDOWN_LOG_LEVEL")
}

// Typed env helpers. Each mutates its target only when the variable is set
// and parses cleanly.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
