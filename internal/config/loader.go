package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path (skipped when empty), merges it on top of the
// built-in defaults, applies POLYLADDER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYLADDER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYLADDER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYLADDER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYLADDER_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.Funder, "POLYLADDER_WALLET_FUNDER")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYLADDER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYLADDER_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WSUserURL, "POLYLADDER_POLYMARKET_WS_USER_URL")
	setInt(&cfg.Polymarket.ChainID, "POLYLADDER_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYLADDER_POLYMARKET_SIGNATURE_TYPE")
	setInt(&cfg.Polymarket.FeeRateBps, "POLYLADDER_POLYMARKET_FEE_RATE_BPS")
	setDuration(&cfg.Polymarket.RequestTimeout, "POLYLADDER_POLYMARKET_REQUEST_TIMEOUT")
	setStr(&cfg.Polymarket.APIKey, "POLYLADDER_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "POLYLADDER_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "POLYLADDER_POLYMARKET_API_PASSPHRASE")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLYLADDER_CHAIN_RPC_URL")
	setStr(&cfg.Chain.CTFAddress, "POLYLADDER_CHAIN_CTF_ADDRESS")
	setStringSlice(&cfg.Chain.CollateralAddresses, "POLYLADDER_CHAIN_COLLATERAL_ADDRESSES")
	setStr(&cfg.Chain.ProxyFactory, "POLYLADDER_CHAIN_PROXY_FACTORY")
	setDuration(&cfg.Chain.RequestTimeout, "POLYLADDER_CHAIN_REQUEST_TIMEOUT")
	setDuration(&cfg.Chain.ReceiptTimeout, "POLYLADDER_CHAIN_RECEIPT_TIMEOUT")

	// ── Ladder ──
	setInt(&cfg.Ladder.CountPerSide, "POLYLADDER_LADDER_COUNT_PER_SIDE")
	setDecimal(&cfg.Ladder.PriceStart, "POLYLADDER_LADDER_PRICE_START")
	setDecimal(&cfg.Ladder.PriceStep, "POLYLADDER_LADDER_PRICE_STEP")
	setDecimal(&cfg.Ladder.SizeStart, "POLYLADDER_LADDER_SIZE_START")
	setDecimal(&cfg.Ladder.SizeStep, "POLYLADDER_LADDER_SIZE_STEP")
	setStr(&cfg.Ladder.Side, "POLYLADDER_LADDER_SIDE")
	setStr(&cfg.Ladder.TimeInForce, "POLYLADDER_LADDER_TIME_IN_FORCE")
	setDuration(&cfg.Ladder.CancelAfter, "POLYLADDER_LADDER_CANCEL_AFTER")

	// ── Executor ──
	setInt(&cfg.Executor.BatchSize, "POLYLADDER_EXECUTOR_BATCH_SIZE")
	setFloat64(&cfg.Executor.BatchesPerSecond, "POLYLADDER_EXECUTOR_BATCHES_PER_SECOND")
	setDuration(&cfg.Executor.DedupTTL, "POLYLADDER_EXECUTOR_DEDUP_TTL")

	// ── Redemption ──
	setBool(&cfg.Redemption.Enabled, "POLYLADDER_REDEMPTION_ENABLED")
	setDuration(&cfg.Redemption.Delay, "POLYLADDER_REDEMPTION_DELAY")
	setDuration(&cfg.Redemption.SweepInterval, "POLYLADDER_REDEMPTION_SWEEP_INTERVAL")
	setDuration(&cfg.Redemption.LockTTL, "POLYLADDER_REDEMPTION_LOCK_TTL")
	setDuration(&cfg.Redemption.RecordTimeout, "POLYLADDER_REDEMPTION_RECORD_TIMEOUT")

	// ── Schedule / discovery ──
	setDuration(&cfg.Schedule.Tick, "POLYLADDER_SCHEDULE_TICK")
	setDuration(&cfg.Schedule.CycleInterval, "POLYLADDER_SCHEDULE_CYCLE_INTERVAL")
	setDuration(&cfg.Schedule.WindowLength, "POLYLADDER_SCHEDULE_WINDOW_LENGTH")
	setStr(&cfg.Discovery.TagSlug, "POLYLADDER_DISCOVERY_TAG_SLUG")
	setStr(&cfg.Discovery.Needle, "POLYLADDER_DISCOVERY_NEEDLE")
	setInt(&cfg.Discovery.Limit, "POLYLADDER_DISCOVERY_LIMIT")
	setDuration(&cfg.FillListener.HeartbeatInterval, "POLYLADDER_FILL_LISTENER_HEARTBEAT_INTERVAL")

	// ── State / storage ──
	setStr(&cfg.State.SQLitePath, "POLYLADDER_STATE_SQLITE_PATH")
	setStr(&cfg.State.CounterPath, "POLYLADDER_STATE_COUNTER_PATH")
	setStr(&cfg.State.SnapshotDir, "POLYLADDER_STATE_SNAPSHOT_DIR")
	setStr(&cfg.Storage.Backend, "POLYLADDER_STORAGE_BACKEND")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYLADDER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYLADDER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYLADDER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYLADDER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYLADDER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYLADDER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "POLYLADDER_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYLADDER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYLADDER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYLADDER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYLADDER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYLADDER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYLADDER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYLADDER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYLADDER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYLADDER_POSTGRES_POOL_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYLADDER_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYLADDER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYLADDER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYLADDER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYLADDER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYLADDER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYLADDER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYLADDER_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.Snapshot.Interval, "POLYLADDER_SNAPSHOT_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYLADDER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYLADDER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYLADDER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYLADDER_SERVER_CORS_ORIGINS")
	setFloat64(&cfg.Server.RequestsPerSecond, "POLYLADDER_SERVER_REQUESTS_PER_SECOND")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYLADDER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYLADDER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYLADDER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYLADDER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYLADDER_MODE")
	setStr(&cfg.LogLevel, "POLYLADDER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
