// Package config defines the top-level configuration for the ladder bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/ladder"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYLADDER_* environment variables.
type Config struct {
	Wallet       WalletConfig       `toml:"wallet"`
	Polymarket   PolymarketConfig   `toml:"polymarket"`
	Chain        ChainConfig        `toml:"chain"`
	Ladder       LadderConfig       `toml:"ladder"`
	Executor     ExecutorConfig     `toml:"executor"`
	Redemption   RedemptionConfig   `toml:"redemption"`
	Schedule     ScheduleConfig     `toml:"schedule"`
	Discovery    DiscoveryConfig    `toml:"discovery"`
	FillListener FillListenerConfig `toml:"fill_listener"`
	State        StateConfig        `toml:"state"`
	Storage      StorageConfig      `toml:"storage"`
	Redis        RedisConfig        `toml:"redis"`
	Postgres     PostgresConfig     `toml:"postgres"`
	S3           S3Config           `toml:"s3"`
	Snapshot     SnapshotConfig     `toml:"snapshot"`
	Server       ServerConfig       `toml:"server"`
	Notify       NotifyConfig       `toml:"notify"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// WalletConfig holds the signing key and, for proxy or Safe wallets, the
// address that holds funds.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	Funder           string `toml:"funder"`
}

// PolymarketConfig holds Polymarket API endpoints and order-signing
// parameters. Empty API credentials are derived from the wallet at startup.
type PolymarketConfig struct {
	ClobHost       string   `toml:"clob_host"`
	GammaHost      string   `toml:"gamma_host"`
	WSUserURL      string   `toml:"ws_user_url"`
	ChainID        int      `toml:"chain_id"`
	SignatureType  int      `toml:"signature_type"`
	FeeRateBps     int      `toml:"fee_rate_bps"`
	RequestTimeout duration `toml:"request_timeout"`
	APIKey         string   `toml:"api_key"`
	APISecret      string   `toml:"api_secret"`
	APIPassphrase  string   `toml:"api_passphrase"`
}

// ChainConfig holds the Polygon RPC endpoint and contract addresses used for
// redemption.
type ChainConfig struct {
	RPCURL              string   `toml:"rpc_url"`
	CTFAddress          string   `toml:"ctf_address"`
	CollateralAddresses []string `toml:"collateral_addresses"`
	ProxyFactory        string   `toml:"proxy_factory"`
	RequestTimeout      duration `toml:"request_timeout"`
	ReceiptTimeout      duration `toml:"receipt_timeout"`
	FallbackGasLimit    uint64   `toml:"fallback_gas_limit"`
}

// LadderConfig is the order-ladder policy. Prices and sizes are decimal
// strings, e.g. price_start = "0.05".
type LadderConfig struct {
	CountPerSide int             `toml:"count_per_side"`
	PriceStart   decimal.Decimal `toml:"price_start"`
	PriceStep    decimal.Decimal `toml:"price_step"`
	SizeStart    decimal.Decimal `toml:"size_start"`
	SizeStep     decimal.Decimal `toml:"size_step"`
	Side         string          `toml:"side"`
	TimeInForce  string          `toml:"time_in_force"`
	CancelAfter  duration        `toml:"cancel_after"`
}

// Policy converts the section into a ladder.Policy.
func (l LadderConfig) Policy() ladder.Policy {
	return ladder.Policy{
		CountPerSide: l.CountPerSide,
		PriceStart:   l.PriceStart,
		PriceStep:    l.PriceStep,
		SizeStart:    l.SizeStart,
		SizeStep:     l.SizeStep,
		Side:         domain.OrderSide(strings.ToUpper(l.Side)),
		TimeInForce:  domain.TimeInForce(strings.ToUpper(l.TimeInForce)),
		CancelAfter:  l.CancelAfter.Duration,
	}
}

// ExecutorConfig controls batch submission.
type ExecutorConfig struct {
	BatchSize        int      `toml:"batch_size"`
	BatchesPerSecond float64  `toml:"batches_per_second"`
	DedupTTL         duration `toml:"dedup_ttl"`
}

// RedemptionConfig controls the settlement sweep.
type RedemptionConfig struct {
	Enabled       bool     `toml:"enabled"`
	Delay         duration `toml:"delay"`
	SweepInterval duration `toml:"sweep_interval"`
	LockTTL       duration `toml:"lock_ttl"`
	RecordTimeout duration `toml:"record_timeout"`
}

// ScheduleConfig controls the placement loop.
type ScheduleConfig struct {
	Tick          duration `toml:"tick"`
	CycleInterval duration `toml:"cycle_interval"`
	WindowLength  duration `toml:"window_length"`
}

// DiscoveryConfig selects which recurring markets are laddered.
type DiscoveryConfig struct {
	TagSlug string `toml:"tag_slug"`
	Needle  string `toml:"needle"`
	Limit   int    `toml:"limit"`
}

// FillListenerConfig controls the user-channel subscription.
type FillListenerConfig struct {
	HeartbeatInterval duration `toml:"heartbeat_interval"`
}

// StateConfig holds local file locations.
type StateConfig struct {
	SQLitePath  string `toml:"sqlite_path"`
	CounterPath string `toml:"counter_path"`
	SnapshotDir string `toml:"snapshot_dir"`
}

// StorageConfig selects the ledger and settlement backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds the audit-log database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SnapshotConfig controls periodic ledger snapshots. A zero interval
// disables them.
type SnapshotConfig struct {
	Interval duration `toml:"interval"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the read-only status endpoint parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	APIKey            string   `toml:"api_key"`
	CORSOrigins       []string `toml:"cors_origins"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// Addr is the listen address for the status server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:       "https://clob.polymarket.com",
			GammaHost:      "https://gamma-api.polymarket.com",
			WSUserURL:      "wss://ws-subscriptions-clob.polymarket.com/ws/user",
			ChainID:        137,
			SignatureType:  0,
			RequestTimeout: duration{20 * time.Second},
		},
		Chain: ChainConfig{
			RPCURL:              "https://polygon-rpc.com",
			CTFAddress:          "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045",
			CollateralAddresses: []string{"0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"},
			ProxyFactory:        "0xaB45c5A4B0c941a2F231C04C3f49182e1A254052",
			RequestTimeout:      duration{30 * time.Second},
			ReceiptTimeout:      duration{2 * time.Minute},
			FallbackGasLimit:    300_000,
		},
		Ladder: LadderConfig{
			CountPerSide: 5,
			PriceStart:   decimal.RequireFromString("0.05"),
			PriceStep:    decimal.RequireFromString("-0.01"),
			SizeStart:    decimal.NewFromInt(10),
			SizeStep:     decimal.Zero,
			Side:         "BUY",
			TimeInForce:  "GTD",
			CancelAfter:  duration{8 * time.Minute},
		},
		Executor: ExecutorConfig{
			BatchSize:        15,
			BatchesPerSecond: 2,
			DedupTTL:         duration{30 * time.Minute},
		},
		Redemption: RedemptionConfig{
			Enabled:       true,
			Delay:         duration{4 * time.Hour},
			SweepInterval: duration{30 * time.Minute},
			LockTTL:       duration{10 * time.Minute},
			RecordTimeout: duration{5 * time.Minute},
		},
		Schedule: ScheduleConfig{
			Tick:          duration{time.Minute},
			CycleInterval: duration{3*time.Hour + time.Minute},
			WindowLength:  duration{15 * time.Minute},
		},
		Discovery: DiscoveryConfig{
			TagSlug: "15M",
			Needle:  "btc-up-or-down",
			Limit:   100,
		},
		FillListener: FillListenerConfig{
			HeartbeatInterval: duration{10 * time.Second},
		},
		State: StateConfig{
			SQLitePath:  "data/polyladder.db",
			CounterPath: "data/order_count_state.json",
			SnapshotDir: "data/snapshots",
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "polyladder",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyladder-data",
			ForcePathStyle: true,
		},
		Snapshot: SnapshotConfig{
			Interval: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000"},
			RequestsPerSecond: 5,
		},
		Notify: NotifyConfig{
			Events: []string{"ladder_placed", "order_filled", "redeemed", "ledger_error", "listener_down"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"place":   true,
	"cancel":  true,
	"listen":  true,
	"redeem":  true,
	"capture": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsChain reports whether the mode talks to the RPC endpoint.
func (c *Config) NeedsChain() bool {
	switch strings.ToLower(c.Mode) {
	case "redeem":
		return true
	case "full":
		return c.Redemption.Enabled
	}
	return false
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, place, cancel, listen, redeem, capture)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet. Capture only writes local state.
	if strings.ToLower(c.Mode) != "capture" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}
	if c.Wallet.Funder != "" && !common.IsHexAddress(c.Wallet.Funder) {
		errs = append(errs, fmt.Sprintf("wallet: funder %q is not an address", c.Wallet.Funder))
	}

	// Polymarket
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}
	if c.Polymarket.SignatureType != 0 && c.Wallet.Funder == "" {
		errs = append(errs, "wallet: funder is required when signature_type is 1 or 2")
	}
	ak := c.Polymarket.APIKey != ""
	as := c.Polymarket.APISecret != ""
	ap := c.Polymarket.APIPassphrase != ""
	if (ak || as || ap) && !(ak && as && ap) {
		errs = append(errs, "polymarket: api_key, api_secret, and api_passphrase must all be set together")
	}

	// Chain
	if c.NeedsChain() {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if len(c.Chain.CollateralAddresses) == 0 {
			errs = append(errs, "chain: collateral_addresses must not be empty")
		}
	}
	for _, addr := range append([]string{c.Chain.CTFAddress, c.Chain.ProxyFactory}, c.Chain.CollateralAddresses...) {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Sprintf("chain: %q is not an address", addr))
		}
	}

	// Ladder
	if err := c.Ladder.Policy().Validate(); err != nil {
		errs = append(errs, "ladder: "+err.Error())
	}

	// Executor
	if c.Executor.BatchSize < 1 {
		errs = append(errs, "executor: batch_size must be >= 1")
	}
	if c.Executor.BatchesPerSecond < 0 {
		errs = append(errs, "executor: batches_per_second must be >= 0")
	}

	// Redemption
	if c.Redemption.Delay.Duration < 0 {
		errs = append(errs, "redemption: delay must be >= 0")
	}
	if c.Redemption.Enabled && c.Redemption.SweepInterval.Duration <= 0 {
		errs = append(errs, "redemption: sweep_interval must be > 0 when enabled")
	}
	if rt := c.Redemption.RecordTimeout.Duration; rt > 0 && rt <= c.Chain.ReceiptTimeout.Duration {
		errs = append(errs, "redemption: record_timeout must exceed chain.receipt_timeout")
	}

	// Schedule
	if c.Schedule.Tick.Duration <= 0 {
		errs = append(errs, "schedule: tick must be > 0")
	}
	if c.Schedule.CycleInterval.Duration <= 0 {
		errs = append(errs, "schedule: cycle_interval must be > 0")
	}
	if c.Schedule.WindowLength.Duration <= 0 {
		errs = append(errs, "schedule: window_length must be > 0")
	}

	// Storage
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.State.SQLitePath == "" {
			errs = append(errs, "state: sqlite_path must not be empty for the sqlite backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty for the redis backend")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: sqlite, redis)", c.Storage.Backend))
	}
	if c.State.CounterPath == "" {
		errs = append(errs, "state: counter_path must not be empty")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}
	if c.Snapshot.Interval.Duration < 0 {
		errs = append(errs, "snapshot: interval must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
