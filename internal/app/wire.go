package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/polyladder/internal/blob/s3"
	"github.com/alanyoungcy/polyladder/internal/cache/redis"
	"github.com/alanyoungcy/polyladder/internal/config"
	"github.com/alanyoungcy/polyladder/internal/crypto"
	"github.com/alanyoungcy/polyladder/internal/domain"
	"github.com/alanyoungcy/polyladder/internal/notify"
	"github.com/alanyoungcy/polyladder/internal/platform/ctf"
	"github.com/alanyoungcy/polyladder/internal/platform/polymarket"
	"github.com/alanyoungcy/polyladder/internal/service"
	"github.com/alanyoungcy/polyladder/internal/state"
	"github.com/alanyoungcy/polyladder/internal/store/postgres"
	"github.com/alanyoungcy/polyladder/internal/store/sqlite"
)

// Dependencies bundles the stores and sinks every mode shares. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger      domain.OrderLedger
	Settlements domain.SettlementStore
	Locks       domain.LockManager
	Counter     *state.Counter

	// Optional; nil when the backing service is disabled.
	Audit    domain.AuditStore
	Uploader service.SnapshotUploader

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Counter: state.NewCounter(cfg.State.CounterPath),
	}

	// --- Ledger and settlement backend ---
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		prefix := cfg.Redis.KeyPrefix
		if prefix != "" && !strings.HasSuffix(prefix, ":") {
			prefix += ":"
		}
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Ledger = redis.NewLedgerStore(redisClient)
		deps.Settlements = redis.NewSettlementStore(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)

	default:
		db, err := sqlite.Open(ctx, cfg.State.SQLitePath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		deps.Ledger = sqlite.NewLedgerStore(db)
		deps.Settlements = sqlite.NewSettlementStore(db)
		deps.Locks = service.NewLocalLock()
	}

	// --- PostgreSQL audit log ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.Audit = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- S3 snapshot upload ---
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
			logger.WarnContext(ctx, "s3 bucket not reachable, uploads may fail",
				slog.String("bucket", s3Client.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		deps.Uploader = s3blob.NewSnapshotUploader(s3blob.NewWriter(s3Client))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// exchange holds the authenticated trading clients.
type exchange struct {
	signer *crypto.Signer
	clob   *polymarket.ClobClient
	gamma  *polymarket.GammaClient
}

// newSigner loads the wallet key and builds the signer.
func newSigner(cfg *config.Config) (*crypto.Signer, error) {
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: wallet: %w", err)
	}
	signer, err := crypto.NewSigner(key, int64(cfg.Polymarket.ChainID))
	if err != nil {
		return nil, fmt.Errorf("wire: signer: %w", err)
	}
	return signer, nil
}

// connectExchange builds the CLOB and Gamma clients and installs L2
// credentials, deriving them when none are configured.
func connectExchange(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*exchange, error) {
	signer, err := newSigner(cfg)
	if err != nil {
		return nil, err
	}
	builder, err := polymarket.NewOrderBuilder(signer, polymarket.OrderBuilderConfig{
		SignatureType: cfg.Polymarket.SignatureType,
		Funder:        cfg.Wallet.Funder,
		FeeRateBps:    cfg.Polymarket.FeeRateBps,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: order builder: %w", err)
	}

	timeout := cfg.Polymarket.RequestTimeout.Duration
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, builder, timeout)

	creds := crypto.APICreds{
		Key:        cfg.Polymarket.APIKey,
		Secret:     cfg.Polymarket.APISecret,
		Passphrase: cfg.Polymarket.APIPassphrase,
	}
	if creds.Valid() {
		clob.SetCreds(creds)
	} else {
		if _, err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
		logger.InfoContext(ctx, "derived api credentials", slog.String("address", signer.Address().Hex()))
	}

	return &exchange{
		signer: signer,
		clob:   clob,
		gamma:  polymarket.NewGammaClient(cfg.Polymarket.GammaHost, timeout),
	}, nil
}

// dialChain connects the conditional-tokens client used for redemption.
func dialChain(ctx context.Context, cfg *config.Config, signer *crypto.Signer, logger *slog.Logger) (*ctf.Client, error) {
	chainCfg := ctf.Config{
		CTFAddress:       cfg.Chain.CTFAddress,
		ProxyFactory:     cfg.Chain.ProxyFactory,
		FallbackGasLimit: cfg.Chain.FallbackGasLimit,
		CallTimeout:      cfg.Chain.RequestTimeout.Duration,
		ReceiptTimeout:   cfg.Chain.ReceiptTimeout.Duration,
	}
	switch cfg.Polymarket.SignatureType {
	case polymarket.SignatureTypePolyProxy:
		chainCfg.UseProxy = true
		chainCfg.Holder = cfg.Wallet.Funder
	case polymarket.SignatureTypeGnosisSafe:
		logger.WarnContext(ctx, "redemption reads balances of the signing address; positions held by the safe are not redeemed",
			slog.String("funder", cfg.Wallet.Funder),
		)
	}

	client, err := ctf.Dial(ctx, cfg.Chain.RPCURL, signer, chainCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return client, nil
}
