package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/hedgebot/internal/blob/s3"
	"github.com/alanyoungcy/hedgebot/internal/cache/redis"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes share. Optional parts
// are nil when their backend is disabled for the mode.
type Dependencies struct {
	// Stores
	Records domain.OrderRecordStore
	Audit   domain.AuditStore

	// Caches and bus
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Balances    domain.BalanceCache

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Bridge credentials; nil outside engine modes.
	Signer *crypto.RequestSigner

	Notifier *notify.Notifier
}

func runsEngine(mode string) bool {
	mode = strings.ToLower(mode)
	return mode == "full" || mode == "engine"
}

func needsPostgres(cfg *config.Config) bool {
	return cfg.Postgres.Enabled || strings.EqualFold(cfg.Mode, "archive")
}

func needsS3(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "archive":
		return true
	case "full", "server":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// Wire constructs every backend the configured mode needs and returns a
// cleanup function releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Bridge secret ---
	if runsEngine(cfg.Mode) {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			Plain:         cfg.Bridge.APISecret,
			EncryptedPath: cfg.Bridge.EncryptedSecretPath,
			Password:      cfg.Bridge.SecretPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: bridge secret: %w", err))
		}
		deps.Signer = crypto.NewRequestSigner(cfg.Bridge.APIKey, secret)
		logger.InfoContext(ctx, "bridge credentials loaded", slog.String("signer", deps.Signer.String()))
	}

	// --- PostgreSQL ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.Records = postgres.NewOrderRecordStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		Namespace:  cfg.Redis.Namespace,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SignalBus = redis.NewEventBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Balances = redis.NewBalanceCache(redisClient)

	// --- S3 ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		if deps.Records != nil {
			deps.Archiver = s3blob.NewRecordArchiver(s3blob.NewWriter(s3Client), deps.Records, deps.Audit, logger)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
