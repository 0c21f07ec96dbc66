package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path (skipped when empty), merges it on top of the
// built-in defaults, applies HEDGEBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known HEDGEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Bridge ──
	setStr(&cfg.Bridge.APIKey, "HEDGEBOT_BRIDGE_API_KEY")
	setStr(&cfg.Bridge.APISecret, "HEDGEBOT_BRIDGE_API_SECRET")
	setStr(&cfg.Bridge.EncryptedSecretPath, "HEDGEBOT_BRIDGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Bridge.SecretPassword, "HEDGEBOT_BRIDGE_SECRET_PASSWORD")
	setDuration(&cfg.Bridge.Timeout, "HEDGEBOT_BRIDGE_TIMEOUT")
	setFloat64(&cfg.Bridge.RatePerSecond, "HEDGEBOT_BRIDGE_RATE_PER_SECOND")
	setInt(&cfg.Bridge.Burst, "HEDGEBOT_BRIDGE_BURST")
	setInt(&cfg.Bridge.StakePrecision, "HEDGEBOT_BRIDGE_STAKE_PRECISION")
	setStr(&cfg.Bridge.TranslatorEndpoint, "HEDGEBOT_BRIDGE_TRANSLATOR_ENDPOINT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HEDGEBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "HEDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGEBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGEBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGEBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGEBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HEDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGEBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "HEDGEBOT_REDIS_NAMESPACE")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HEDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HEDGEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HEDGEBOT_S3_FORCE_PATH_STYLE")

	// ── Automation ──
	setFloat64(&cfg.Automation.OddsDropThresholdPct, "HEDGEBOT_AUTOMATION_ODDS_DROP_THRESHOLD_PCT")
	setFloat64(&cfg.Automation.SupplementaryTimeoutSec, "HEDGEBOT_AUTOMATION_SUPPLEMENTARY_TIMEOUT_SEC")
	setInt(&cfg.Automation.MaxRetryCount, "HEDGEBOT_AUTOMATION_MAX_RETRY_COUNT")

	// ── Engine ──
	setInt(&cfg.Engine.PendingPollAttempts, "HEDGEBOT_ENGINE_PENDING_POLL_ATTEMPTS")
	setDuration(&cfg.Engine.PendingPollInterval, "HEDGEBOT_ENGINE_PENDING_POLL_INTERVAL")
	setDuration(&cfg.Engine.RetryDelay, "HEDGEBOT_ENGINE_RETRY_DELAY")
	setDuration(&cfg.Engine.BalanceRefreshTimeout, "HEDGEBOT_ENGINE_BALANCE_REFRESH_TIMEOUT")
	setInt(&cfg.Engine.VenueCallsPerWindow, "HEDGEBOT_ENGINE_VENUE_CALLS_PER_WINDOW")
	setDuration(&cfg.Engine.VenueCallWindow, "HEDGEBOT_ENGINE_VENUE_CALL_WINDOW")
	setBool(&cfg.Engine.DistributedLocks, "HEDGEBOT_ENGINE_DISTRIBUTED_LOCKS")
	setDuration(&cfg.Engine.SessionLockTTL, "HEDGEBOT_ENGINE_SESSION_LOCK_TTL")

	// ── Bus ──
	setStr(&cfg.Bus.CommandChannel, "HEDGEBOT_BUS_COMMAND_CHANNEL")
	setStr(&cfg.Bus.EventChannel, "HEDGEBOT_BUS_EVENT_CHANNEL")
	setStr(&cfg.Bus.EventStream, "HEDGEBOT_BUS_EVENT_STREAM")
	setStr(&cfg.Bus.NodeName, "HEDGEBOT_BUS_NODE_NAME")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "HEDGEBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "HEDGEBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "HEDGEBOT_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGEBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HEDGEBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HEDGEBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RequestsPerMinute, "HEDGEBOT_SERVER_REQUESTS_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HEDGEBOT_MODE")
	setStr(&cfg.LogLevel, "HEDGEBOT_LOG_LEVEL")
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
