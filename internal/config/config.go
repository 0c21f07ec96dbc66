// Package config defines the top-level configuration for the hedge engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGEBOT_* environment variables.
type Config struct {
	Bridge     BridgeConfig     `toml:"bridge"`
	Handlers   []HandlerConfig  `toml:"handlers"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Automation AutomationConfig `toml:"automation"`
	Engine     EngineConfig     `toml:"engine"`
	Bus        BusConfig        `toml:"bus"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// BridgeConfig holds the venue automation sidecar credentials. Every account
// session talks to the sidecar instance named by its connection descriptor;
// these values are shared defaults.
type BridgeConfig struct {
	APIKey              string   `toml:"api_key"`
	APISecret           string   `toml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	Timeout             duration `toml:"timeout"`
	RatePerSecond       float64  `toml:"rate_per_second"`
	Burst               int      `toml:"burst"`
	StakePrecision      int      `toml:"stake_precision"`
	// TranslatorEndpoint, when set, serves raw market-id translation.
	TranslatorEndpoint  string   `toml:"translator_endpoint"`
}

// HandlerConfig describes an account session provisioned at startup rather
// than by a handler_status command.
type HandlerConfig struct {
	Name      string `toml:"name"`
	Platform  string `toml:"platform"`
	Endpoint  string `toml:"endpoint"`
	ProfileID string `toml:"profile_id"`
	Account   string `toml:"account"`
}

// PostgresConfig holds PostgreSQL connection parameters. Order record
// persistence and the audit log are skipped when Enabled is false.
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
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	Namespace    string `toml:"namespace"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig tunes the betting engine. The hot-reloadable thresholds live
// in AutomationConfig instead.
type EngineConfig struct {
	// PendingPollAttempts bounds how often a pending placement is re-checked.
	PendingPollAttempts int      `toml:"pending_poll_attempts"`
	PendingPollInterval duration `toml:"pending_poll_interval"`
	// RetryDelay is the pause between compensating-loop iterations.
	RetryDelay            duration `toml:"retry_delay"`
	BalanceRefreshTimeout duration `toml:"balance_refresh_timeout"`
	// VenueCallsPerWindow caps venue calls per handler across processes.
	// Zero disables the distributed limiter.
	VenueCallsPerWindow int      `toml:"venue_calls_per_window"`
	VenueCallWindow     duration `toml:"venue_call_window"`
	DistributedLocks    bool     `toml:"distributed_locks"`
	SessionLockTTL      duration `toml:"session_lock_ttl"`
}

// BusConfig names the Redis channels the dispatcher uses.
type BusConfig struct {
	CommandChannel string `toml:"command_channel"`
	EventChannel   string `toml:"event_channel"`
	EventStream    string `toml:"event_stream"`
	NodeName       string `toml:"node_name"`
}

// ArchiveConfig controls moving terminal order records to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	APIKey            string   `toml:"api_key"`
	CORSOrigins       []string `toml:"cors_origins"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Bridge: BridgeConfig{
			Timeout:        duration{15 * time.Second},
			RatePerSecond:  5,
			Burst:          2,
			StakePrecision: 0,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "hedgebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			Namespace:    "hedgebot",
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hedgebot-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Automation: AutomationConfig{
			OddsDropThresholdPct:    5,
			SupplementaryTimeoutSec: 900,
			MaxRetryCount:           10,
		},
		Engine: EngineConfig{
			PendingPollAttempts:   30,
			PendingPollInterval:   duration{time.Second},
			RetryDelay:            duration{2 * time.Second},
			BalanceRefreshTimeout: duration{20 * time.Second},
			VenueCallsPerWindow:   0,
			VenueCallWindow:       duration{time.Second},
			DistributedLocks:      false,
			SessionLockTTL:        duration{2 * time.Minute},
		},
		Bus: BusConfig{
			CommandChannel: "hedge:commands",
			EventChannel:   "hedge:events",
			EventStream:    "hedge:events:log",
			NodeName:       "hedgebot",
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 30,
			Interval:      duration{6 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RequestsPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"supplement_order", "supplement_order_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":    true,
	"engine":  true,
	"server":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, engine, server, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Bridge credentials are only needed where the engine runs.
	if mode := strings.ToLower(c.Mode); mode == "full" || mode == "engine" {
		if c.Bridge.APIKey == "" {
			errs = append(errs, "bridge: api_key must not be empty")
		}
		if c.Bridge.APISecret == "" && c.Bridge.EncryptedSecretPath == "" {
			errs = append(errs, "bridge: either api_secret or encrypted_secret_path must be set")
		}
		if c.Bridge.EncryptedSecretPath != "" && c.Bridge.SecretPassword == "" {
			errs = append(errs, "bridge: secret_password is required when encrypted_secret_path is set")
		}
	}
	if c.Bridge.Timeout.Duration <= 0 {
		errs = append(errs, "bridge: timeout must be > 0")
	}
	if c.Bridge.RatePerSecond < 0 {
		errs = append(errs, "bridge: rate_per_second must be >= 0")
	}
	if c.Bridge.StakePrecision < 0 || c.Bridge.StakePrecision > 8 {
		errs = append(errs, fmt.Sprintf("bridge: stake_precision must be 0-8, got %d", c.Bridge.StakePrecision))
	}

	seen := make(map[string]bool, len(c.Handlers))
	for i, h := range c.Handlers {
		if h.Name == "" {
			errs = append(errs, fmt.Sprintf("handlers[%d]: name must not be empty", i))
			continue
		}
		if seen[h.Name] {
			errs = append(errs, fmt.Sprintf("handlers[%d]: duplicate name %q", i, h.Name))
		}
		seen[h.Name] = true
		if h.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("handlers[%d]: endpoint must not be empty", i))
		}
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
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Automation
	if err := c.Automation.Validate(); err != nil {
		errs = append(errs, "automation: "+err.Error())
	}

	// Engine
	if c.Engine.PendingPollAttempts < 1 {
		errs = append(errs, "engine: pending_poll_attempts must be >= 1")
	}
	if c.Engine.PendingPollInterval.Duration <= 0 {
		errs = append(errs, "engine: pending_poll_interval must be > 0")
	}
	if c.Engine.RetryDelay.Duration <= 0 {
		errs = append(errs, "engine: retry_delay must be > 0")
	}
	if c.Engine.VenueCallsPerWindow < 0 {
		errs = append(errs, "engine: venue_calls_per_window must be >= 0")
	}
	if c.Engine.VenueCallsPerWindow > 0 && c.Engine.VenueCallWindow.Duration <= 0 {
		errs = append(errs, "engine: venue_call_window must be > 0 when venue_calls_per_window is set")
	}
	if c.Engine.DistributedLocks && c.Engine.SessionLockTTL.Duration <= 0 {
		errs = append(errs, "engine: session_lock_ttl must be > 0 when distributed_locks is enabled")
	}

	// Bus
	if c.Bus.CommandChannel == "" || c.Bus.EventChannel == "" {
		errs = append(errs, "bus: command_channel and event_channel must not be empty")
	}
	if c.Bus.CommandChannel == c.Bus.EventChannel {
		errs = append(errs, "bus: command_channel and event_channel must differ")
	}

	// Archive
	if c.Archive.Enabled || strings.EqualFold(c.Mode, "archive") {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: postgres must be enabled to archive order records")
		}
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			errs = append(errs, "archive: s3 endpoint and bucket must be set")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
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
