package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Bridge.APIKey = "key"
	cfg.Bridge.APISecret = "secret"
	return cfg
}

func TestDefaultsValidateWithBridgeCredentials(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Automation.MaxRetryCount = -1
	cfg.Engine.PendingPollAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "bridge: api_key")
	assert.Contains(t, msg, "max_retry_count")
	assert.Contains(t, msg, "pending_poll_attempts")
}

func TestServerModeNeedsNoBridgeCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	require.NoError(t, cfg.Validate())
}

func TestValidateArchiveNeedsPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres must be enabled")
}

func TestValidateDuplicateHandlers(t *testing.T) {
	cfg := validConfig()
	cfg.Handlers = []HandlerConfig{
		{Name: "pin1", Endpoint: "http://a"},
		{Name: "pin1", Endpoint: "http://b"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate name "pin1"`)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hedgebot.toml")
	body := `
mode = "engine"

[bridge]
api_key = "file-key"
timeout = "3s"

[automation]
odds_drop_threshold_pct = 7.5
max_retry_count = 4

[[handlers]]
name = "pin888"
platform = "pinnacle"
endpoint = "http://127.0.0.1:9100"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("HEDGEBOT_BRIDGE_API_SECRET", "env-secret")
	t.Setenv("HEDGEBOT_AUTOMATION_MAX_RETRY_COUNT", "6")
	t.Setenv("HEDGEBOT_ENGINE_RETRY_DELAY", "250ms")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, "file-key", cfg.Bridge.APIKey)
	assert.Equal(t, "env-secret", cfg.Bridge.APISecret)
	assert.Equal(t, 3*time.Second, cfg.Bridge.Timeout.Duration)
	assert.Equal(t, 7.5, cfg.Automation.OddsDropThresholdPct)
	assert.Equal(t, 6, cfg.Automation.MaxRetryCount)
	assert.Equal(t, 900.0, cfg.Automation.SupplementaryTimeoutSec)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RetryDelay.Duration)
	require.Len(t, cfg.Handlers, 1)
	assert.Equal(t, "pin888", cfg.Handlers[0].Name)
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pw"
	cfg.Notify.Events = []string{"supplement_order"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Bridge.APIKey)
	assert.Equal(t, "***", out.Bridge.APISecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "", out.Postgres.DSN)

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "supplement_order", cfg.Notify.Events[0])
}

func TestAutomationSetters(t *testing.T) {
	a, err := NewAutomation(AutomationConfig{OddsDropThresholdPct: 5, SupplementaryTimeoutSec: 900, MaxRetryCount: 3})
	require.NoError(t, err)

	require.NoError(t, a.SetOddsDropThresholdPct(0))
	require.Error(t, a.SetOddsDropThresholdPct(-0.1))
	require.NoError(t, a.SetSupplementaryTimeoutSec(1.5))
	require.Error(t, a.SetSupplementaryTimeoutSec(0))
	require.NoError(t, a.SetMaxRetryCount(0))
	require.Error(t, a.SetMaxRetryCount(-1))

	snap := a.Snapshot()
	assert.Equal(t, 0.0, snap.OddsDropThresholdPct)
	assert.Equal(t, 1500*time.Millisecond, snap.SupplementaryTimeout())
	assert.Equal(t, 0, snap.MaxRetryCount)
}

func TestAutomationApplyIsAllOrNothing(t *testing.T) {
	a, err := NewAutomation(AutomationConfig{OddsDropThresholdPct: 5, SupplementaryTimeoutSec: 900, MaxRetryCount: 3})
	require.NoError(t, err)

	threshold := 12.0
	badTimeout := -1.0
	_, err = a.Apply(AutomationPatch{OddsDropThresholdPct: &threshold, SupplementaryTimeoutSec: &badTimeout})
	require.Error(t, err)
	assert.Equal(t, 5.0, a.Snapshot().OddsDropThresholdPct)

	retries := 8
	got, err := a.Apply(AutomationPatch{OddsDropThresholdPct: &threshold, MaxRetryCount: &retries})
	require.NoError(t, err)
	assert.Equal(t, 12.0, got.OddsDropThresholdPct)
	assert.Equal(t, 8, got.MaxRetryCount)
	assert.Equal(t, 900.0, got.SupplementaryTimeoutSec)
}

func TestAutomationConcurrentAccess(t *testing.T) {
	a, err := NewAutomation(AutomationConfig{OddsDropThresholdPct: 5, SupplementaryTimeoutSec: 900, MaxRetryCount: 3})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = a.SetMaxRetryCount(n)
		}(i)
		go func() {
			defer wg.Done()
			snap := a.Snapshot()
			assert.GreaterOrEqual(t, snap.MaxRetryCount, 0)
		}()
	}
	wg.Wait()
}

func TestNewAutomationRejectsInvalid(t *testing.T) {
	_, err := NewAutomation(AutomationConfig{OddsDropThresholdPct: 5, SupplementaryTimeoutSec: 0})
	require.Error(t, err)
}
