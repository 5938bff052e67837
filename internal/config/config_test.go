package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "memory", cfg.State.Driver)
	assert.Equal(t, 60, cfg.Limits.RequestsPerMinute)
	assert.Equal(t, 1000, cfg.Limits.RequestsPerHour)
	assert.Equal(t, 10000, cfg.Limits.RequestsPerDay)
	assert.Equal(t, 5, cfg.Abuse.ResubmissionThreshold)
	assert.Equal(t, time.Minute, cfg.Abuse.ResubmissionWindow())
	assert.Equal(t, 1_000_000, cfg.Budget.DailyTokenLimit)
	assert.InDelta(t, 100.0, cfg.Budget.DailySpendUSD, 0.001)
	assert.Equal(t, 5000, cfg.Budget.EstimatedTokens)
	assert.True(t, cfg.KillSwitch.ScansEnabled)
	assert.True(t, cfg.KillSwitch.ReadEnabled)
	assert.Contains(t, cfg.KillSwitch.MaintenanceMessage, "scheduled maintenance")
	assert.Equal(t, 24*time.Hour, cfg.Jobs.TTL())
	assert.Equal(t, 5*time.Minute, cfg.Jobs.CleanupInterval())
	assert.Equal(t, 3, cfg.Jobs.MaxConcurrent)
	assert.Equal(t, 30, cfg.Poll.MaxAttempts)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Refine.Model)
	assert.InDelta(t, 80.0, cfg.Monitoring.BudgetAlertPct, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
server:
  port: 9999
state:
  driver: sqlite
  sqlite_path: custom.db
limits:
  requests_per_minute: 7
killswitch:
  scans_enabled: false
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.State.Driver)
	assert.Equal(t, "custom.db", cfg.State.SQLitePath)
	assert.Equal(t, 7, cfg.Limits.RequestsPerMinute)
	assert.False(t, cfg.KillSwitch.ScansEnabled)
	// Untouched keys keep defaults.
	assert.Equal(t, 1000, cfg.Limits.RequestsPerHour)
}

func TestLoadEnvOverride(t *testing.T) {
	chTempDir(t)
	t.Setenv("SCOPE_LIMITS_REQUESTS_PER_MINUTE", "3")
	t.Setenv("SCOPE_REFINE_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Limits.RequestsPerMinute)
	assert.Equal(t, "sk-test", cfg.Refine.AnthropicKey)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}
