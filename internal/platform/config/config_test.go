package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.LifecycleInterval)
	assert.Equal(t, time.Minute, cfg.Scheduler.EconomyInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.RetentionInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Scheduler.RetentionWindow)
	assert.Equal(t, int64(100), cfg.Economy.AdoptionCost)
	assert.Equal(t, int64(50), cfg.Economy.FoodCost)
	assert.Equal(t, int64(25), cfg.Economy.EvolutionReward)
	assert.InDelta(t, 0.125, cfg.Economy.AccrualRate, 1e-9)
	assert.True(t, cfg.Storage.Enabled)
	assert.False(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, float64(200), cfg.Server.RequestsPerSecond)
	assert.Equal(t, 400, cfg.Server.RequestBurst)
	assert.Empty(t, cfg.Tenants)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultPath, Path())

	t.Setenv("CONFIG_PATH", "/etc/petguild/config.yaml")
	assert.Equal(t, "/etc/petguild/config.yaml", Path())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
scheduler:
  lifecycle_interval: 30s
  workers: 2
economy:
  food_cost: 40
storage:
  enabled: false
cache:
  enabled: true
  addr: redis:6379
  ttl: 1m
logging:
  format: console
tenants:
  - guild-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.LifecycleInterval)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, int64(40), cfg.Economy.FoodCost)
	assert.Equal(t, int64(100), cfg.Economy.AdoptionCost)
	assert.False(t, cfg.Storage.Enabled)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis:6379", cfg.Cache.Addr)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, []string{"guild-1"}, cfg.Tenants)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "economy:\n  adoption_cost: 120\n")
	t.Setenv("PETGUILD_ECONOMY_ADOPTION_COST", "200")
	t.Setenv("PETGUILD_SCHEDULER_ECONOMY_INTERVAL", "2m")
	t.Setenv("PETGUILD_CACHE_ENABLED", "true")
	t.Setenv("PETGUILD_LOGGING_LEVEL", "debug")
	t.Setenv("PETGUILD_TENANTS", "guild-1,guild-2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(200), cfg.Economy.AdoptionCost)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.EconomyInterval)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, []string{"guild-1", "guild-2"}, cfg.Tenants)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative cost", "economy:\n  food_cost: -1\n"},
		{"inverted bonus", "economy:\n  bonus_min: 5\n  bonus_max: 2\n"},
		{"unknown log format", "logging:\n  format: xml\n"},
		{"relative metrics path", "metrics:\n  path: metrics\n"},
		{"malformed yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("PETGUILD_SCHEDULER_WORKERS", "many")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
