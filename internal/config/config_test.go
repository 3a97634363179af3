package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Presence.ZombieThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Presence.ZombieGrace)
	assert.Equal(t, "https://api.battlemetrics.com", cfg.BattleMetrics.BaseURL)
	assert.Equal(t, "tracker", cfg.Feed.Subject)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
storage:
  type: sqlite
sql:
  dsn: "file:test.db"
reconcile:
  interval: 2m
admin:
  token_hashes:
    - "$2a$10$abc"
`), 0o600))

	t.Setenv("TRACKER_RECONCILE__INTERVAL", "90s")
	t.Setenv("TRACKER_PRESENCE__ZOMBIE_GRACE", "1m")
	t.Setenv("TRACKER_FEED__URL", "nats://feed:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorageSQLite, cfg.Storage.Type)
	assert.Equal(t, "file:test.db", cfg.SQL.DSN)
	assert.Equal(t, 90*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, time.Minute, cfg.Presence.ZombieGrace)
	assert.Equal(t, "nats://feed:4222", cfg.Feed.URL)
	assert.Equal(t, []string{"$2a$10$abc"}, cfg.Admin.TokenHashes)
}

func TestLoadAdminHashesFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRACKER_ADMIN__TOKEN_HASHES", "$2a$10$one, $2a$10$two")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"$2a$10$one", "$2a$10$two"}, cfg.Admin.TokenHashes)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TRACKER_SERVER__PORT=7070\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TRACKER_SERVER__PORT") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongo" }},
		{"sql without dsn", func(c *Config) { c.Storage.Type = StoragePostgres; c.SQL.DSN = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero interval", func(c *Config) { c.Reconcile.Interval = 0 }},
		{"zero grace", func(c *Config) { c.Presence.ZombieGrace = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "reconcile.interval", envTransform("TRACKER_RECONCILE__INTERVAL"))
	assert.Equal(t, "feed.embedded.port", envTransform("TRACKER_FEED__EMBEDDED__PORT"))
	assert.Equal(t, "", envTransform("TRACKER_CONFIG"))
}
