// Package config loads layered server configuration: built-in defaults, an
// optional YAML file, then TRACKER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/api"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/battlemetrics"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/logging"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/ingest"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/presence"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/reconcile"
	redisstorage "github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/redis"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/sqlstore"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/supervisor"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TRACKER_"

// PathEnvVar names the YAML config file
const PathEnvVar = "TRACKER_CONFIG"

// DefaultPaths are searched when PathEnvVar is unset
var DefaultPaths = []string{"tracker.yaml", "/etc/tracker/tracker.yaml"}

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// StorageConfig selects the backend
type StorageConfig struct {
	Type string `koanf:"type"`
}

// Config is the full server configuration
type Config struct {
	Server        api.ServerConfig     `koanf:"server"`
	Storage       StorageConfig        `koanf:"storage"`
	Redis         redisstorage.Config  `koanf:"redis"`
	SQL           sqlstore.Config      `koanf:"sql"`
	Presence      presence.Config      `koanf:"presence"`
	Reconcile     reconcile.Config     `koanf:"reconcile"`
	BattleMetrics battlemetrics.Config `koanf:"battlemetrics"`
	Feed          ingest.FeedConfig    `koanf:"feed"`
	Log           logging.Config       `koanf:"log"`
	Admin         auth.Config          `koanf:"admin"`
	Supervisor    supervisor.Config    `koanf:"supervisor"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server:        api.DefaultServerConfig(),
		Storage:       StorageConfig{Type: StorageMemory},
		Redis:         redisstorage.DefaultConfig(),
		SQL:           sqlstore.DefaultConfig(),
		Presence:      presence.DefaultConfig(),
		Reconcile:     reconcile.DefaultConfig(),
		BattleMetrics: battlemetrics.DefaultConfig(),
		Feed:          ingest.DefaultFeedConfig(),
		Log:           logging.DefaultConfig(),
		Admin:         auth.DefaultConfig(),
		Supervisor:    supervisor.DefaultConfig(),
	}
}

// Load reads .env (when present), the config file at path (or the first of
// DefaultPaths when path is empty), then the environment
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	// comma-separated from the environment
	if raw, ok := k.Get("admin.token_hashes").(string); ok {
		if err := k.Set("admin.token_hashes", splitList(raw)); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageMemory, StorageRedis:
	case StorageSQLite, StoragePostgres:
		if c.SQL.DSN == "" {
			return errors.New("sql.dsn required for SQL storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.Type == StorageRedis && c.Redis.URL == "" {
		return errors.New("redis.url required for redis storage")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Presence.ZombieThreshold <= 0 || c.Presence.ZombieGrace <= 0 {
		return errors.New("presence zombie threshold and grace must be positive")
	}
	if c.Reconcile.Interval <= 0 {
		return errors.New("reconcile.interval must be positive")
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps TRACKER_RECONCILE__INTERVAL to reconcile.interval.
// A double underscore separates sections so keys may contain single ones.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
