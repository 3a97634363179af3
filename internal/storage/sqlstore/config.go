package sqlstore

import "time"

// Driver names accepted by Config.Driver
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds SQL connection settings
type Config struct {
	// Driver is "sqlite" (pure Go, file or :memory:) or "postgres"
	Driver string `koanf:"driver"`
	// DSN is the driver-specific data source name
	DSN string `koanf:"dsn"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// DefaultConfig returns a local sqlite file configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "file:tracker.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}
