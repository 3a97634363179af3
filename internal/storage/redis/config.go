package redis

import "time"

// Config holds Redis connection settings
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string `koanf:"url"`

	// Pool settings
	PoolSize     int `koanf:"pool_size"`
	MinIdleConns int `koanf:"min_idle_conns"`

	// MaxTxRetries bounds optimistic-lock retries when a watched key changes mid-transaction
	MaxTxRetries int `koanf:"max_tx_retries"`

	// DialTimeout bounds the initial connectivity check
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxTxRetries: 5,
		DialTimeout:  5 * time.Second,
	}
}
