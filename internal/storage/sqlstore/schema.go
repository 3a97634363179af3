package sqlstore

const (
	tablePlayers      = "players"
	tableSessions     = "sessions"
	tableGroupConfigs = "group_configs"
	tableTrades       = "trades"
	tableListings     = "market_listings"
	tableDevices      = "devices"
)

// Timestamps are stored as unix milliseconds so both dialects share one encoding.

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		online BOOLEAN NOT NULL DEFAULT 0,
		last_seen INTEGER,
		teammate BOOLEAN NOT NULL DEFAULT 0,
		UNIQUE (group_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		player_id INTEGER NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions (player_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS group_configs (
		group_id INTEGER PRIMARY KEY,
		wipe_epoch INTEGER,
		poll_target TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		buyer TEXT NOT NULL,
		seller TEXT NOT NULL,
		item TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost_item TEXT NOT NULL DEFAULT '',
		cost_amount INTEGER NOT NULL DEFAULT 0,
		traded_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_group ON trades (group_id)`,
	`CREATE TABLE IF NOT EXISTS market_listings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		shop TEXT NOT NULL,
		item TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost_item TEXT NOT NULL DEFAULT '',
		cost_amount INTEGER NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		seen_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_group ON market_listings (group_id, seen_at)`,
	`CREATE TABLE IF NOT EXISTS devices (
		group_id INTEGER NOT NULL,
		entity_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY (group_id, entity_id)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		online BOOLEAN NOT NULL DEFAULT FALSE,
		last_seen BIGINT,
		teammate BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (group_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		player_id BIGINT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions (player_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS group_configs (
		group_id BIGINT PRIMARY KEY,
		wipe_epoch BIGINT,
		poll_target TEXT NOT NULL DEFAULT '',
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL,
		buyer TEXT NOT NULL,
		seller TEXT NOT NULL,
		item TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost_item TEXT NOT NULL DEFAULT '',
		cost_amount INTEGER NOT NULL DEFAULT 0,
		traded_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_group ON trades (group_id)`,
	`CREATE TABLE IF NOT EXISTS market_listings (
		id BIGSERIAL PRIMARY KEY,
		group_id BIGINT NOT NULL,
		shop TEXT NOT NULL,
		item TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		cost_item TEXT NOT NULL DEFAULT '',
		cost_amount INTEGER NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		seen_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_group ON market_listings (group_id, seen_at)`,
	`CREATE TABLE IF NOT EXISTS devices (
		group_id BIGINT NOT NULL,
		entity_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY (group_id, entity_id)
	)`,
}
