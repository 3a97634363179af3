package sqlstore

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage"
	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/storage/storagetest"
)

func newMemoryStorage(t *testing.T) *Storage {
	t.Helper()
	raw, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })

	s, err := NewWithDB(context.Background(), raw, DriverSQLite)
	require.NoError(t, err)
	return s
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStorage: func() storage.Storage { return newMemoryStorage(t) },
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newMemoryStorage(t)
	require.NoError(t, s.migrate(context.Background()))
}

func TestNewWithDBRejectsUnknownDriver(t *testing.T) {
	raw, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer raw.Close()

	_, err = NewWithDB(context.Background(), raw, "mysql")
	require.Error(t, err)
}

func TestNewOpensFileDatabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = "file:" + t.TempDir() + "/tracker.db"

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	configs, err := s.ListGroupConfigs(context.Background())
	require.NoError(t, err)
	require.Empty(t, configs)
}
