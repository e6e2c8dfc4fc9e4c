// Package dbtest opens throwaway databases with the production schema for
// package tests.
//
// By default each test gets a private in-memory SQLite database. SQLite
// ignores FOR UPDATE and the pool holds a single connection, so concurrent
// transactions run one after another regardless of row locks. Set
// TEST_DATABASE_DSN to a Postgres DSN to run the same tests against real
// row locking; each test then gets its own schema, dropped on cleanup.
package dbtest

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/database"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EnvDSN names the variable that switches tests to Postgres.
const EnvDSN = "TEST_DATABASE_DSN"

// Open returns a migrated database private to the test. On SQLite, queries
// issued inside a transaction must go through the transaction handle or
// they wait forever on the single pooled connection.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	if dsn := os.Getenv(EnvDSN); dsn != "" {
		return openPostgres(t, dsn)
	}
	return openSQLite(t)
}

// Postgres reports whether tests run against Postgres.
func Postgres() bool {
	return os.Getenv(EnvDSN) != ""
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

func openSQLite(t testing.TB) *gorm.DB {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func openPostgres(t testing.TB, dsn string) *gorm.DB {
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := gorm.Open(postgres.Open(dsn), gormConfig())
	require.NoError(t, err)
	require.NoError(t, admin.Exec("CREATE SCHEMA "+schema).Error)

	db, err := gorm.Open(postgres.Open(withSearchPath(dsn, schema)), gormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(16)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		_ = sqlDB.Close()
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		if adminDB, err := admin.DB(); err == nil {
			_ = adminDB.Close()
		}
	})
	return db
}

// withSearchPath pins every pooled connection to schema, for both URL and
// key=value DSNs.
func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}
