// Package testdb opens isolated databases for tests.
package testdb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/appdotbuilder/perpustakaan-online/pkg/database"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresDSNEnv names the variable that points NewConcurrent at a real
// PostgreSQL server, e.g. "host=localhost user=program password=test dbname=perpustakaan sslmode=disable".
const PostgresDSNEnv = "TEST_POSTGRES_DSN"

// ConcurrentConns is the pool size of databases returned by NewConcurrent.
const ConcurrentConns = 8

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

// New returns a migrated in-memory database private to t. The pool is
// pinned to one connection, so statements never run in parallel.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:testdb_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	return open(t, sqlite.Open(dsn), 1)
}

// NewConcurrent returns a migrated database whose pool holds several
// connections, so goroutines really do run their transactions side by
// side. It uses PostgreSQL when PostgresDSNEnv is set and a file-backed
// SQLite database in WAL mode otherwise.
func NewConcurrent(t testing.TB) *gorm.DB {
	t.Helper()

	if dsn := os.Getenv(PostgresDSNEnv); dsn != "" {
		return openPostgres(t, dsn)
	}

	// _txlock=immediate takes the write lock at BEGIN, so two writers wait
	// on each other (busy_timeout) instead of failing to upgrade a read lock.
	path := filepath.Join(t.TempDir(), "library.db")
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"
	return open(t, sqlite.Open(dsn), ConcurrentConns)
}

// openPostgres migrates into a fresh schema that is dropped when t ends.
func openPostgres(t testing.TB, dsn string) *gorm.DB {
	t.Helper()

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	admin, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	if err := admin.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	adminDB, err := admin.DB()
	if err != nil {
		t.Fatalf("get postgres instance: %v", err)
	}
	t.Cleanup(func() {
		_ = admin.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = adminDB.Close()
	})

	return open(t, postgres.Open(fmt.Sprintf("%s search_path=%s", dsn, schema)), ConcurrentConns)
}

func open(t testing.TB, dialector gorm.Dialector, conns int) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get test database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(conns)
	sqlDB.SetMaxIdleConns(conns)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}
