package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/xxxsen/ctxkit/internal/config"
	"github.com/xxxsen/ctxkit/internal/db"
)

// OpenTestDB opens a migrated sqlite database under t.TempDir().
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.sqlite"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// OpenPostgresDB opens the database named by CTXKIT_TEST_PG_DSN and skips
// the test when it is unset.
func OpenPostgresDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("CTXKIT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CTXKIT_TEST_PG_DSN not set, skipping postgres test")
	}
	conn, err := db.Open(context.Background(), config.DatabaseConfig{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
