// Package dbtest opens throwaway databases for package tests.
package dbtest

import (
	"os"
	"path/filepath"
	"testing"

	"pollchat/internal/db"
)

// New returns a migrated database. It uses postgres when TEST_PG_DSN is set and
// a temp-file sqlite database otherwise.
func New(t *testing.T) *db.Database {
	t.Helper()

	driver, dsn := db.DriverSQLite, filepath.Join(t.TempDir(), "chat.db")
	if pg := os.Getenv("TEST_PG_DSN"); pg != "" {
		driver, dsn = db.DriverPostgres, pg
	}

	database, err := db.NewDatabase(driver, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if driver == db.DriverPostgres {
		for _, q := range []string{"DROP TABLE IF EXISTS messages", "DROP TABLE IF EXISTS users"} {
			if _, err := database.Conn.Exec(q); err != nil {
				t.Fatalf("failed to reset postgres schema: %v", err)
			}
		}
	}

	if err := database.AutoMigrate(); err != nil {
		t.Fatalf("AutoMigrate failed: %v", err)
	}
	return database
}
