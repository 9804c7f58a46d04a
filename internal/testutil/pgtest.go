//go:build integration

// Package testutil provides shared helpers for integration tests that need
// a real PostgreSQL instance. Gated behind the integration build tag; run
// with:
//
//	POSTGRES_URL=postgres://... go test -tags integration ./...
package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

// DB opens the database named by POSTGRES_URL, applies all migrations, and
// registers cleanup that truncates every table so tests stay independent.
// Skips the test when POSTGRES_URL is not set.
func DB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("connect to database: %v", err)
	}

	if err := goose.RunContext(context.Background(), "up", db, migrationsDir()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	Truncate(t, db)
	return db
}

// Truncate empties all application tables.
func Truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE credit_grants, usage_monthly, api_keys, tenants, plans CASCADE`)
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
