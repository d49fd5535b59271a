package db

import (
	"database/sql"
	"testing"
)

// NewTestDB creates a fresh in-memory SQLite database with the server schema applied.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := EnsureSchema(db); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}

// NewLocalTestDB creates a fresh in-memory SQLite database with the device schema applied.
func NewLocalTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening local test database: %v", err)
	}

	if err := EnsureLocalSchema(db); err != nil {
		db.Close()
		t.Fatalf("creating local test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}
