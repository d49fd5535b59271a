// Package localstore persists device-side state as opaque values under string
// keys. It holds no business logic.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/buddybuy/internal/db"
)

// Store is a key/value durability layer.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// ItemsKey returns the key under which an owner's item collection is stored.
func ItemsKey(ownerID string) string { return "items-" + ownerID }

// TombstonesKey returns the key under which an owner's pending remote deletes
// are stored.
func TombstonesKey(ownerID string) string { return "tombstones-" + ownerID }

// SessionKey holds the persisted authentication session.
const SessionKey = "session"

// SQLite is a Store backed by the kv table of the device database.
type SQLite struct {
	db *sqlx.DB
}

// Open opens (or creates) the device database at path.
func Open(path string) (*SQLite, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureLocalSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn), nil
}

// New wraps an already opened database that has the local schema applied.
func New(conn *sql.DB) *SQLite {
	return &SQLite{db: sqlx.NewDb(conn, "sqlite")}
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, `SELECT key FROM kv ORDER BY key`); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

// GetJSON decodes the JSON value under key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v encoded as JSON under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
