package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// GetSetting returns a setting value. A missing key yields ok == false.
func GetSetting(ctx context.Context, db *sql.DB, key string) (value string, ok bool, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, true, nil
}

// EnsureSetting stores candidate under key unless a value already exists and
// returns the value that ended up stored.
// Uses INSERT OR IGNORE + re-SELECT to avoid TOCTOU race on concurrent startup.
func EnsureSetting(ctx context.Context, db *sql.DB, key, candidate string) (string, error) {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)`,
		key, candidate,
	)
	if err != nil {
		return "", fmt.Errorf("storing setting %s: %w", key, err)
	}

	value, ok, err := GetSetting(ctx, db, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("setting %s missing after insert", key)
	}
	return value, nil
}

// GetJWTSecret retrieves the JWT secret from the database, generating and
// storing one on first use.
func GetJWTSecret(ctx context.Context, db *sql.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return EnsureSetting(ctx, db, "jwt_secret", hex.EncodeToString(buf))
}
