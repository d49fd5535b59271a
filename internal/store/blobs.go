package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PutBlob stores binary content under bucket/path, replacing any previous
// content at the same location.
func PutBlob(ctx context.Context, db *sql.DB, bucket, path, userID, contentType string, data []byte) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO blobs (bucket, path, user_id, content_type, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (bucket, path) DO UPDATE SET
		     user_id = excluded.user_id,
		     content_type = excluded.content_type,
		     data = excluded.data,
		     created_at = CURRENT_TIMESTAMP`,
		bucket, path, userID, contentType, data,
	)
	if err != nil {
		return fmt.Errorf("storing blob: %w", err)
	}
	return nil
}

// GetBlob returns a blob's content and content type. A missing blob yields nil data.
func GetBlob(ctx context.Context, db *sql.DB, bucket, path string) ([]byte, string, error) {
	var data []byte
	var contentType string
	err := db.QueryRowContext(ctx,
		`SELECT data, content_type FROM blobs WHERE bucket = ? AND path = ?`, bucket, path,
	).Scan(&data, &contentType)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting blob: %w", err)
	}
	return data, contentType, nil
}
