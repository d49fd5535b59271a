package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/buddybuy/internal/model"
)

const itemColumns = `id, user_id, title, description, rating, image_url, created_at`

// CreateItem inserts a new item and returns it with its server-assigned id.
// A zero CreatedAt is replaced with the current time.
func CreateItem(ctx context.Context, db *sql.DB, rec model.RemoteItem) (*model.RemoteItem, error) {
	id := uuid.NewString()
	createdAt := rec.CreatedAt.UTC()
	if rec.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO items (id, user_id, title, description, rating, image_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, rec.UserID, rec.Title, rec.Description, rec.Rating, nullString(rec.ImageURL), createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return GetItem(ctx, db, id)
}

// GetItem returns a non-deleted item by ID.
func GetItem(ctx context.Context, db *sql.DB, id string) (*model.RemoteItem, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ? AND deleted_at IS NULL`, id,
	)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all non-deleted items of a user in creation order.
func ListItems(ctx context.Context, db *sql.DB, userID string) ([]model.RemoteItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE user_id = ? AND deleted_at IS NULL
		 ORDER BY created_at, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.RemoteItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem overwrites an item's mutable fields. It reports whether a
// matching item of the user was found.
func UpdateItem(ctx context.Context, db *sql.DB, userID, id string, patch model.RemotePatch) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET title = ?, description = ?, rating = ?, image_url = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		patch.Title, patch.Description, patch.Rating, nullString(patch.ImageURL), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("updating item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("updating item: %w", err)
	}
	return n > 0, nil
}

// DeleteItem soft-deletes an item. It reports whether the item exists for
// the user at all, deleted or not, so repeated deletes stay successful.
func DeleteItem(ctx context.Context, db *sql.DB, userID, id string) (bool, error) {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("deleting item: %w", err)
	}

	var count int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking deleted item: %w", err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.RemoteItem, error) {
	item := &model.RemoteItem{}
	var imageURL sql.NullString
	if err := row.Scan(&item.ID, &item.UserID, &item.Title, &item.Description, &item.Rating, &imageURL, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.ImageURL = imageURL.String
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
