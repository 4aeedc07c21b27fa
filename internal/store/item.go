package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lostboard/apiserver/types"
)

// ItemRepository handles persistence for lost and found reports.
type ItemRepository struct {
	db *sql.DB
}

func NewItemRepository(db *sql.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemSelect = `
		SELECT i.id, i.name, i.description, i.location, i.type, i.image_url, i.user_id, i.created_at,
			u.username, u.email, u.contact_number
		FROM items i
		LEFT JOIN users u ON u.id = i.user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (types.Item, error) {
	var item types.Item
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.Location,
		&item.Type,
		&item.ImageURL,
		&item.UserID,
		&item.CreatedAt,
		&item.Username,
		&item.Email,
		&item.ContactNumber,
	)
	return item, err
}

// List returns reports newest first. An empty itemType returns every report.
func (r *ItemRepository) List(ctx context.Context, itemType types.ItemType) ([]types.Item, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if itemType == "" {
		rows, err = r.db.QueryContext(ctx, itemSelect+` ORDER BY i.id DESC`)
	} else {
		rows, err = r.db.QueryContext(ctx, itemSelect+` WHERE i.type = $1 ORDER BY i.id DESC`, string(itemType))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]types.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *ItemRepository) Get(ctx context.Context, id int) (types.Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx, itemSelect+` WHERE i.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Item{}, ErrNotFound
		}
		return types.Item{}, err
	}
	return item, nil
}

// Create inserts a report and returns it with the id and creation time
// assigned by the database.
func (r *ItemRepository) Create(ctx context.Context, item types.Item) (types.Item, error) {
	const query = `
		INSERT INTO items (name, description, location, type, image_url, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		item.Name,
		item.Description,
		item.Location,
		string(item.Type),
		item.ImageURL,
		item.UserID,
	).Scan(&item.ID, &item.CreatedAt); err != nil {
		return types.Item{}, translateError(err)
	}
	return item, nil
}

// DeleteOwned removes the report only if it belongs to userID, returning the
// image path it referenced. ErrNotFound covers both a missing row and an
// ownership mismatch; callers distinguish them with Get first.
func (r *ItemRepository) DeleteOwned(ctx context.Context, id, userID int) (*string, error) {
	const query = `DELETE FROM items WHERE id = $1 AND user_id = $2 RETURNING image_url`
	var imageURL *string
	if err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&imageURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return imageURL, nil
}
