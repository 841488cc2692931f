package repo

import (
	"context"
	"database/sql"
	"log/slog"

	"clothshop/internal/db"
	"clothshop/internal/models"
)

type CartRepo struct {
	db *db.DB
	q  querier
}

func NewCartRepo(d *db.DB) *CartRepo {
	return &CartRepo{db: d, q: d}
}

func (r *CartRepo) Tx(tx *sql.Tx) *CartRepo {
	return &CartRepo{db: r.db, q: tx}
}

// AddLine always inserts a new row; repeated adds of the same item and size
// are separate lines.
func (r *CartRepo) AddLine(ctx context.Context, userID, itemID int64, size string) error {
	query := `INSERT INTO carts (user_id, item_id, size, quantity) VALUES (?, ?, ?, 1)`
	_, err := r.q.ExecContext(ctx, r.db.Rebind(query), userID, itemID, size)
	if err != nil {
		slog.Error("Add to cart failed", "user_id", userID, "item_id", itemID, "error", err)
	}
	return err
}

// Lines returns the user's cart joined with item names, oldest first.
func (r *CartRepo) Lines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	query := `
		SELECT carts.id, carts.user_id, carts.item_id, items.name, carts.size, carts.quantity, carts.created_at
		FROM carts
		JOIN items ON carts.item_id = items.id
		WHERE carts.user_id = ?
		ORDER BY carts.id`

	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.UserID, &l.ItemID, &l.ItemName, &l.Size, &l.Quantity, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// RemoveLine deletes the oldest line matching (user, item, size).
func (r *CartRepo) RemoveLine(ctx context.Context, userID, itemID int64, size string) (bool, error) {
	query := `
		DELETE FROM carts
		WHERE id = (
			SELECT id FROM carts
			WHERE user_id = ? AND item_id = ? AND size = ?
			ORDER BY id
			LIMIT 1
		)`
	res, err := r.q.ExecContext(ctx, r.db.Rebind(query), userID, itemID, size)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *CartRepo) Clear(ctx context.Context, userID int64) (int64, error) {
	res, err := r.q.ExecContext(ctx, r.db.Rebind(`DELETE FROM carts WHERE user_id = ?`), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
