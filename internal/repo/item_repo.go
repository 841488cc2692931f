package repo

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"clothshop/internal/db"
	"clothshop/internal/models"
)

type ItemRepo struct {
	db *db.DB
	q  querier
}

func NewItemRepo(d *db.DB) *ItemRepo {
	return &ItemRepo{db: d, q: d}
}

func (r *ItemRepo) Tx(tx *sql.Tx) *ItemRepo {
	return &ItemRepo{db: r.db, q: tx}
}

func (r *ItemRepo) CreateItem(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO items (category_id, name, description, sizes, stock_quantity, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		RETURNING id`
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query),
		item.CategoryID, item.Name, item.Description, item.Sizes, item.StockQuantity,
	).Scan(&item.ID)
	if err != nil {
		slog.Error("Create item failed", "name", item.Name, "error", err)
		return err
	}
	return nil
}

// ItemByID returns sql.ErrNoRows when the item does not exist.
func (r *ItemRepo) ItemByID(ctx context.Context, id int64) (*models.Item, error) {
	query := `
		SELECT id, category_id, name, description, sizes, stock_quantity, created_at, updated_at
		FROM items
		WHERE id = ?`

	var (
		i       models.Item
		updated sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query), id).Scan(
		&i.ID, &i.CategoryID, &i.Name, &i.Description, &i.Sizes, &i.StockQuantity, &i.CreatedAt, &updated,
	)
	if err != nil {
		return nil, err
	}
	i.UpdatedAt = i.CreatedAt
	if updated.Valid {
		i.UpdatedAt = updated.Time
	}
	return &i, nil
}

// ItemsByCategory lists a category's items with their price in currencyCode,
// 0 when the item has no price in that currency. Images are not filled.
func (r *ItemRepo) ItemsByCategory(ctx context.Context, categoryID int64, currencyCode string) ([]models.ItemListing, error) {
	query := `
		SELECT i.id, i.category_id, i.name, i.description, i.sizes, i.stock_quantity, i.created_at,
		       i.updated_at, COALESCE(ip.price, 0)
		FROM items i
		LEFT JOIN currencies c ON c.name = ?
		LEFT JOIN item_prices ip ON ip.item_id = i.id AND ip.currency_id = c.id
		WHERE i.category_id = ?
		ORDER BY i.name, i.id`

	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), currencyCode, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ItemListing
	for rows.Next() {
		var (
			l       models.ItemListing
			updated sql.NullTime
		)
		err := rows.Scan(
			&l.ID, &l.CategoryID, &l.Name, &l.Description, &l.Sizes, &l.StockQuantity, &l.CreatedAt,
			&updated, &l.Price,
		)
		if err != nil {
			slog.Error("Scan item failed", "category_id", categoryID, "error", err)
			return nil, err
		}
		l.UpdatedAt = l.CreatedAt
		if updated.Valid {
			l.UpdatedAt = updated.Time
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

// ImagesByCategory returns every image of the category's items, grouped by
// item with the primary image first.
func (r *ItemRepo) ImagesByCategory(ctx context.Context, categoryID int64) ([]models.ItemImage, error) {
	query := `
		SELECT ii.id, ii.item_id, ii.image_path, ii.is_primary
		FROM item_images ii
		JOIN items i ON i.id = ii.item_id
		WHERE i.category_id = ?
		ORDER BY ii.item_id, ii.is_primary DESC, ii.id`
	return r.scanImages(ctx, query, categoryID)
}

func (r *ItemRepo) ItemImages(ctx context.Context, itemID int64) ([]models.ItemImage, error) {
	query := `
		SELECT id, item_id, image_path, is_primary
		FROM item_images
		WHERE item_id = ?
		ORDER BY is_primary DESC, id`
	return r.scanImages(ctx, query, itemID)
}

func (r *ItemRepo) scanImages(ctx context.Context, query string, arg int64) ([]models.ItemImage, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.ItemImage
	for rows.Next() {
		var img models.ItemImage
		if err := rows.Scan(&img.ID, &img.ItemID, &img.ImagePath, &img.IsPrimary); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *ItemRepo) ItemPrices(ctx context.Context, itemID int64) ([]models.ItemPrice, error) {
	query := `
		SELECT ip.id, ip.item_id, ip.currency_id, ip.price, c.name, c.symbol
		FROM item_prices ip
		JOIN currencies c ON ip.currency_id = c.id
		WHERE ip.item_id = ?
		ORDER BY c.name`

	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []models.ItemPrice
	for rows.Next() {
		var p models.ItemPrice
		if err := rows.Scan(&p.ID, &p.ItemID, &p.CurrencyID, &p.Price, &p.CurrencyName, &p.CurrencySymbol); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// ItemPrice returns the price of the item in currencyCode, or 0 when absent.
func (r *ItemRepo) ItemPrice(ctx context.Context, itemID int64, currencyCode string) (float64, error) {
	query := `
		SELECT ip.price
		FROM item_prices ip
		JOIN currencies c ON ip.currency_id = c.id
		WHERE ip.item_id = ? AND c.name = ?`

	var price float64
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query), itemID, currencyCode).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return price, err
}

func (r *ItemRepo) UpdateItem(ctx context.Context, item *models.Item) error {
	query := `
		UPDATE items
		SET category_id = ?, name = ?, description = ?, sizes = ?, stock_quantity = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`
	_, err := r.q.ExecContext(ctx, r.db.Rebind(query),
		item.CategoryID, item.Name, item.Description, item.Sizes, item.StockQuantity, item.ID,
	)
	if err != nil {
		slog.Error("Update item failed", "id", item.ID, "error", err)
		return err
	}
	return nil
}

func (r *ItemRepo) DeleteItem(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.db.Rebind(`DELETE FROM items WHERE id = ?`), id)
	if err != nil {
		slog.Error("Delete item failed", "id", id, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *ItemRepo) UpsertPrice(ctx context.Context, itemID, currencyID int64, price float64) error {
	query := `
		INSERT INTO item_prices (item_id, currency_id, price)
		VALUES (?, ?, ?)
		ON CONFLICT (item_id, currency_id) DO UPDATE SET price = excluded.price`
	_, err := r.q.ExecContext(ctx, r.db.Rebind(query), itemID, currencyID, price)
	return err
}

func (r *ItemRepo) AddImage(ctx context.Context, itemID int64, path string, primary bool) error {
	query := `INSERT INTO item_images (item_id, image_path, is_primary) VALUES (?, ?, ?)`
	_, err := r.q.ExecContext(ctx, r.db.Rebind(query), itemID, path, primary)
	return err
}

func (r *ItemRepo) DeleteImages(ctx context.Context, itemID int64) error {
	_, err := r.q.ExecContext(ctx, r.db.Rebind(`DELETE FROM item_images WHERE item_id = ?`), itemID)
	return err
}

func (r *ItemRepo) CountItems(ctx context.Context, categoryID int64) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM items WHERE category_id = ?`), categoryID).Scan(&n)
	return n, err
}
