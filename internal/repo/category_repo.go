package repo

import (
	"context"
	"database/sql"
	"log/slog"

	"clothshop/internal/db"
	"clothshop/internal/models"
)

type CategoryRepo struct {
	db *db.DB
	q  querier
}

func NewCategoryRepo(d *db.DB) *CategoryRepo {
	return &CategoryRepo{db: d, q: d}
}

func (r *CategoryRepo) Tx(tx *sql.Tx) *CategoryRepo {
	return &CategoryRepo{db: r.db, q: tx}
}

func (r *CategoryRepo) CreateCategory(ctx context.Context, category *models.Category) error {
	query := `
		INSERT INTO categories (name, image_path, folder_name)
		VALUES (?, ?, ?)
		RETURNING id`
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query),
		category.Name, category.ImagePath, category.FolderName,
	).Scan(&category.ID)
	if err != nil {
		slog.Error("Create category failed", "name", category.Name, "error", err)
		return err
	}
	return nil
}

func (r *CategoryRepo) AllCategories(ctx context.Context) ([]models.Category, error) {
	query := `
		SELECT id, name, image_path, folder_name, created_at
		FROM categories
		ORDER BY name`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ImagePath, &c.FolderName, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CategoryByID returns sql.ErrNoRows when the category does not exist.
func (r *CategoryRepo) CategoryByID(ctx context.Context, id int64) (*models.Category, error) {
	query := `
		SELECT id, name, image_path, folder_name, created_at
		FROM categories
		WHERE id = ?`

	var c models.Category
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query), id).Scan(
		&c.ID, &c.Name, &c.ImagePath, &c.FolderName, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepo) CategoryByName(ctx context.Context, name string) (*models.Category, error) {
	query := `
		SELECT id, name, image_path, folder_name, created_at
		FROM categories
		WHERE name = ?`

	var c models.Category
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query), name).Scan(
		&c.ID, &c.Name, &c.ImagePath, &c.FolderName, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepo) UpdateCategory(ctx context.Context, category *models.Category) error {
	query := `
		UPDATE categories
		SET name = ?, image_path = ?
		WHERE id = ?`
	_, err := r.q.ExecContext(ctx, r.db.Rebind(query), category.Name, category.ImagePath, category.ID)
	if err != nil {
		slog.Error("Update category failed", "id", category.ID, "error", err)
		return err
	}
	return nil
}

// DeleteCategory removes the category; items, images, prices and cart lines
// go with it through ON DELETE CASCADE.
func (r *CategoryRepo) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.db.Rebind(`DELETE FROM categories WHERE id = ?`), id)
	if err != nil {
		slog.Error("Delete category failed", "id", id, "error", err)
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
