package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"clothshop/internal/db"
	"clothshop/internal/models"
)

type OrderRepo struct {
	db *db.DB
	q  querier
}

func NewOrderRepo(d *db.DB) *OrderRepo {
	return &OrderRepo{db: d, q: d}
}

func (r *OrderRepo) Tx(tx *sql.Tx) *OrderRepo {
	return &OrderRepo{db: r.db, q: tx}
}

const orderColumns = `id, user_id, order_data, total_price, currency_code, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order models.Order
		data  string
	)
	err := row.Scan(&order.ID, &order.UserID, &data, &order.TotalPrice,
		&order.CurrencyCode, &order.Status, &order.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &order.Data); err != nil {
		return nil, fmt.Errorf("order %d: decode order_data: %w", order.ID, err)
	}
	return &order, nil
}

// CreateOrder stores the order with its snapshot serialised as JSON.
func (r *OrderRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order.Data)
	if err != nil {
		return fmt.Errorf("encode order_data: %w", err)
	}
	if order.Status == "" {
		order.Status = models.OrderPending
	}

	query := `
		INSERT INTO orders (user_id, order_data, total_price, currency_code, status)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`
	err = r.q.QueryRowContext(ctx, r.db.Rebind(query),
		order.UserID, string(data), order.TotalPrice, order.CurrencyCode, string(order.Status),
	).Scan(&order.ID)
	if err != nil {
		slog.Error("Create order failed", "user_id", order.UserID, "error", err)
		return err
	}
	return nil
}

// OrderByID returns sql.ErrNoRows when the order does not exist.
func (r *OrderRepo) OrderByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`
	return scanOrder(r.q.QueryRowContext(ctx, r.db.Rebind(query), id))
}

func (r *OrderRepo) PaginateOrders(ctx context.Context, limit, offset int) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`
	return r.list(ctx, query, limit, offset)
}

func (r *OrderRepo) UserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, userID)
}

func (r *OrderRepo) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.q.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			slog.Error("Scan order failed", "error", err)
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *OrderRepo) CountOrders(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	return count, err
}

// TransitionStatus moves an order from one status to another. It reports
// false when the order is missing or no longer in the from status.
func (r *OrderRepo) TransitionStatus(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error) {
	query := `
		UPDATE orders
		SET status = ?
		WHERE id = ? AND status = ?`
	res, err := r.q.ExecContext(ctx, r.db.Rebind(query), string(to), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
