package repo

import (
	"context"
	"database/sql"

	"clothshop/internal/db"
	"clothshop/internal/models"
)

type CurrencyRepo struct {
	db *db.DB
	q  querier
}

func NewCurrencyRepo(d *db.DB) *CurrencyRepo {
	return &CurrencyRepo{db: d, q: d}
}

func (r *CurrencyRepo) Tx(tx *sql.Tx) *CurrencyRepo {
	return &CurrencyRepo{db: r.db, q: tx}
}

func (r *CurrencyRepo) ActiveCurrencies(ctx context.Context) ([]models.Currency, error) {
	query := `
		SELECT id, name, rate, symbol, is_active
		FROM currencies
		WHERE is_active = ?
		ORDER BY name`
	return r.scan(ctx, r.db.Rebind(query), true)
}

func (r *CurrencyRepo) AllCurrencies(ctx context.Context) ([]models.Currency, error) {
	query := `
		SELECT id, name, rate, symbol, is_active
		FROM currencies
		ORDER BY name`
	return r.scan(ctx, query)
}

func (r *CurrencyRepo) scan(ctx context.Context, query string, args ...any) ([]models.Currency, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var currencies []models.Currency
	for rows.Next() {
		var c models.Currency
		if err := rows.Scan(&c.ID, &c.Name, &c.Rate, &c.Symbol, &c.IsActive); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

func (r *CurrencyRepo) CurrencyByID(ctx context.Context, id int64) (*models.Currency, error) {
	query := `SELECT id, name, rate, symbol, is_active FROM currencies WHERE id = ?`
	var c models.Currency
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query), id).Scan(&c.ID, &c.Name, &c.Rate, &c.Symbol, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CurrencyRepo) CurrencyByName(ctx context.Context, name string) (*models.Currency, error) {
	query := `SELECT id, name, rate, symbol, is_active FROM currencies WHERE name = ?`
	var c models.Currency
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query), name).Scan(&c.ID, &c.Name, &c.Rate, &c.Symbol, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CurrencyRepo) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.q.ExecContext(ctx, r.db.Rebind(`UPDATE currencies SET is_active = ? WHERE id = ?`), active, id)
	return err
}
