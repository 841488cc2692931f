package repo

import (
	"context"
	"database/sql"
	"log/slog"

	"clothshop/internal/db"
	"clothshop/internal/models"
)

// UserRepo owns the per-user tables: currency preferences and bans.
type UserRepo struct {
	db *db.DB
	q  querier
}

func NewUserRepo(d *db.DB) *UserRepo {
	return &UserRepo{db: d, q: d}
}

func (r *UserRepo) Tx(tx *sql.Tx) *UserRepo {
	return &UserRepo{db: r.db, q: tx}
}

// PreferredCurrency returns sql.ErrNoRows when the user never picked one.
func (r *UserRepo) PreferredCurrency(ctx context.Context, userID int64) (*models.Currency, error) {
	query := `
		SELECT c.id, c.name, c.rate, c.symbol, c.is_active
		FROM user_preferences up
		JOIN currencies c ON up.currency_id = c.id
		WHERE up.user_id = ?`

	var c models.Currency
	err := r.q.QueryRowContext(ctx, r.db.Rebind(query), userID).Scan(&c.ID, &c.Name, &c.Rate, &c.Symbol, &c.IsActive)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *UserRepo) SetPreferredCurrency(ctx context.Context, userID, currencyID int64) error {
	query := `
		INSERT INTO user_preferences (user_id, currency_id)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET currency_id = excluded.currency_id`
	_, err := r.q.ExecContext(ctx, r.db.Rebind(query), userID, currencyID)
	if err != nil {
		slog.Error("Set currency failed", "user_id", userID, "currency_id", currencyID, "error", err)
	}
	return err
}

func (r *UserRepo) IsBanned(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM banned_users WHERE user_id = ?`), userID).Scan(&n)
	return n > 0, err
}

// BanUser reports false when the user was already banned.
func (r *UserRepo) BanUser(ctx context.Context, userID int64) (bool, error) {
	query := `
		INSERT INTO banned_users (user_id)
		VALUES (?)
		ON CONFLICT (user_id) DO NOTHING`
	res, err := r.q.ExecContext(ctx, r.db.Rebind(query), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UnbanUser reports false when the user was not banned.
func (r *UserRepo) UnbanUser(ctx context.Context, userID int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.db.Rebind(`DELETE FROM banned_users WHERE user_id = ?`), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *UserRepo) BannedUsers(ctx context.Context) ([]models.BannedUser, error) {
	query := `
		SELECT user_id, banned_at
		FROM banned_users
		ORDER BY banned_at DESC, user_id`

	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		slog.Error("List banned users failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	var users []models.BannedUser
	for rows.Next() {
		var u models.BannedUser
		if err := rows.Scan(&u.UserID, &u.BannedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
