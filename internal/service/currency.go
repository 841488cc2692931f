package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"clothshop/internal/db"
	"clothshop/internal/models"
	"clothshop/internal/repo"
)

// UserCurrency is the currency a user sees prices in.
type UserCurrency struct {
	Code   string
	Rate   float64
	Symbol string
}

type CurrencyService struct {
	currencies *repo.CurrencyRepo
	users      *repo.UserRepo
	fallback   UserCurrency
}

func NewCurrencyService(d *db.DB, fallbackCode string, fallbackRate float64) *CurrencyService {
	return &CurrencyService{
		currencies: repo.NewCurrencyRepo(d),
		users:      repo.NewUserRepo(d),
		fallback:   UserCurrency{Code: fallbackCode, Rate: fallbackRate, Symbol: fallbackCode},
	}
}

// GetUserCurrency returns the stored preference or the configured fallback.
func (s *CurrencyService) GetUserCurrency(ctx context.Context, userID int64) (UserCurrency, error) {
	c, err := s.users.PreferredCurrency(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return s.fallback, nil
	}
	if err != nil {
		return s.fallback, fmt.Errorf("currency of user %d: %w", userID, err)
	}
	return UserCurrency{Code: c.Name, Rate: c.Rate, Symbol: c.Symbol}, nil
}

func (s *CurrencyService) SetUserCurrency(ctx context.Context, userID, currencyID int64) (*models.Currency, error) {
	c, err := s.currencies.CurrencyByID(ctx, currencyID)
	if err != nil {
		return nil, notFound(err, "currency", currencyID)
	}
	if err := s.users.SetPreferredCurrency(ctx, userID, currencyID); err != nil {
		return nil, fmt.Errorf("set currency of user %d: %w", userID, err)
	}
	return c, nil
}

// CurrencyByCode is used by the web surface to validate a session value. An
// inactive currency is unknown unless no currency is active at all.
func (s *CurrencyService) CurrencyByCode(ctx context.Context, code string) (*models.Currency, error) {
	c, err := s.currencies.CurrencyByName(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: currency %s", ErrNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("currency %s: %w", code, err)
	}
	if c.IsActive {
		return c, nil
	}

	active, err := s.currencies.ActiveCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("currency %s: %w", code, err)
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("%w: currency %s is inactive", ErrNotFound, code)
	}
	return c, nil
}

// Convert turns an amount in the base currency into one at rate.
func Convert(amountInBase, rate float64) float64 {
	return decimal.NewFromFloat(amountInBase).Mul(decimal.NewFromFloat(rate)).InexactFloat64()
}

// FormatPrice renders an amount with two decimals and the currency code.
func FormatPrice(amount float64, code string) string {
	return decimal.NewFromFloat(amount).StringFixed(2) + " " + code
}
