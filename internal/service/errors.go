package service

import (
	"database/sql"
	"errors"
	"fmt"

	"clothshop/internal/auth"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = auth.ErrForbidden
	ErrEmptyCart  = fmt.Errorf("%w: cart is empty", ErrValidation)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// notFound maps sql.ErrNoRows onto ErrNotFound and wraps anything else as a
// storage failure.
func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
	}
	return fmt.Errorf("get %s %d: %w", what, id, err)
}
