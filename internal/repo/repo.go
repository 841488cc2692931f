package repo

import (
	"context"
	"database/sql"
)

// querier is satisfied by both the pool and a transaction, so every repo can
// be rebound to a tx with its Tx method.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
