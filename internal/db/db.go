package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"clothshop/internal/config"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrForeignKeysOff = errors.New("foreign key enforcement is disabled")

// DB is the process-wide connection pool. Queries are written with ?
// placeholders and passed through Rebind before execution.
type DB struct {
	*sql.DB
	Driver string
}

func Open(cfg *config.Config) (*DB, error) {
	switch cfg.DBDriver {
	case DriverPostgres:
		return OpenPostgres(cfg.PostgresDSN())
	default:
		return OpenSQLite(cfg.DBPath)
	}
}

func OpenPostgres(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		slog.Error("Error connection to postgres", "error", err)
		return nil, err
	}
	slog.Info("Connection to postgres")
	return &DB{DB: conn, Driver: DriverPostgres}, nil
}

// OpenSQLite opens the database file with foreign keys enforced on every
// pooled connection.
func OpenSQLite(path string) (*DB, error) {
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	var fk int
	if err := conn.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		conn.Close()
		return nil, err
	}
	if fk != 1 {
		conn.Close()
		return nil, ErrForeignKeysOff
	}
	slog.Info("Connection to sqlite", "path", path)
	return &DB{DB: conn, Driver: DriverSQLite}, nil
}

// Rebind rewrites ? placeholders into $1..$n for postgres.
func (d *DB) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back on error or panic.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
