// Package pg implements the role and audit stores on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"laundrydesk.io/internal/auth"
)

const (
	pgErrUniqueViolation = "23505"
	// raised by create_first_admin when a membership already exists
	pgErrAdminsExist = "LD001"
)

var (
	_ auth.RoleStore  = (*Store)(nil)
	_ auth.AuditStore = (*Store)(nil)
)

var errNoConnection = fmt.Errorf("%w: database connection unavailable", auth.ErrStoreUnreachable)

// Store is the system-of-record role store.
type Store struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB { return s.db }

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errNoConnection
	}
	return s.db.PingContext(ctx)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// wrapErr classifies driver errors. Errors reported by the server keep
// their identity; anything else means the store could not be reached.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := maybePgError(err); ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, auth.ErrNotFound) || errors.Is(err, auth.ErrStoreUnreachable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", auth.ErrStoreUnreachable, op, err)
}
