/*
Package postgres provides a PostgreSQL-backed implementation of the storage interfaces.

PURPOSE:
  Same contracts as store/sqlite, on a pgx connection pool. Used when
  several server instances share one database.

INTERFACES IMPLEMENTED:
  calendar.TxRepository, leave.TxRepository, calendar.Directory, calendar.Catalog

SCHEMA:
  Versioned goose migrations embedded from migrations/*.sql and applied
  by Migrate. Balances are NUMERIC and travel as text so half days stay
  exact.

RANK PARKING:
  Identical to store/sqlite: batch rows are parked on negative ranks before
  the upserts, and a unique violation (23505) on idx_assignments_slot_rank
  surfaces as calendar.ErrRankTaken.

CONCURRENCY:
  pgxpool handles connection concurrency. Slot-level serialization is the
  engine's job (calendar.SlotLocks); this package only guarantees that a
  WithTx body commits or rolls back as a whole.

USAGE:
  pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
  ...
  if err := postgres.Migrate(ctx, pool); err != nil { ... }
  store := postgres.New(pool)

SEE ALSO:
  - store/sqlite: single-node backend with the same SQL shape
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB is the subset of *pgxpool.Pool the store needs. pgxmock.PgxPoolIface
// satisfies it as well.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier is satisfied by DB and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	db DB
	conn
}

var (
	_ calendar.TxRepository = (*Store)(nil)
	_ leave.TxRepository    = (*Store)(nil)
	_ calendar.Directory    = (*Store)(nil)
	_ calendar.Catalog      = (*Store)(nil)
)

// New wraps an open pool. Run Migrate first.
func New(db DB) *Store {
	return &Store{db: db, conn: conn{q: db}}
}

// Connect opens a pool, applies migrations and returns the store together
// with the pool so the caller can close it.
func Connect(ctx context.Context, url string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return New(pool), pool, nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	// goose works on *sql.DB; this one shares the pool's config.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// conn runs statements against one querier: the pool, or a transaction.
type conn struct {
	q querier
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(calendar.Repository) error) error {
	return s.inTx(ctx, func(c *conn) error { return fn(c) })
}

// WithLeaveTx executes fn within a database transaction.
func (s *Store) WithLeaveTx(ctx context.Context, fn func(leave.Repository) error) error {
	return s.inTx(ctx, func(c *conn) error { return fn(c) })
}

// SaveAssignments runs the batch in its own transaction so parking and
// upserts commit together.
func (s *Store) SaveAssignments(ctx context.Context, items ...calendar.Assignment) error {
	return s.inTx(ctx, func(c *conn) error { return c.SaveAssignments(ctx, items...) })
}

func (s *Store) inTx(ctx context.Context, fn func(*conn) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&conn{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `TRUNCATE assignments, leave_records, leave_allocations, employees, clients, projects, task_types`)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func dateArg(d *calendar.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

func dateOf(t *time.Time) *calendar.Date {
	if t == nil {
		return nil
	}
	d := calendar.DateOf(*t)
	return &d
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
