/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements assignment, leave and reference-data persistence on SQLite.
  store/postgres implements the same contracts on PostgreSQL; the SQL is
  kept close so behavior matches across both.

INTERFACES IMPLEMENTED:
  calendar.TxRepository: Assignment persistence
  leave.TxRepository:    Leave records and allocations
  calendar.Directory:    Employees and teams
  calendar.Catalog:      Display names and colors for task references

KEY TABLES:
  assignments:       Placed work items (soft-deleted via is_active)
  leave_records:     Leave requests and their review state
  leave_allocations: Yearly balances, decimals stored as TEXT
  employees:         Minimal reference data (name, team)
  clients, projects, task_types: Display names and colors

INDEXES:
  - idx_assignments_slot_rank: UNIQUE (employee, date, slot, slot_order)
    over active rows. A violation surfaces as calendar.ErrRankTaken.
  - idx_assignments_employee_date: range reads for views
  - idx_leave_employee_range: leave marks per employee and range

RANK PARKING:
  SaveAssignments first moves the ranks of every row in the batch to
  -1-slot_order, then upserts. Reshuffling ranks inside one slot therefore
  never trips the unique index, while a rank held by a row outside the
  batch still does.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Inside WithTx every statement goes
  through the *sql.Tx; the repository handed to fn never touches the mutex.

USAGE:
  store, err := sqlite.New("./data/calendar.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - calendar/store.go: Repository contracts
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/slot-calendar/calendar"
	"github.com/warp/slot-calendar/leave"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ calendar.TxRepository = (*Store)(nil)
	_ leave.TxRepository    = (*Store)(nil)
	_ calendar.Directory    = (*Store)(nil)
	_ calendar.Catalog      = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000"
	if dbPath != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		team_id TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_team
		ON employees(team_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS task_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		slot TEXT NOT NULL,
		slot_order INTEGER NOT NULL,
		column_start INTEGER NOT NULL,
		layout_row INTEGER NOT NULL,
		layout_column INTEGER NOT NULL,
		layout_width INTEGER NOT NULL,
		layout_height INTEGER NOT NULL,
		task_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		task_type_id TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT '',
		client_id TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL,
		status TEXT NOT NULL,
		due_date TEXT,
		notes TEXT NOT NULL DEFAULT '',
		duration_hours INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		updated_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- CRITICAL: one active assignment per rank in a slot
	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_slot_rank
		ON assignments(employee_id, date, slot, slot_order) WHERE is_active = 1;

	CREATE INDEX IF NOT EXISTS idx_assignments_employee_date
		ON assignments(employee_id, date) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS leave_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		hours INTEGER NOT NULL,
		slot TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT NOT NULL DEFAULT '',
		exceeds_balance BOOLEAN NOT NULL DEFAULT 0,
		requested_by TEXT NOT NULL DEFAULT '',
		reviewed_by TEXT NOT NULL DEFAULT '',
		review_note TEXT NOT NULL DEFAULT '',
		reviewed_at TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_leave_employee_range
		ON leave_records(employee_id, from_date, to_date);
	CREATE INDEX IF NOT EXISTS idx_leave_status
		ON leave_records(status);

	CREATE TABLE IF NOT EXISTS leave_allocations (
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		annual_total TEXT NOT NULL,
		annual_used TEXT NOT NULL,
		sick_total TEXT NOT NULL,
		sick_used TEXT NOT NULL,
		other_total TEXT NOT NULL,
		other_used TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, year)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs every statement against one querier. Store wraps it with the
// mutex; transactions use it directly.
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

func (s *Store) inTx(ctx context.Context, fn func(*conn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) read() (*conn, func()) {
	s.mu.RLock()
	return &conn{q: s.db}, s.mu.RUnlock
}

func (s *Store) write() (*conn, func()) {
	s.mu.Lock()
	return &conn{q: s.db}, s.mu.Unlock
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"assignments", "leave_records", "leave_allocations", "employees", "clients", "projects", "task_types"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullDate(d *calendar.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseNullDate(ns sql.NullString) (*calendar.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
