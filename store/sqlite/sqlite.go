/*
Package sqlite provides a SQLite-backed implementation of the review storage interfaces.

PURPOSE:
  Implements review.Store (confirmed working copy + review state) and the
  read-side collaborators the engine consumes, so a single database file
  can back the whole service.

INTERFACES IMPLEMENTED:
  review.Store:              Confirmed details, designations, review state
  review.ProposedPlanSource: Submitted compartments and proposed details
  review.ApplicationContext: Application summary, woodland owner, FC area
  review.UserDirectory:      User accounts
  review.AuditLog:           Append-only audit trail with Query

KEY TABLES:
  confirmed_compartments:         Compartments copied on import
  confirmed_felling_details:      One row per confirmed felling operation (seq = persisted order)
  confirmed_felling_species:      Replaced wholesale on every save
  confirmed_restocking_details:   Children of a felling detail (never proposal type None)
  confirmed_restocking_species:   Replaced wholesale on every save
  woodland_officer_reviews:       One review state per application
  audit_events:                   Append-only

TRANSACTIONS:
  The pool is limited to one connection. While a transaction is open every
  read for that operation goes through the *sql.Tx (see querier); reading
  through the pool instead would wait for the connection the transaction
  holds. The engine performs its collaborator reads before it begins.

MIGRATION:
  Versioned migrations are embedded and applied with golang-migrate on New().

USAGE:
  store, err := sqlite.New("./data/review.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - review/store.go: Interface definitions
  - review/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/forestry/woodland-review/review"
)

//go:embed migrations/*.sql
var migrations embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the review storage interfaces using SQLite.
type Store struct {
	reader
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{reader: reader{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	// m.Close would also close db, which the store still owns.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTION SUPPORT
// =============================================================================

// BeginTransaction opens a database transaction bound to ctx.
func (s *Store) BeginTransaction(ctx context.Context) (review.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{writer: writer{reader: reader{q: tx}}, tx: tx}, nil
}

// Tx is an open transaction. Every read and write goes through it.
type Tx struct {
	writer
	tx   *sql.Tx
	done bool
}

func (t *Tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	return t.tx.Commit()
}

// Rollback is a no-op once the transaction has finished.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

var (
	_ review.Store              = (*Store)(nil)
	_ review.Transaction        = (*Tx)(nil)
	_ review.ProposedPlanSource = (*Store)(nil)
	_ review.ApplicationContext = (*Store)(nil)
	_ review.UserDirectory      = (*Store)(nil)
	_ review.AuditLog           = (*Store)(nil)
)
