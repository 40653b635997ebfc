// Package sqlite provides a SQLite-backed implementation of the domain
// repositories for local development and tests. The schema mirrors the
// PostgreSQL migrations and is created on Open.
//
// Amounts and balances are stored as decimal TEXT so values round-trip
// exactly. Calendar dates are stored as YYYY-MM-DD TEXT, which sorts
// chronologically.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is a SQLite connection pool.
type DB struct {
	*sql.DB
}

// Open opens the database at path and creates the schema. Use ":memory:"
// for a private in-memory database.
func Open(path string) (*DB, error) {
	dsn := path
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		dsn = path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	store := &DB{db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (db *DB) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		user_id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		access_token TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		account_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		official_name TEXT,
		type TEXT NOT NULL DEFAULT '',
		subtype TEXT,
		mask TEXT,
		current_balance TEXT,
		available_balance TEXT,
		currency TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_user_created ON accounts(user_id, created_at DESC, account_id);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		merchant_name TEXT,
		amount TEXT NOT NULL,
		currency TEXT,
		category TEXT,
		date TEXT NOT NULL,
		pending INTEGER NOT NULL DEFAULT 0,
		raw_payload TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date DESC, transaction_id);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		item_id TEXT,
		trigger_type TEXT NOT NULL,
		status TEXT NOT NULL,
		window_start TEXT,
		window_end TEXT,
		accounts_upserted INTEGER NOT NULL DEFAULT 0,
		transactions_upserted INTEGER NOT NULL DEFAULT 0,
		error_kind TEXT,
		error_message TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_user_started ON sync_runs(user_id, started_at DESC);
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.DateOnly), Valid: true}
}

func parseDate(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, ns.String)
}
