// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// needs no C toolchain. Pass ":memory:" to New for a throwaway database in
// tests.
//
// One *DB value implements every repository interface (listings, tags,
// users, clicks). The pool is capped at a single connection: SQLite allows
// one writer at a time anyway, and an in-memory database only exists on the
// connection that created it. The flip side is that a method must close its
// *sql.Rows before issuing the next query, or it will wait on itself.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, applies pragmas and runs migrations.
//
// dbPath examples:
//   - "data/jobboard.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// each start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				customer_id   TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"listings", `
			CREATE TABLE IF NOT EXISTS listings (
				id             TEXT PRIMARY KEY,
				owner_id       TEXT NOT NULL REFERENCES users(id),
				title          TEXT NOT NULL,
				slug           TEXT NOT NULL UNIQUE,
				company        TEXT NOT NULL,
				location       TEXT NOT NULL,
				logo           TEXT NOT NULL DEFAULT '',
				apply_link     TEXT NOT NULL,
				content        TEXT NOT NULL,
				is_highlighted INTEGER NOT NULL DEFAULT 0,
				is_active      INTEGER NOT NULL DEFAULT 1,
				charge_id      TEXT NOT NULL DEFAULT '',
				created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_listings_active_created ON listings(is_active, created_at);
			CREATE INDEX IF NOT EXISTS idx_listings_owner_id ON listings(owner_id);
		`},
		{"tags", `
			CREATE TABLE IF NOT EXISTS tags (
				id   TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE
			);
		`},
		{"listing_tags", `
			CREATE TABLE IF NOT EXISTS listing_tags (
				listing_id TEXT NOT NULL REFERENCES listings(id),
				tag_id     TEXT NOT NULL REFERENCES tags(id),
				PRIMARY KEY (listing_id, tag_id)
			);
			CREATE INDEX IF NOT EXISTS idx_listing_tags_tag_id ON listing_tags(tag_id);
		`},
		{"clicks", `
			CREATE TABLE IF NOT EXISTS clicks (
				id         TEXT PRIMARY KEY,
				listing_id TEXT NOT NULL REFERENCES listings(id),
				user_agent TEXT NOT NULL DEFAULT '',
				ip         TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_clicks_listing_id ON clicks(listing_id);
		`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", step.name, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
// modernc.org/sqlite reports constraint failures with SQLite's own message
// text, which is stable across versions.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
