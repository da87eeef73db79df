// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHAT IS STORED HERE?
// Only one thing: the backend bearer token of each browser client, sealed
// (see auth.Sealer). It is the server-side equivalent of the single
// "auth_token" entry a browser-only app would keep in localStorage. Profiles
// and statistics are never persisted by this service; they are fetched fresh
// from the backend on every page visit.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// SQLite, so the server builds anywhere Go does.
package sqlite

import (
	"database/sql"
	"fmt"

	// The blank import registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/devfolio.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
//
// ONE CONNECTION:
// With ":memory:" every new connection would see its own empty database, and
// SQLite serializes writers anyway, so the pool is capped at one connection.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	// Ping forces a real connection so a bad path fails here, not on the
	// first request.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
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

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS client_tokens (
			client_id  TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating client_tokens table: %w", err)
	}

	// last_seen_unix was added after the first release; PurgeIdle uses it.
	// Unix seconds keep the comparison numeric instead of relying on how the
	// driver formats time.Time.
	if err := db.addColumnIfNotExists("client_tokens", "last_seen_unix",
		"INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding last_seen_unix to client_tokens: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_client_tokens_last_seen ON client_tokens(last_seen_unix);
	`)
	if err != nil {
		return fmt.Errorf("creating client_tokens last_seen index: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so it is safe to run more than once.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
