// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no C compiler, no CGo, and the same
// binary runs everywhere. Tests open ":memory:" databases through the same
// code path as production.
//
// CONNECTION POOL:
// sql.DB is a pool, but SQLite allows only one writer and every ":memory:"
// connection is a separate, empty database. New therefore caps the pool at a
// single connection. The consequence for callers inside this package: never
// start a second query while a *sql.Rows is still open, or the pool
// deadlocks waiting for itself.
//
// TIMESTAMPS:
// All times are written in UTC. The driver stores them as text, so range
// comparisons in SQL (code retention, ordering) are plain string comparisons
// and only hold when every row shares the same zone.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/bookclub.db"  → file-based database (persistent)
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

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. Favorites, reviews and
	// registrations rely on ON DELETE CASCADE when a book or user goes away.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}

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

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate runs all database migrations. Every statement is idempotent so it
// runs unconditionally on startup.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			email         TEXT NOT NULL DEFAULT '',
			phone         TEXT NOT NULL DEFAULT '',
			birth_date    TEXT NOT NULL DEFAULT '',
			role          TEXT NOT NULL DEFAULT 'user',
			fav_authors   TEXT NOT NULL DEFAULT '[]',
			fav_genres    TEXT NOT NULL DEFAULT '[]',
			fav_books     TEXT NOT NULL DEFAULT '[]',
			discuss_books TEXT NOT NULL DEFAULT '[]',
			created_at    DATETIME NOT NULL,
			updated_at    DATETIME NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
		CREATE INDEX IF NOT EXISTS idx_users_phone ON users(phone) WHERE phone <> '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// At most one current book: the partial unique index rejects a second
	// row with is_current = 1.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS books (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			author      TEXT NOT NULL,
			date        TEXT NOT NULL,
			location    TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_current  INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_books_created_at ON books(created_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_books_current ON books(is_current) WHERE is_current = 1;
	`)
	if err != nil {
		return fmt.Errorf("creating books table: %w", err)
	}

	// search_key holds lower-cased "title\nauthor". SQLite's LIKE and lower()
	// only fold ASCII, so folding happens in Go before insert and before query.
	if err := db.addColumnIfNotExists("books", "search_key",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding search_key to books: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS auth_codes (
			id         TEXT PRIMARY KEY,
			identifier TEXT NOT NULL,
			code_hash  TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			used       INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_auth_codes_lookup ON auth_codes(identifier, code_hash);
		CREATE INDEX IF NOT EXISTS idx_auth_codes_created_at ON auth_codes(created_at);

		CREATE TABLE IF NOT EXISTS auth_tokens (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL,
			issued_at  DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			active     INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_auth_tokens_user_id ON auth_tokens(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating auth tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS favorites (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			book_id    TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL,
			UNIQUE (user_id, book_id)
		);

		CREATE TABLE IF NOT EXISTS reviews (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			book_id    TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment    TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reviews_book_id ON reviews(book_id);

		CREATE TABLE IF NOT EXISTS meeting_registrations (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			book_id       TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			registered_at DATETIME NOT NULL,
			status        TEXT NOT NULL CHECK (status IN ('registered', 'cancelled'))
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_meeting_active
			ON meeting_registrations(user_id, book_id) WHERE status = 'registered';
		CREATE INDEX IF NOT EXISTS idx_meeting_book_id ON meeting_registrations(book_id);
	`)
	if err != nil {
		return fmt.Errorf("creating membership tables: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent: safe to run multiple times.
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
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// isForeignKeyViolation reports whether err is a FOREIGN KEY failure,
// i.e. the referenced user or book does not exist.
func isForeignKeyViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
