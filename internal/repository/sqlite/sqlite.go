// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of the SQLite C sources —
// no CGo, so the binary cross-compiles anywhere Go does. The database is
// a single file (or ":memory:" in tests), which fits this service's
// single-node deployment model: per-document update atomicity and the
// UNIQUE email constraint are all the coordination the spec needs.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB pool. The repository method sets live on the
// sub-repositories returned by Users and Courses, which share the pool.
type DB struct {
	conn *sql.DB
}

// Users returns the user repository backed by this database.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Courses returns the course repository backed by this database.
func (db *DB) Courses() *CourseDB {
	return &CourseDB{conn: db.conn}
}

// New opens the database, applies the connection pragmas, and runs
// migrations. Use ":memory:" for an ephemeral test database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Each pool connection to ":memory:" would get its own empty database,
	// so the in-memory case is pinned to a single connection. Writes are
	// serialized by SQLite anyway.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in flight — important for a
	// web server sharing one database file across request goroutines.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// Writers wait for the lock instead of failing immediately with
	// SQLITE_BUSY when requests overlap.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this
// idempotent across restarts.
func (db *DB) migrate() error {
	// users.email carries the UNIQUE constraint that makes concurrent
	// duplicate registrations lose at the store level. Reset token fields
	// default to the "absent" pair: empty hash, NULL expiry.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                  TEXT PRIMARY KEY,
			full_name           TEXT NOT NULL,
			email               TEXT NOT NULL UNIQUE,
			password_hash       TEXT NOT NULL,
			role                TEXT NOT NULL DEFAULT 'USER',
			avatar_public_id    TEXT NOT NULL DEFAULT '',
			avatar_url          TEXT NOT NULL DEFAULT '',
			subscription        TEXT NOT NULL DEFAULT 'inactive',
			reset_token_hash    TEXT NOT NULL DEFAULT '',
			reset_token_expires DATETIME,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_reset_token_hash ON users(reset_token_hash);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS courses (
			id                  TEXT PRIMARY KEY,
			title               TEXT NOT NULL,
			description         TEXT NOT NULL,
			category            TEXT NOT NULL,
			thumbnail_public_id TEXT NOT NULL DEFAULT '',
			thumbnail_url       TEXT NOT NULL DEFAULT '',
			created_by          TEXT NOT NULL,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_courses_created_at ON courses(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating courses table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS lectures (
			id              TEXT PRIMARY KEY,
			course_id       TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			title           TEXT NOT NULL,
			description     TEXT NOT NULL DEFAULT '',
			media_public_id TEXT NOT NULL DEFAULT '',
			media_url       TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_lectures_course_id ON lectures(course_id);
	`)
	if err != nil {
		return fmt.Errorf("creating lectures table: %w", err)
	}

	return nil
}
