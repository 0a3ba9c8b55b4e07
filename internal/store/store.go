// Package store is the panel metadata store. It records what the
// orchestrator believes exists; the filesystem, nginx, MariaDB, and the
// OS user database hold the actual state. Rows are written only after the
// corresponding external side effects succeed.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Store wraps the SQLite database holding panel metadata.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the metadata database with WAL mode,
// busy timeout, and foreign keys enabled.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single writer avoids "database is locked" under SQLite
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sites (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			domain TEXT UNIQUE NOT NULL,
			php_version TEXT NOT NULL,
			ssl_mode TEXT NOT NULL DEFAULT 'none',
			ssl_expiry TIMESTAMP,
			upload_max_size_mb INTEGER NOT NULL DEFAULT 64,
			memory_limit_mb INTEGER NOT NULL DEFAULT 256,
			max_execution_secs INTEGER NOT NULL DEFAULT 120,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS databases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site_id INTEGER NOT NULL,
			db_name TEXT UNIQUE NOT NULL,
			db_user TEXT UNIQUE NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (site_id) REFERENCES sites (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS system_accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site_id INTEGER NOT NULL,
			username TEXT UNIQUE NOT NULL,
			access_mode TEXT NOT NULL DEFAULT 'ftp-only',
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (site_id) REFERENCES sites (id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS login_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ip_address TEXT NOT NULL,
			attempted_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_ip ON login_attempts (ip_address, attempted_at)`,
		`CREATE TABLE IF NOT EXISTS panel_settings (
			setting_key TEXT PRIMARY KEY,
			setting_value TEXT,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
