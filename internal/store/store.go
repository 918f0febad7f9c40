// Package store provides the durable local database for unitsync.
//
// The store is an embedded SQLite database (via ncruces/go-sqlite3) holding
// three collections: conversion history, key/value preferences, and a
// reserved sync queue. It is the sole owner of all records; callers open
// short transaction-scoped views and never hold cached copies across calls.
//
// The database runs with WAL enabled so the sync daemon and the control
// surface can read concurrently with writes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrStoreUnavailable indicates the underlying storage could not be opened
// or a transaction against it failed. Callers must treat this as non-fatal
// and degrade rather than crash the host.
var ErrStoreUnavailable = errors.New("store unavailable")

// schemaVersion is recorded in PRAGMA user_version. Bumps are additive
// only: new tables or indexes, never drops.
const schemaVersion = 1

// DB wraps the SQLite connection with unitsync-specific functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// Open is idempotent in effect: opening the same path repeatedly (or from
// concurrent workers) yields handles onto the same database, with SQLite's
// locking as the only concurrency guard. If the database doesn't exist it
// is created; call InitSchema before using the record operations.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %v", ErrStoreUnavailable, err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreUnavailable, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrStoreUnavailable, err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL mode for concurrent readers during writes
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %v", ErrStoreUnavailable, err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to set busy timeout: %v", ErrStoreUnavailable, err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: failed to enable foreign keys: %v", ErrStoreUnavailable, err)
	}

	return db, nil
}

// Path returns the filesystem path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
//
// This creates the conversions, preferences, and sync_queue tables along
// with the timestamp and synced indexes. Creation is additive only -
// existing collections are never dropped, so opening an older database
// with a newer binary only adds what is missing. Idempotent and safe to
// call concurrently or repeatedly.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value REAL NOT NULL,
		from_unit TEXT NOT NULL,
		to_unit TEXT NOT NULL,
		result REAL NOT NULL,
		timestamp INTEGER NOT NULL,  -- milliseconds since epoch
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,  -- JSON
		timestamp INTEGER NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	-- Reserved outbox; not populated by any current operation
	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag TEXT NOT NULL,
		payload TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_timestamp ON conversions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_conversions_synced ON conversions(synced);
	CREATE INDEX IF NOT EXISTS idx_preferences_synced ON preferences(synced);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to initialize schema: %v", ErrStoreUnavailable, err)
	}

	// Record the schema version for future additive upgrades. user_version
	// is left alone when it is already at or past the current version.
	var current int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("%w: failed to read schema version: %v", ErrStoreUnavailable, err)
	}
	if current < schemaVersion {
		if _, err := db.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d", schemaVersion)); err != nil {
			return fmt.Errorf("%w: failed to set schema version: %v", ErrStoreUnavailable, err)
		}
	}

	return nil
}

// SchemaVersion returns the user_version recorded in the database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("%w: failed to read schema version: %v", ErrStoreUnavailable, err)
	}
	return v, nil
}
