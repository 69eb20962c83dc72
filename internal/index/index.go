// Package index is the relational metadata store: headers, bodies and
// attachment rows in a single embedded SQLite database. All access is
// funneled through one Index value which owns the connection exclusively
// and serializes every operation; the raw handle is never exposed.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schemaVersion = 1

const schema = `
	CREATE TABLE IF NOT EXISTS headers (
		account_id   TEXT NOT NULL,
		folder       TEXT NOT NULL,
		uid          INTEGER NOT NULL,
		from_address TEXT NOT NULL DEFAULT '',
		subject      TEXT NOT NULL DEFAULT '',
		date_epoch   INTEGER,
		flags_json   TEXT NOT NULL DEFAULT '[]',
		created_at   INTEGER NOT NULL,
		PRIMARY KEY (account_id, folder, uid)
	);

	CREATE INDEX IF NOT EXISTS idx_headers_listing
		ON headers (account_id, folder, date_epoch DESC);
	CREATE INDEX IF NOT EXISTS idx_headers_search
		ON headers (from_address, subject);

	CREATE TABLE IF NOT EXISTS bodies (
		account_id        TEXT NOT NULL,
		folder            TEXT NOT NULL,
		uid               INTEGER NOT NULL,
		body_text         TEXT,
		body_html         TEXT,
		has_attachments   BOOLEAN NOT NULL DEFAULT 0,
		content_type      TEXT NOT NULL DEFAULT '',
		charset           TEXT NOT NULL DEFAULT '',
		transfer_encoding TEXT NOT NULL DEFAULT '',
		is_multipart      BOOLEAN NOT NULL DEFAULT 0,
		raw_size          INTEGER NOT NULL DEFAULT 0,
		raw_body          TEXT,
		processed_at      INTEGER,
		PRIMARY KEY (account_id, folder, uid)
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id           TEXT PRIMARY KEY,
		account_id   TEXT NOT NULL,
		folder       TEXT NOT NULL,
		uid          INTEGER NOT NULL,
		part_id      TEXT NOT NULL,
		filename     TEXT NOT NULL DEFAULT '',
		mime_type    TEXT NOT NULL DEFAULT '',
		size_bytes   INTEGER NOT NULL DEFAULT 0,
		content_id   TEXT NOT NULL DEFAULT '',
		is_inline    BOOLEAN NOT NULL DEFAULT 0,
		checksum     TEXT NOT NULL,
		storage_path TEXT,
		inline_data  BLOB,
		created_at   INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_attachments_message
		ON attachments (account_id, folder, uid, part_id);
	CREATE INDEX IF NOT EXISTS idx_attachments_checksum
		ON attachments (checksum);
	CREATE INDEX IF NOT EXISTS idx_attachments_content_id
		ON attachments (content_id) WHERE is_inline = 1;

	CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER NOT NULL,
		applied_at INTEGER NOT NULL
	);
`

// Index owns the embedded database. Concurrent raw access to one SQLite
// connection is undefined behavior, so every method holds mu for its
// duration and the pool is pinned to a single connection.
type Index struct {
	mu  sync.Mutex
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at path, creates the schema
// idempotently and records the schema version. Any failure here is fatal
// to the storage subsystem; no partially initialized Index is returned.
func Open(path string, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := recordSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Index{db: db, log: log}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.db.Close()
}

// SchemaVersion returns the recorded schema version.
func (ix *Index) SchemaVersion(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var version int
	err := ix.db.QueryRowContext(ctx, `
		SELECT version FROM schema_version ORDER BY version DESC LIMIT 1
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query schema version: %w", err)
	}
	return version, nil
}

func recordSchemaVersion(db *sql.DB) error {
	var current sql.NullInt64
	err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current.Valid && current.Int64 >= schemaVersion {
		return nil
	}
	_, err = db.Exec(`
		INSERT INTO schema_version (version, applied_at) VALUES (?, ?)
	`, schemaVersion, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// inTx runs fn inside a transaction while holding the access lock.
func (ix *Index) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// epochPtr converts a nullable epoch column to a *time.Time.
func epochPtr(epoch sql.NullInt64) *time.Time {
	if !epoch.Valid {
		return nil
	}
	t := time.Unix(epoch.Int64, 0).UTC()
	return &t
}

// ptrEpoch converts a *time.Time to a nullable epoch value.
func ptrEpoch(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
