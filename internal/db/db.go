// Package db is the SQLite run ledger: runs, the uploads they made and the
// documents they rewrote.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the ledger database inside the state directory.
const FileName = "wpswap.db"

// Init initializes the SQLite database at baseDir/wpswap.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.wpswap.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Reports are written here unless an explicit path is given
	reportsDir := filepath.Join(baseDir, "reports")
	if err := os.MkdirAll(reportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	_ = os.Chmod(reportsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ReportsDir returns the default report directory under baseDir.
func ReportsDir(baseDir string) string {
	return filepath.Join(baseDir, "reports")
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id                TEXT PRIMARY KEY,
		  kind              TEXT NOT NULL,
		  site              TEXT NOT NULL,
		  folder            TEXT,
		  source_run_id     TEXT,
		  status            TEXT NOT NULL,
		  matched           INTEGER NOT NULL DEFAULT 0,
		  uploaded          INTEGER NOT NULL DEFAULT 0,
		  reused            INTEGER NOT NULL DEFAULT 0,
		  upload_failures   INTEGER NOT NULL DEFAULT 0,
		  documents_scanned INTEGER NOT NULL DEFAULT 0,
		  documents_changed INTEGER NOT NULL DEFAULT 0,
		  replacements      INTEGER NOT NULL DEFAULT 0,
		  error             TEXT,
		  started_at        INTEGER NOT NULL,
		  finished_at       INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_runs_site_started
		ON runs(site, started_at DESC);

		CREATE TABLE IF NOT EXISTS uploads (
		  id             INTEGER PRIMARY KEY AUTOINCREMENT,
		  run_id         TEXT NOT NULL REFERENCES runs(id),
		  site           TEXT NOT NULL,
		  local_path     TEXT NOT NULL,
		  content_hash   TEXT NOT NULL,
		  old_media_id   INTEGER NOT NULL,
		  old_url        TEXT NOT NULL,
		  old_urls_json  TEXT NOT NULL,
		  new_media_id   INTEGER,
		  new_url        TEXT,
		  status         TEXT NOT NULL,
		  error          TEXT,
		  created_at     INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_uploads_run
		ON uploads(run_id, id);

		CREATE INDEX IF NOT EXISTS idx_uploads_reuse
		ON uploads(site, old_media_id, content_hash)
		WHERE status != 'failed';

		CREATE TABLE IF NOT EXISTS rewrites (
		  id            INTEGER PRIMARY KEY AUTOINCREMENT,
		  run_id        TEXT NOT NULL REFERENCES runs(id),
		  kind          TEXT NOT NULL,
		  document_id   TEXT NOT NULL,
		  title         TEXT,
		  replacements  INTEGER NOT NULL,
		  status        TEXT NOT NULL,
		  error         TEXT,
		  created_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rewrites_run
		ON rewrites(run_id, id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
