package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/castchunk/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the index database file inside the base directory.
const FileName = "castchunk.db"

// Init initializes the SQLite index at baseDir/castchunk.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.castchunk.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	exportsDir := config.ExportsDir(baseDir)
	if err := os.MkdirAll(exportsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}
	_ = os.Chmod(exportsDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
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

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: episodes, chunks, full-text index over chunk text
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS episodes (
		  episode_id      TEXT PRIMARY KEY,
		  youtube_url     TEXT NOT NULL,
		  title           TEXT NOT NULL,
		  date            TEXT NOT NULL,
		  raw_text_length INTEGER NOT NULL,
		  num_chunks      INTEGER NOT NULL,
		  word_count      INTEGER NOT NULL,
		  run_id          TEXT,
		  indexed_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_episodes_date
		ON episodes(date DESC, episode_id);

		CREATE INDEX IF NOT EXISTS idx_episodes_run_id
		ON episodes(run_id)
		WHERE run_id IS NOT NULL;

		CREATE TABLE IF NOT EXISTS chunks (
		  episode_id        TEXT NOT NULL,
		  chunk_index       INTEGER NOT NULL,
		  text              TEXT NOT NULL,
		  approx_word_count INTEGER NOT NULL,
		  PRIMARY KEY (episode_id, chunk_index)
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		  text,
		  episode_id UNINDEXED,
		  chunk_index UNINDEXED,
		  tokenize = 'unicode61 remove_diacritics 2'
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

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
