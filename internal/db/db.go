package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/jot/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// AudioDirName is the subdirectory of baseDir holding uploaded audio blobs.
const AudioDirName = "audio"

// Init initializes the SQLite database at baseDir/jot.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.jot.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Create audio subdirectory
	audioDir := filepath.Join(baseDir, AudioDirName)
	if err := os.MkdirAll(audioDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	_ = os.Chmod(audioDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	// foreign_keys is per-connection in SQLite, so it must be in the DSN.
	dbPath := filepath.Join(baseDir, "jot.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
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
// Call after Init if you need to tune pool behavior for contention.
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

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS captures (
		  id              TEXT PRIMARY KEY,
		  created_at      INTEGER NOT NULL,
		  audio_path      TEXT,
		  transcript      TEXT,
		  classification  TEXT,
		  category        TEXT,
		  raw_llm_output  TEXT,
		  stage           TEXT NOT NULL DEFAULT 'received'
		);

		CREATE INDEX IF NOT EXISTS idx_captures_created
		ON captures(created_at DESC);

		CREATE TABLE IF NOT EXISTS thoughts (
		  id              TEXT PRIMARY KEY,
		  created_at      INTEGER NOT NULL,
		  updated_at      INTEGER NOT NULL,
		  text            TEXT NOT NULL,
		  canonical_text  TEXT NOT NULL,
		  category        TEXT NOT NULL,
		  mention_count   INTEGER NOT NULL DEFAULT 1 CHECK (mention_count >= 1),
		  embedding       BLOB,
		  capture_id      TEXT REFERENCES captures(id) ON DELETE SET NULL
		);

		CREATE INDEX IF NOT EXISTS idx_thoughts_mentions
		ON thoughts(mention_count DESC, updated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_thoughts_category_created
		ON thoughts(category, created_at DESC);

		CREATE TABLE IF NOT EXISTS tasks (
		  id              TEXT PRIMARY KEY,
		  created_at      INTEGER NOT NULL,
		  updated_at      INTEGER NOT NULL,
		  title           TEXT NOT NULL,
		  canonical_title TEXT NOT NULL,
		  due_date        TEXT NOT NULL,
		  status          TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'done', 'cancelled')),
		  category        TEXT NOT NULL,
		  mention_count   INTEGER NOT NULL DEFAULT 1 CHECK (mention_count >= 1),
		  embedding       BLOB,
		  capture_id      TEXT REFERENCES captures(id) ON DELETE SET NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_status_created
		ON tasks(status, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_tasks_status_mentions
		ON tasks(status, mention_count DESC, updated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_tasks_due
		ON tasks(due_date)
		WHERE status = 'open';
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: processing claims, so concurrent jot processes never
	// run the same capture twice.
	if version < 2 {
		schema := `
		ALTER TABLE captures ADD COLUMN claimed_by TEXT;
		ALTER TABLE captures ADD COLUMN claimed_at INTEGER;

		CREATE INDEX IF NOT EXISTS idx_captures_pending
		ON captures(created_at)
		WHERE classification IS NULL;
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
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
