package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite holds the SQLite database connections.
// Separate read and write pools leverage WAL mode's concurrency model:
// a single writer plus unlimited concurrent readers.
type SQLite struct {
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Path    string
	Logger  *zap.SugaredLogger
}

// configureConnection applies WAL mode, foreign keys and busy timeout to a
// connection pool and verifies the pragmas actually took effect. SQLite
// silently ignores unknown pragmas, so each one is read back.
func configureConnection(db *sql.DB, dbPath string) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		return fmt.Errorf("failed to verify foreign keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled (got %d)", fkEnabled)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	// In-memory databases report "memory" journal mode, not "wal".
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if dbPath != ":memory:" && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got %s)", journalMode)
	}

	return nil
}

// NewSQLite opens the database at dbPath and creates the schema.
func NewSQLite(dbPath string, logger *zap.SugaredLogger) (*SQLite, error) {
	if err := validateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// In-memory databases need shared cache so both pools see the same
	// database instead of two independent empty ones.
	actualPath := dbPath
	if dbPath == ":memory:" {
		actualPath = "file::memory:?cache=shared"
	}

	writeDB, err := sql.Open("sqlite", actualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite write database: %w", err)
	}
	if err := configureConnection(writeDB, dbPath); err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to configure write connection: %w", err)
	}

	// WAL mode requires exactly one writer at a time.
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)
	writeDB.SetConnMaxIdleTime(10 * time.Minute)

	readDB, err := sql.Open("sqlite", actualPath)
	if err != nil {
		_ = writeDB.Close()
		return nil, fmt.Errorf("failed to open SQLite read database: %w", err)
	}
	if err := configureConnection(readDB, dbPath); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to configure read connection: %w", err)
	}

	// Enforce read-only access on the read pool at the SQLite level.
	if _, err := readDB.Exec("PRAGMA query_only=ON"); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to enable query_only mode on read pool: %w", err)
	}

	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	readDB.SetConnMaxIdleTime(10 * time.Minute)

	s := &SQLite{
		WriteDB: writeDB,
		ReadDB:  readDB,
		Path:    dbPath,
		Logger:  logger,
	}

	if err := s.createTables(); err != nil {
		_ = writeDB.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Infof("SQLite database initialized at %s", dbPath)

	return s, nil
}

// WithTransaction executes fn inside a transaction on the write pool,
// rolling back on error or panic.
func (s *SQLite) WithTransaction(fn func(*sql.Tx) error) error {
	tx, err := s.WriteDB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// createTables creates the full schema.
func (s *SQLite) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		condition TEXT NOT NULL,
		severity TEXT NOT NULL CHECK(severity IN ('critical','high','medium','low')),
		enabled INTEGER NOT NULL DEFAULT 1,
		threshold REAL NOT NULL,
		time_window_seconds INTEGER NOT NULL,
		cooldown_seconds INTEGER NOT NULL,
		notification_channels TEXT DEFAULT '[]',
		last_triggered DATETIME,
		trigger_count INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(enabled);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_alert_rules_name ON alert_rules(name);

	CREATE TABLE IF NOT EXISTS security_metrics (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		timestamp DATETIME NOT NULL,
		source_module TEXT DEFAULT '',
		tags TEXT DEFAULT '{}',
		interval_seconds INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_metrics_name_time ON security_metrics(name, timestamp);

	CREATE TABLE IF NOT EXISTS threat_indicators (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK(type IN ('ip_address','domain','url','file_hash','email','user_agent','ssl_cert')),
		value TEXT NOT NULL,
		source TEXT NOT NULL,
		severity TEXT NOT NULL CHECK(severity IN ('critical','high','medium','low','info')),
		confidence REAL NOT NULL CHECK(confidence >= 0 AND confidence <= 100),
		list_status TEXT NOT NULL DEFAULT 'neutral' CHECK(list_status IN ('whitelist','blacklist','greylist','neutral')),
		active INTEGER NOT NULL DEFAULT 1,
		threat_type TEXT DEFAULT '',
		detection_count INTEGER NOT NULL DEFAULT 0,
		false_positive_count INTEGER NOT NULL DEFAULT 0,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_indicators_type ON threat_indicators(type);
	CREATE INDEX IF NOT EXISTS idx_indicators_active ON threat_indicators(active);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_indicators_key ON threat_indicators(type, value, source);
	`

	if _, err := s.WriteDB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes both connection pools.
func (s *SQLite) Close() error {
	var errs []string
	if err := s.ReadDB.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("read pool: %v", err))
	}
	if err := s.WriteDB.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("write pool: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close SQLite: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateDatabasePath rejects paths that escape the working directory
// through traversal sequences.
func validateDatabasePath(dbPath string) error {
	if dbPath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if dbPath == ":memory:" {
		return nil
	}
	if strings.Contains(dbPath, "..") {
		return fmt.Errorf("database path must not contain traversal sequences: %s", dbPath)
	}
	return nil
}
