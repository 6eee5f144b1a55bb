// ABOUTME: SQLite blob store using modernc.org/sqlite with one row per key
// ABOUTME: Schema is created automatically; writes use INSERT OR REPLACE

package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "blob-sqlite")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite blob store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			key        TEXT PRIMARY KEY,
			body       BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Get returns the row body for key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document blob: %w", err)
	}
	s.logger.Debug("read blob", "key", key, "size", len(body))
	return body, nil
}

// Put saves or replaces the row for key.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents (key, body, updated_at)
		VALUES (?, ?, ?)
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving document blob: %w", err)
	}
	s.logger.Debug("saved blob", "key", key, "size", len(value))
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
