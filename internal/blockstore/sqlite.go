// ABOUTME: SQLite-backed BlockStore using github.com/mattn/go-sqlite3
// ABOUTME: Stores each key as one blob row in a host-local database file

package blockstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBlocks implements BlockStore on a SQLite file
type SQLiteBlocks struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteBlocks opens (or creates) the block database at path.
// Parent directories are created if needed.
func NewSQLiteBlocks(path string) (*SQLiteBlocks, error) {
	logger := slog.Default().With("component", "blockstore")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating block store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening block store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS blocks (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			size       INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating block schema: %w", err)
	}

	logger.Info("block store initialized", "path", path)
	return &SQLiteBlocks{db: db, logger: logger}, nil
}

// Get retrieves the blob stored under key.
func (s *SQLiteBlocks) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blocks WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading block %q: %w", key, err)
	}
	return data, true, nil
}

// Put stores data under key.
func (s *SQLiteBlocks) Put(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO blocks (key, data, size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, size = excluded.size, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, data, len(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing block %q: %w", key, err)
	}

	s.logger.Debug("stored block", "key", key, "size", len(data))
	return nil
}

// List returns keys with the given prefix, ascending.
func (s *SQLiteBlocks) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM blocks WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("listing blocks: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scanning block key: %w", err)
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating block keys: %w", err)
	}
	return keys, nil
}

// Close closes the database connection
func (s *SQLiteBlocks) Close() error {
	s.logger.Info("closing block store")
	return s.db.Close()
}

var _ BlockStore = (*SQLiteBlocks)(nil)
