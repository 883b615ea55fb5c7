package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/measure-hub/internal/watermark"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS watermarks (
  name TEXT PRIMARY KEY,
  at_unix_nano INTEGER NOT NULL,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// WatermarkStore keeps watermarks in a SQLite database so they survive
// restarts.
type WatermarkStore struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*WatermarkStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open watermark database: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create watermark schema: %w", err)
	}
	return &WatermarkStore{db: db}, nil
}

// Close closes the database.
func (s *WatermarkStore) Close() error {
	return s.db.Close()
}

// Load implements watermark.Store.
func (s *WatermarkStore) Load(ctx context.Context, name string) (time.Time, bool, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx, "SELECT at_unix_nano FROM watermarks WHERE name = ?", name).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load watermark %s: %w", name, err)
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

// Advance implements watermark.Store.
func (s *WatermarkStore) Advance(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO watermarks (name, at_unix_nano, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(name) DO UPDATE SET
  at_unix_nano = MAX(at_unix_nano, excluded.at_unix_nano),
  updated_at = CURRENT_TIMESTAMP`,
		name, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to advance watermark %s: %w", name, err)
	}
	return nil
}

var _ watermark.Store = (*WatermarkStore)(nil)
