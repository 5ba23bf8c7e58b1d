package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// FlashRecord is one journaled flash.
type FlashRecord struct {
	VideoID       string    `json:"videoId"`
	Handle        string    `json:"handle"`
	Kind          string    `json:"kind"`
	TimestampMs   int64     `json:"timestampMs"`
	Luminance     float64   `json:"luminance"`
	RedSaturation float64   `json:"redSaturation"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// SQLite is the synced tier. It also holds the flash journal.
type SQLite struct {
	db *sql.DB
	watchers
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS kv(
	  key        TEXT PRIMARY KEY,
	  value      BLOB NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS flash_events(
	  id             INTEGER PRIMARY KEY,
	  video_id       TEXT    NOT NULL,
	  handle         TEXT    NOT NULL,
	  kind           TEXT    NOT NULL CHECK (kind IN ('general','red')),
	  ts_ms          INTEGER NOT NULL,
	  luminance      REAL    NOT NULL,
	  red_saturation REAL    NOT NULL,
	  recorded_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flash_events_video ON flash_events(video_id);
	CREATE INDEX IF NOT EXISTS idx_flash_events_recorded ON flash_events(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get reads key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return v, true, nil
}

// Set upserts key.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	s.notify(Change{Key: key, Value: value})
	return nil
}

// Delete removes key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notify(Change{Key: key, Deleted: true})
	}
	return nil
}

// Watch registers fn for every change made through this handle.
func (s *SQLite) Watch(fn func(Change)) func() { return s.add(fn) }

// AppendFlashes writes records in one transaction.
func (s *SQLite) AppendFlashes(ctx context.Context, records []FlashRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO flash_events(video_id, handle, kind, ts_ms, luminance, red_saturation, recorded_at) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		at := r.RecordedAt
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.VideoID, r.Handle, r.Kind, r.TimestampMs, r.Luminance, r.RedSaturation, at.UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert flash: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentFlashes returns up to limit records, newest first. An empty videoID
// matches every video.
func (s *SQLite) RecentFlashes(ctx context.Context, videoID string, limit int) ([]FlashRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT video_id, handle, kind, ts_ms, luminance, red_saturation, recorded_at
		 FROM flash_events WHERE (? = '' OR video_id = ?)
		 ORDER BY recorded_at DESC, id DESC LIMIT ?`, videoID, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query flashes: %w", err)
	}
	defer rows.Close()

	var out []FlashRecord
	for rows.Next() {
		var r FlashRecord
		var at int64
		if err := rows.Scan(&r.VideoID, &r.Handle, &r.Kind, &r.TimestampMs, &r.Luminance, &r.RedSaturation, &at); err != nil {
			return nil, fmt.Errorf("failed to scan flash: %w", err)
		}
		r.RecordedAt = time.UnixMilli(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
