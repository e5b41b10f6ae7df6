package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/osa030/musify/internal/app/playback"
)

// SQLiteSettings configures the sqlite backend.
type SQLiteSettings struct {
	Path string `mapstructure:"path" default:"musify.db" validate:"required"`
}

// SQLiteStore keeps the state in a key/value table of a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// NewSQLite opens a sqlite store from backend settings.
func NewSQLite(ctx context.Context, settings map[string]any) (*SQLiteStore, error) {
	var cfg SQLiteSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	return OpenSQLite(ctx, cfg.Path)
}

// OpenSQLite opens (and initializes) the database at path.
// The path can be ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create kv table")
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the state row.
func (s *SQLiteStore) Load(ctx context.Context) (playback.PlayerState, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, StateKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return playback.PlayerState{}, ErrNotFound
		}
		return playback.PlayerState{}, errors.Wrap(err, "failed to query player state")
	}
	return decodeState([]byte(value))
}

// Save upserts the state row.
func (s *SQLiteStore) Save(ctx context.Context, state playback.PlayerState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		StateKey, string(data), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to save player state")
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
