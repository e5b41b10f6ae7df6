package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/osa030/musify/internal/app/playback"
)

// PostgresSettings configures the postgres backend.
type PostgresSettings struct {
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" default:"4" validate:"gte=1"`
	ConnectRetry int    `mapstructure:"connect_retry" default:"3" validate:"gte=1"`
	RetryDelayMs int    `mapstructure:"retry_delay_ms" default:"1000" validate:"gte=0"`
}

// stateRecord is the single row holding the encoded state.
type stateRecord struct {
	bun.BaseModel `bun:"table:player_state"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// PostgresStore keeps the state in a postgres table through bun.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgres connects to postgres from backend settings, retrying the initial ping.
func NewPostgres(ctx context.Context, settings map[string]any) (*PostgresStore, error) {
	var cfg PostgresSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.ConnectRetry; attempt++ {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetConnMaxIdleTime(time.Minute)
		db := bun.NewDB(sqldb, pgdialect.New())

		// Query logging at debug level
		if zerolog.GlobalLevel() <= zerolog.DebugLevel {
			db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = db.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			s := &PostgresStore{db: db}
			if err := s.migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
			return s, nil
		}

		zlog.Warn().Err(lastErr).Msgf("store: postgres ping failed: attempt=%d/%d", attempt, cfg.ConnectRetry)
		db.Close()
		if attempt < cfg.ConnectRetry {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(cfg.RetryDelayMs) * time.Millisecond):
			}
		}
	}
	return nil, errors.Wrapf(lastErr, "failed to connect to postgres after %d attempts", cfg.ConnectRetry)
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*stateRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to create player_state table")
	}
	return nil
}

// Load reads the state row.
func (s *PostgresStore) Load(ctx context.Context) (playback.PlayerState, error) {
	var rec stateRecord
	err := s.db.NewSelect().
		Model(&rec).
		Where("key = ?", StateKey).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return playback.PlayerState{}, ErrNotFound
		}
		return playback.PlayerState{}, errors.Wrap(err, "failed to query player state")
	}
	return decodeState([]byte(rec.Value))
}

// Save upserts the state row. Concurrent writers from several processes
// resolve as last write wins.
func (s *PostgresStore) Save(ctx context.Context, state playback.PlayerState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	rec := &stateRecord{
		Key:       StateKey,
		Value:     string(data),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.NewInsert().
		Model(rec).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to save player state")
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
