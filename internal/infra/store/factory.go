package store

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musify/internal/infra/config"
)

// NewFromConfig creates the store backend selected by configuration.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	zlog.Debug().Msgf("creating state store: type=%s settings=%+v", cfg.Type, redact(cfg.Settings))

	var (
		s   Store
		err error
	)
	switch cfg.Type {
	case "memory":
		s = NewMemory()
	case "file", "":
		s, err = NewFile(cfg.Settings)
	case "sqlite":
		s, err = NewSQLite(ctx, cfg.Settings)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.Settings)
	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create store (type %s)", cfg.Type)
	}

	zlog.Info().Msgf("state store ready: type=%s", cfg.Type)
	return s, nil
}

// redact hides connection strings from debug logs.
func redact(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		if k == "dsn" {
			v = "***"
		}
		out[k] = v
	}
	return out
}
