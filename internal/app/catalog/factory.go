package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musify/internal/infra/config"
	"github.com/osa030/musify/internal/infra/spotify"
)

// NewChainFromConfig creates a source chain from configuration.
func NewChainFromConfig(ctx context.Context, cfg *config.Config) (*Chain, error) {
	if len(cfg.Catalog.Sources) == 0 {
		return nil, errors.New("no catalog sources configured")
	}

	var sources []SourceWithMetadata

	for i, scfg := range cfg.Catalog.Sources {
		var source Source
		var err error
		zlog.Debug().Msgf("creating catalog source: index=%d type=%s", i+1, scfg.Type)
		switch scfg.Type {
		case "deezer":
			source, err = NewDeezerSource(scfg.Settings)

		case "spotify":
			var client *spotify.Client
			client, err = spotify.New(ctx, spotify.Config{
				ClientID:     cfg.Spotify.ClientID,
				ClientSecret: cfg.Spotify.ClientSecret,
				RefreshToken: cfg.Spotify.RefreshToken,
				Market:       cfg.Spotify.Market,
			})
			if err == nil {
				source = NewSpotifySource(client)
			}

		default:
			return nil, errors.Newf("unsupported source type: %s (source index %d)", scfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, scfg.Type)
		}

		sources = append(sources, SourceWithMetadata{
			Source:      source,
			DisplayName: scfg.DisplayName,
		})

		zlog.Info().Msgf("registered catalog source: index=%d type=%s display_name=%s", i+1, scfg.Type, scfg.DisplayName)
	}

	return NewChain(sources), nil
}
