package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musify/internal/domain/track"
)

// SourceWithMetadata wraps a source with its metadata.
type SourceWithMetadata struct {
	Source      Source
	DisplayName string
}

// Chain tries multiple sources in order.
type Chain struct {
	sources []SourceWithMetadata
}

// NewChain creates a new source chain.
func NewChain(sources []SourceWithMetadata) *Chain {
	return &Chain{
		sources: sources,
	}
}

// Search returns the first page any source has playable results for.
// Tracks without a preview are dropped since they cannot be played.
// An empty result is not an error; an error means every source failed.
func (c *Chain) Search(ctx context.Context, query string, limit, index int) (*SearchResult, error) {
	var failures int
	var lastErr error

	for i, sm := range c.sources {
		zlog.Debug().Msgf("searching source: index=%d total=%d name=%s source_type=%s",
			i+1, len(c.sources), sm.DisplayName, sm.Source.Name())

		res, err := sm.Source.Search(ctx, query, limit, index)
		if err != nil {
			zlog.Warn().Msgf("source failed, trying next: source=%s error=%v", sm.DisplayName, err)
			failures++
			lastErr = err
			continue
		}

		playable := make([]track.Track, 0, len(res.Data))
		for _, t := range res.Data {
			if t.HasPreview() {
				playable = append(playable, t)
			}
		}
		if len(playable) == 0 {
			zlog.Debug().Msgf("source returned no playable tracks: source=%s raw=%d", sm.DisplayName, len(res.Data))
			continue
		}

		zlog.Info().Msgf("source returned tracks: source=%s query=%q count=%d dropped=%d",
			sm.DisplayName, query, len(playable), len(res.Data)-len(playable))
		return &SearchResult{
			Data:   playable,
			Total:  res.Total,
			Next:   res.Next,
			Source: sm.DisplayName,
		}, nil
	}

	if len(c.sources) > 0 && failures == len(c.sources) {
		return nil, errors.Wrap(lastErr, "all sources failed")
	}
	return &SearchResult{Data: []track.Track{}}, nil
}

// GetTrack resolves a catalog reference ("deezer:123", "spotify:abc" or a
// bare ID). A prefixed reference only asks sources of that catalog.
func (c *Chain) GetTrack(ctx context.Context, ref string) (*track.Track, error) {
	kind, id := track.ParseRef(ref)
	if id == "" {
		return nil, errors.New("track id is required")
	}

	var lastErr error
	for _, sm := range c.sources {
		if kind != "" && sm.Source.Kind() != kind {
			continue
		}
		t, err := sm.Source.GetTrack(ctx, id)
		if err != nil {
			zlog.Debug().Msgf("source could not resolve track: source=%s id=%s error=%v", sm.DisplayName, id, err)
			lastErr = err
			continue
		}
		return t, nil
	}

	if lastErr != nil {
		return nil, errors.Wrapf(lastErr, "failed to resolve track %s", ref)
	}
	return nil, errors.Wrapf(ErrTrackNotFound, "no source for %s", ref)
}

// Sources returns the display names of the configured sources in order.
func (c *Chain) Sources() []string {
	names := make([]string, len(c.sources))
	for i, sm := range c.sources {
		names[i] = sm.DisplayName
	}
	return names
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "catalog_chain"
}
