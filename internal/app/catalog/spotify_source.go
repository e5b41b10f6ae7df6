package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musify/internal/domain/track"
	"github.com/osa030/musify/internal/infra/spotify"
)

// SpotifyClient defines the Spotify operations used by the catalog.
type SpotifyClient interface {
	Search(ctx context.Context, query string, limit, index int) (*spotify.SearchResult, error)
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
}

// SpotifySource searches the Spotify catalog.
// Many Spotify tracks carry no preview and are dropped by the chain.
type SpotifySource struct {
	client SpotifyClient
}

// NewSpotifySource creates a spotify source.
func NewSpotifySource(client SpotifyClient) *SpotifySource {
	return &SpotifySource{client: client}
}

// Search implements Source.
func (s *SpotifySource) Search(ctx context.Context, query string, limit, index int) (*SearchResult, error) {
	res, err := s.client.Search(ctx, query, limit, index)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Data: res.Tracks, Total: res.Total, Next: res.Next}, nil
}

// GetTrack implements Source.
func (s *SpotifySource) GetTrack(ctx context.Context, id string) (*track.Track, error) {
	t, err := s.client.GetTrack(ctx, id)
	if err != nil && spotify.IsNotFound(err) {
		return nil, errors.Mark(err, ErrTrackNotFound)
	}
	return t, err
}

// Kind implements Source.
func (s *SpotifySource) Kind() track.Source {
	return track.SourceSpotify
}

// Name implements Source.
func (s *SpotifySource) Name() string {
	return "spotify"
}
