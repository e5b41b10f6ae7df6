// Package catalog provides track lookup across the configured music catalogs.
package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musify/internal/domain/track"
)

// ErrTrackNotFound is returned when no source knows the requested track.
var ErrTrackNotFound = errors.New("track not found")

// SearchResult is one page of search results in the {data,total,next} shape.
type SearchResult struct {
	Data   []track.Track `json:"data"`
	Total  int           `json:"total"`
	Next   string        `json:"next,omitempty"`
	Source string        `json:"source,omitempty"` // Display name of the answering source
}

// Source is the interface for track catalogs.
type Source interface {
	// Search returns a page of tracks matching query.
	Search(ctx context.Context, query string, limit, index int) (*SearchResult, error)

	// GetTrack retrieves a track by its catalog ID.
	GetTrack(ctx context.Context, id string) (*track.Track, error)

	// Kind returns the catalog tracks of this source come from.
	Kind() track.Source

	// Name returns the source name (used in config).
	Name() string
}
