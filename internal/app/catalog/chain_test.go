package catalog

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/musify/internal/domain/track"
	"github.com/osa030/musify/internal/infra/config"
	"github.com/osa030/musify/internal/infra/deezer"
)

type fakeSource struct {
	kind      track.Source
	tracks    []track.Track
	searchErr error
	byID      map[string]track.Track
	searched  int
	lookedUp  []string
}

func (f *fakeSource) Search(ctx context.Context, query string, limit, index int) (*SearchResult, error) {
	f.searched++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &SearchResult{Data: f.tracks, Total: len(f.tracks), Next: "next"}, nil
}

func (f *fakeSource) GetTrack(ctx context.Context, id string) (*track.Track, error) {
	f.lookedUp = append(f.lookedUp, id)
	t, ok := f.byID[id]
	if !ok {
		return nil, ErrTrackNotFound
	}
	return &t, nil
}

func (f *fakeSource) Kind() track.Source { return f.kind }
func (f *fakeSource) Name() string       { return string(f.kind) }

func playable(id string) track.Track {
	return track.Track{ID: id, Title: "t" + id, PreviewURL: "https://cdn.example/" + id + ".mp3"}
}

func TestChain_Search(t *testing.T) {
	silent := track.Track{ID: "silent", Title: "No preview"}

	tests := []struct {
		name       string
		sources    []*fakeSource
		wantErr    bool
		wantIDs    []string
		wantSource string
	}{
		{
			name: "first source answers",
			sources: []*fakeSource{
				{kind: track.SourceDeezer, tracks: []track.Track{playable("1"), playable("2")}},
				{kind: track.SourceSpotify, tracks: []track.Track{playable("3")}},
			},
			wantIDs:    []string{"1", "2"},
			wantSource: "source-0",
		},
		{
			name: "tracks without preview are dropped",
			sources: []*fakeSource{
				{kind: track.SourceDeezer, tracks: []track.Track{silent, playable("2")}},
			},
			wantIDs:    []string{"2"},
			wantSource: "source-0",
		},
		{
			name: "falls through on error",
			sources: []*fakeSource{
				{kind: track.SourceDeezer, searchErr: errors.New("quota exceeded")},
				{kind: track.SourceSpotify, tracks: []track.Track{playable("3")}},
			},
			wantIDs:    []string{"3"},
			wantSource: "source-1",
		},
		{
			name: "falls through when nothing is playable",
			sources: []*fakeSource{
				{kind: track.SourceSpotify, tracks: []track.Track{silent}},
				{kind: track.SourceDeezer, tracks: []track.Track{playable("4")}},
			},
			wantIDs:    []string{"4"},
			wantSource: "source-1",
		},
		{
			name: "no results is not an error",
			sources: []*fakeSource{
				{kind: track.SourceDeezer},
			},
			wantIDs: []string{},
		},
		{
			name: "all sources failing is an error",
			sources: []*fakeSource{
				{kind: track.SourceDeezer, searchErr: errors.New("boom")},
				{kind: track.SourceSpotify, searchErr: errors.New("bang")},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sources []SourceWithMetadata
			for i, s := range tt.sources {
				sources = append(sources, SourceWithMetadata{Source: s, DisplayName: "source-" + string(rune('0'+i))})
			}
			chain := NewChain(sources)

			res, err := chain.Search(context.Background(), "daft punk", 10, 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			ids := make([]string, 0, len(res.Data))
			for _, tr := range res.Data {
				ids = append(ids, tr.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantSource, res.Source)
		})
	}
}

func TestChain_Search_StopsAtFirstHit(t *testing.T) {
	first := &fakeSource{kind: track.SourceDeezer, tracks: []track.Track{playable("1")}}
	second := &fakeSource{kind: track.SourceSpotify, tracks: []track.Track{playable("2")}}
	chain := NewChain([]SourceWithMetadata{{Source: first, DisplayName: "a"}, {Source: second, DisplayName: "b"}})

	_, err := chain.Search(context.Background(), "q", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.searched)
	assert.Equal(t, 0, second.searched)
}

func TestChain_GetTrack(t *testing.T) {
	dz := &fakeSource{kind: track.SourceDeezer, byID: map[string]track.Track{"42": playable("42")}}
	sp := &fakeSource{kind: track.SourceSpotify, byID: map[string]track.Track{"abc": playable("abc"), "42": playable("sp42")}}
	chain := NewChain([]SourceWithMetadata{{Source: dz, DisplayName: "Deezer"}, {Source: sp, DisplayName: "Spotify"}})
	ctx := context.Background()

	t.Run("prefixed reference only asks that catalog", func(t *testing.T) {
		got, err := chain.GetTrack(ctx, "spotify:42")
		require.NoError(t, err)
		assert.Equal(t, "sp42", got.ID)
	})

	t.Run("bare id tries sources in order", func(t *testing.T) {
		got, err := chain.GetTrack(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", got.ID)
		assert.Contains(t, dz.lookedUp, "abc")
	})

	t.Run("unknown track", func(t *testing.T) {
		_, err := chain.GetTrack(ctx, "deezer:nope")
		assert.True(t, errors.Is(err, ErrTrackNotFound))
	})

	t.Run("no matching catalog", func(t *testing.T) {
		only := NewChain([]SourceWithMetadata{{Source: dz, DisplayName: "Deezer"}})
		_, err := only.GetTrack(ctx, "spotify:abc")
		assert.True(t, errors.Is(err, ErrTrackNotFound))
	})

	t.Run("empty reference", func(t *testing.T) {
		_, err := chain.GetTrack(ctx, "  ")
		assert.Error(t, err)
	})
}

type fakeDeezerClient struct {
	err error
}

func (f *fakeDeezerClient) Search(ctx context.Context, query string, limit, index int) (*deezer.SearchResult, error) {
	return &deezer.SearchResult{Tracks: []track.Track{playable("1")}, Total: 7, Next: "n"}, nil
}

func (f *fakeDeezerClient) GetTrack(ctx context.Context, id string) (*track.Track, error) {
	return nil, f.err
}

func TestDeezerSource(t *testing.T) {
	src := NewDeezerSourceWithClient(&fakeDeezerClient{err: errors.Wrap(deezer.ErrNotFound, "id 9")})

	res, err := src.Search(context.Background(), "q", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Total)
	assert.Equal(t, "n", res.Next)
	assert.Equal(t, track.SourceDeezer, src.Kind())

	_, err = src.GetTrack(context.Background(), "9")
	assert.True(t, errors.Is(err, ErrTrackNotFound))
}

func TestNewDeezerSource_Settings(t *testing.T) {
	_, err := NewDeezerSource(nil)
	assert.NoError(t, err)

	_, err = NewDeezerSource(map[string]any{"requests_per_window": 500})
	assert.Error(t, err)

	_, err = NewDeezerSource(map[string]any{"base_url": "not a url"})
	assert.Error(t, err)
}

func TestNewChainFromConfig(t *testing.T) {
	cfg := &config.Config{Catalog: config.CatalogConfig{Sources: []config.SourceConfig{
		{Type: "deezer", DisplayName: "Deezer"},
	}}}
	chain, err := NewChainFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Deezer"}, chain.Sources())

	cfg.Catalog.Sources = []config.SourceConfig{{Type: "soundcloud", DisplayName: "SC"}}
	_, err = NewChainFromConfig(context.Background(), cfg)
	assert.Error(t, err)

	cfg.Catalog.Sources = nil
	_, err = NewChainFromConfig(context.Background(), cfg)
	assert.Error(t, err)
}
