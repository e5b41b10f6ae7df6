package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/musify/internal/domain/track"
	"github.com/osa030/musify/internal/infra/deezer"
)

// DeezerClient defines the Deezer operations used by the catalog.
type DeezerClient interface {
	Search(ctx context.Context, query string, limit, index int) (*deezer.SearchResult, error)
	GetTrack(ctx context.Context, id string) (*track.Track, error)
}

// DeezerSourceConfig holds the deezer source settings.
type DeezerSourceConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	RapidAPIKey       string `yaml:"rapidapi_key" mapstructure:"rapidapi_key"`
	RequestsPerWindow int    `yaml:"requests_per_window" mapstructure:"requests_per_window" default:"50" validate:"gte=1,lte=50"`
	TimeoutMs         int    `yaml:"timeout_ms" mapstructure:"timeout_ms" default:"10000" validate:"gte=100"`
}

// DeezerSource searches the Deezer catalog.
type DeezerSource struct {
	client DeezerClient
}

// NewDeezerSource creates a deezer source from settings.
func NewDeezerSource(settings map[string]any) (*DeezerSource, error) {
	var config DeezerSourceConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return NewDeezerSourceWithClient(deezer.New(deezer.Config{
		BaseURL:           config.BaseURL,
		RapidAPIKey:       config.RapidAPIKey,
		RequestsPerWindow: config.RequestsPerWindow,
		Timeout:           time.Duration(config.TimeoutMs) * time.Millisecond,
	})), nil
}

// NewDeezerSourceWithClient wraps an existing client.
func NewDeezerSourceWithClient(client DeezerClient) *DeezerSource {
	return &DeezerSource{client: client}
}

// Search implements Source.
func (s *DeezerSource) Search(ctx context.Context, query string, limit, index int) (*SearchResult, error) {
	res, err := s.client.Search(ctx, query, limit, index)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Data: res.Tracks, Total: res.Total, Next: res.Next}, nil
}

// GetTrack implements Source.
func (s *DeezerSource) GetTrack(ctx context.Context, id string) (*track.Track, error) {
	t, err := s.client.GetTrack(ctx, id)
	if errors.Is(err, deezer.ErrNotFound) {
		return nil, errors.Mark(err, ErrTrackNotFound)
	}
	return t, err
}

// Kind implements Source.
func (s *DeezerSource) Kind() track.Source {
	return track.SourceDeezer
}

// Name implements Source.
func (s *DeezerSource) Name() string {
	return "deezer"
}
