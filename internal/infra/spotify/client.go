// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/musify/internal/domain/track"
)

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string // Optional; client credentials are used without it
	Market       string

	// Overrides for tests.
	BaseURL  string
	TokenURL string
}

// SearchResult is one page of search results.
type SearchResult struct {
	Tracks []track.Track
	Total  int
	Next   string
}

// New creates a new Spotify client.
// With a refresh token the client acts on behalf of the authorized user;
// otherwise it uses the client credentials flow, which is enough for search.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	var httpClient *http.Client
	if cfg.RefreshToken != "" {
		auth := spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
		)
		token := &oauth2.Token{
			RefreshToken: cfg.RefreshToken,
		}
		// Get HTTP client with auto-refresh capability
		httpClient = auth.Client(ctx, token)
		zlog.Debug().Msg("spotify: using refresh token authorization")
	} else {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
		}
		httpClient = cc.Client(ctx)
		zlog.Debug().Msg("spotify: using client credentials authorization")
	}

	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// GetTrack retrieves track information by ID, URL, or URI.
func (c *Client) GetTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractTrackID(trackID)
	if id == "" {
		return nil, errors.New("track id is required")
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	t := c.convertTrack(result)
	return &t, nil
}

// Search searches for tracks. limit and index page through the results.
func (c *Client) Search(ctx context.Context, query string, limit, index int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	if index < 0 {
		index = 0
	}

	var result *spotify.SearchResult
	err := c.retry(ctx, func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Offset(index),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	out := &SearchResult{Tracks: []track.Track{}}
	if result.Tracks == nil {
		return out, nil
	}
	for _, t := range result.Tracks.Tracks {
		out.Tracks = append(out.Tracks, c.convertTrack(&t))
	}
	out.Total = int(result.Tracks.Total)
	out.Next = result.Tracks.Next

	zlog.Debug().Msgf("spotify: search query=%q results=%d total=%d", query, len(out.Tracks), out.Total)
	return out, nil
}

// convertTrack converts a Spotify FullTrack to the domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) track.Track {
	var artist track.Artist
	if len(t.Artists) > 0 {
		names := make([]string, len(t.Artists))
		for i, a := range t.Artists {
			names[i] = a.Name
		}
		artist = track.Artist{
			ID:   string(t.Artists[0].ID),
			Name: strings.Join(names, ", "),
		}
	}

	// Spotify lists images widest first.
	var covers track.Covers
	if images := t.Album.Images; len(images) > 0 {
		covers.Big = images[0].URL
		covers.Default = images[0].URL
		covers.Medium = images[len(images)/2].URL
		covers.Small = images[len(images)-1].URL
	}

	return track.Track{
		ID:         string(t.ID),
		Title:      t.Name,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
		PreviewURL: t.PreviewURL,
		Link:       GetTrackURL(string(t.ID)),
		Source:     track.SourceSpotify,
		Artist:     artist,
		Album: track.Album{
			ID:     string(t.Album.ID),
			Title:  t.Album.Name,
			Covers: covers,
		},
	}
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// IsNotFound reports whether err means Spotify has no such track.
// Malformed IDs are answered with 400 and count as missing too.
func IsNotFound(err error) bool {
	var se spotify.Error
	if errors.As(err, &se) {
		return se.Status == http.StatusNotFound || se.Status == http.StatusBadRequest
	}
	return false
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a track ID
	return input
}
