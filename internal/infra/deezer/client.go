// Package deezer provides a client for the Deezer public API.
package deezer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/musify/internal/domain/track"
)

const (
	// DefaultBaseURL is the public Deezer API.
	DefaultBaseURL = "https://api.deezer.com"
	// RapidAPIHost is the Deezer proxy host on RapidAPI.
	RapidAPIHost = "deezerdevs-deezer.p.rapidapi.com"

	// Deezer allows 50 requests per 5 seconds.
	defaultRequestsPerWindow = 50
	rateWindow               = 5 * time.Second
)

// ErrNotFound is returned when Deezer reports that no data exists.
var ErrNotFound = errors.New("deezer: not found")

// Config represents Deezer client configuration.
type Config struct {
	BaseURL           string
	RapidAPIKey       string // Sends the x-rapidapi-* headers when set
	RapidAPIHost      string
	RequestsPerWindow int // Requests allowed per 5 seconds
	Timeout           time.Duration
}

// Client is a Deezer API client.
type Client struct {
	baseURL     string
	rapidAPIKey string
	rapidHost   string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// SearchResult is one page of search results.
type SearchResult struct {
	Tracks []track.Track
	Total  int
	Next   string
}

// apiTrack represents a track object in Deezer responses.
type apiTrack struct {
	ID       int64  `json:"id"`
	Readable *bool  `json:"readable"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Duration int    `json:"duration"`
	Preview  string `json:"preview"`
	Artist   struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		Cover       string `json:"cover"`
		CoverSmall  string `json:"cover_small"`
		CoverMedium string `json:"cover_medium"`
		CoverBig    string `json:"cover_big"`
	} `json:"album"`
}

// searchResponse represents the response from /search.
type searchResponse struct {
	Data  []apiTrack `json:"data"`
	Total int        `json:"total"`
	Next  string     `json:"next"`
}

// apiError represents the error envelope Deezer returns with status 200.
type apiError struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// New creates a new Deezer client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
		if cfg.RapidAPIKey != "" {
			cfg.BaseURL = "https://" + RapidAPIHost
		}
	}
	if cfg.RapidAPIHost == "" {
		cfg.RapidAPIHost = RapidAPIHost
	}
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = defaultRequestsPerWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	every := rateWindow / time.Duration(cfg.RequestsPerWindow)
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		rapidAPIKey: cfg.RapidAPIKey,
		rapidHost:   cfg.RapidAPIHost,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Every(every), cfg.RequestsPerWindow),
	}
}

// Search searches tracks. limit and index page through the results.
// Reference: https://developers.deezer.com/api/search
func (c *Client) Search(ctx context.Context, query string, limit, index int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if index < 0 {
		index = 0
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("index", strconv.Itoa(index))

	body, err := c.get(ctx, "/search", params)
	if err != nil {
		return nil, err
	}

	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse search response")
	}

	result := &SearchResult{
		Tracks: make([]track.Track, 0, len(response.Data)),
		Total:  response.Total,
		Next:   response.Next,
	}
	for _, t := range response.Data {
		result.Tracks = append(result.Tracks, convertTrack(t))
	}

	zlog.Debug().Msgf("deezer: search query=%q results=%d total=%d", query, len(result.Tracks), result.Total)
	return result, nil
}

// GetTrack retrieves a track by Deezer ID.
// Reference: https://developers.deezer.com/api/track
func (c *Client) GetTrack(ctx context.Context, id string) (*track.Track, error) {
	id = strings.TrimSpace(id)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return nil, errors.Newf("invalid deezer track id: %q", id)
	}

	body, err := c.get(ctx, "/track/"+id, nil)
	if err != nil {
		return nil, err
	}

	var t apiTrack
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, errors.Wrap(err, "failed to parse track response")
	}
	if t.ID == 0 {
		return nil, errors.Wrapf(ErrNotFound, "track %s", id)
	}

	result := convertTrack(t)
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait failed")
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if c.rapidAPIKey != "" {
		req.Header.Set("x-rapidapi-host", c.rapidHost)
		req.Header.Set("x-rapidapi-key", c.rapidAPIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("deezer API returned status %d", resp.StatusCode)
	}

	// Deezer reports errors inside a 200 response.
	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		if envelope.Error.Code == 800 {
			return nil, errors.Wrap(ErrNotFound, envelope.Error.Message)
		}
		return nil, errors.Newf("deezer API error %d (%s): %s",
			envelope.Error.Code, envelope.Error.Type, envelope.Error.Message)
	}

	return body, nil
}

// convertTrack converts a Deezer track to the domain Track.
func convertTrack(t apiTrack) track.Track {
	return track.Track{
		ID:         strconv.FormatInt(t.ID, 10),
		Title:      t.Title,
		Duration:   time.Duration(t.Duration) * time.Second,
		PreviewURL: t.Preview,
		Link:       t.Link,
		Source:     track.SourceDeezer,
		Artist: track.Artist{
			ID:   strconv.FormatInt(t.Artist.ID, 10),
			Name: t.Artist.Name,
		},
		Album: track.Album{
			ID:    strconv.FormatInt(t.Album.ID, 10),
			Title: t.Album.Title,
			Covers: track.Covers{
				Default: t.Album.Cover,
				Small:   t.Album.CoverSmall,
				Medium:  t.Album.CoverMedium,
				Big:     t.Album.CoverBig,
			},
		},
	}
}
