// Package lyrics provides a cached client for the lyrics.ovh API.
package lyrics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Placeholder is returned when lyrics cannot be found or fetched.
const Placeholder = "Lyrics not available"

// Client is a lyrics.ovh API client.
// Results, including the placeholder, are cached for the life of the process.
type Client struct {
	baseURL    string
	httpClient *http.Client

	cache   map[string]string
	cacheMu sync.RWMutex
}

// Config represents lyrics client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// lyricsResponse represents the response body of /v1/{artist}/{title}.
type lyricsResponse struct {
	Lyrics string `json:"lyrics"`
	Error  string `json:"error"`
}

// New creates a new lyrics client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.lyrics.ovh/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      make(map[string]string),
	}
}

// Get returns the lyrics for a track. It never fails: any error yields the
// placeholder, which is cached like a real result.
func (c *Client) Get(ctx context.Context, artist, title string) string {
	cacheKey := artist + "-" + title

	c.cacheMu.RLock()
	if lyrics, ok := c.cache[cacheKey]; ok {
		c.cacheMu.RUnlock()
		zlog.Debug().Msgf("using cached lyrics for track: %s - %s", artist, title)
		return lyrics
	}
	c.cacheMu.RUnlock()

	lyrics, err := c.fetch(ctx, artist, title)
	if err != nil {
		zlog.Warn().Err(err).Msgf("lyrics: lookup failed: artist=%q title=%q", artist, title)
		lyrics = ""
	}
	if strings.TrimSpace(lyrics) == "" {
		lyrics = Placeholder
	}

	c.cacheMu.Lock()
	c.cache[cacheKey] = lyrics
	c.cacheMu.Unlock()

	return lyrics
}

// CacheSize returns the number of cached entries.
func (c *Client) CacheSize() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.cache)
}

func (c *Client) fetch(ctx context.Context, artist, title string) (string, error) {
	if artist == "" || title == "" {
		return "", errors.New("artist and title are required")
	}

	reqURL := c.baseURL + "/" + url.PathEscape(artist) + "/" + url.PathEscape(title)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	var response lyricsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrapf(err, "failed to parse response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("lyrics API error %d: %s", resp.StatusCode, response.Error)
	}

	return response.Lyrics, nil
}
