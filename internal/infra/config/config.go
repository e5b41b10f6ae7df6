// Package config provides configuration loading from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Player   PlayerConfig   `yaml:"player"`
	Store    StoreConfig    `yaml:"store"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Lyrics   LyricsConfig   `yaml:"lyrics"`
	Watch    WatchConfig    `yaml:"watch"`
	Log      LogConfig      `yaml:"log"`
	Messages MessagesConfig `yaml:"messages"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr         string      `yaml:"addr" default:":8080"`
	ControlToken string      `yaml:"control_token"` // Empty disables the token check
	Hooks        HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// PlayerConfig represents playback control configuration.
type PlayerConfig struct {
	DefaultSkipSec      float64 `yaml:"default_skip_sec" default:"5" validate:"gt=0,lte=600"`
	RestartThresholdSec float64 `yaml:"restart_threshold_sec" default:"3" validate:"gte=0"`
	PersistTimeoutMs    int     `yaml:"persist_timeout_ms" default:"2000" validate:"gte=100,lte=60000"`
	TickIntervalMs      int     `yaml:"tick_interval_ms" default:"250" validate:"gte=10,lte=5000"`
	PreviewLengthSec    float64 `yaml:"preview_length_sec" default:"30" validate:"gt=0"`
	Probe               *bool   `yaml:"probe" default:"true"`
	ProbeTimeoutMs      int     `yaml:"probe_timeout_ms" default:"3000" validate:"gte=100,lte=60000"`
}

// ProbeEnabled reports whether preview URLs are checked before playing.
func (p PlayerConfig) ProbeEnabled() bool {
	return p.Probe == nil || *p.Probe
}

// TickInterval returns the playback tick interval.
func (p PlayerConfig) TickInterval() time.Duration {
	return time.Duration(p.TickIntervalMs) * time.Millisecond
}

// StoreConfig selects and configures the state store backend.
type StoreConfig struct {
	Type     string         `yaml:"type" default:"file" validate:"oneof=memory file sqlite postgres"`
	Settings map[string]any `yaml:"settings"`
}

// CatalogConfig represents track catalog configuration.
type CatalogConfig struct {
	SearchLimit int            `yaml:"search_limit" default:"25" validate:"gte=1,lte=100"`
	Sources     []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// SourceConfig represents a single catalog source configuration.
type SourceConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// LyricsConfig represents lyrics lookup configuration.
type LyricsConfig struct {
	BaseURL   string `yaml:"base_url" default:"https://api.lyrics.ovh/v1" validate:"url"`
	TimeoutMs int    `yaml:"timeout_ms" default:"5000" validate:"gte=100"`
}

// WatchConfig represents the client-side watch configuration.
type WatchConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms" default:"1000" validate:"gte=100"`
}

// LogConfig represents log file rotation settings.
type LogConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb" default:"10" validate:"gte=1"`
	MaxBackups int  `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int  `yaml:"max_age_days" default:"7" validate:"gte=0"`
	Compress   bool `yaml:"compress"`
}

// MessagesConfig represents user-facing messages.
// Messages with a %s verb receive the track title.
type MessagesConfig struct {
	Success       string `yaml:"success" default:"OK"`
	DefaultError  string `yaml:"default_error" default:"Something went wrong"`
	NowPlaying    string `yaml:"now_playing" default:"Now playing: \"%s\""`
	AddedToQueue  string `yaml:"added_to_queue" default:"\"%s\" added to queue"`
	QueueCleared  string `yaml:"queue_cleared" default:"Queue cleared"`
	QueueEmpty    string `yaml:"queue_empty" default:"Queue is empty"`
	NothingLoaded string `yaml:"nothing_loaded" default:"Nothing is playing"`
	TrackNotFound string `yaml:"track_not_found" default:"Track not found"`
	NoPreview     string `yaml:"no_preview" default:"Track has no preview"`
	PlayFailed    string `yaml:"play_failed" default:"Failed to play track"`
	EnqueueFailed string `yaml:"enqueue_failed" default:"Failed to add track to queue"`
	SearchFailed  string `yaml:"search_failed" default:"Search failed"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are optional unless a spotify catalog source is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("DEEZER_RAPIDAPI_KEY"); v != "" {
		for i := range c.Catalog.Sources {
			if c.Catalog.Sources[i].Type == "deezer" {
				if c.Catalog.Sources[i].Settings == nil {
					c.Catalog.Sources[i].Settings = make(map[string]any)
				}
				c.Catalog.Sources[i].Settings["rapidapi_key"] = v
				break
			}
		}
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		c.Server.ControlToken = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "now_playing":
		return c.Messages.NowPlaying
	case "added_to_queue":
		return c.Messages.AddedToQueue
	case "queue_cleared":
		return c.Messages.QueueCleared
	case "queue_empty":
		return c.Messages.QueueEmpty
	case "nothing_loaded":
		return c.Messages.NothingLoaded
	case "track_not_found":
		return c.Messages.TrackNotFound
	case "no_preview":
		return c.Messages.NoPreview
	case "play_failed":
		return c.Messages.PlayFailed
	case "enqueue_failed":
		return c.Messages.EnqueueFailed
	case "search_failed":
		return c.Messages.SearchFailed
	default:
		return c.Messages.DefaultError
	}
}

// FormatMessage returns the message for code with the track title substituted.
func (c *Config) FormatMessage(code, title string) string {
	msg := c.GetMessage(code)
	if !strings.Contains(msg, "%s") {
		return msg
	}
	return fmt.Sprintf(msg, title)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Spotify sources need credentials
	for _, s := range c.Catalog.Sources {
		if s.Type != "spotify" {
			continue
		}
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
			return errors.Newf("catalog source %q requires spotify.client_id and spotify.client_secret", s.DisplayName)
		}
	}

	return nil
}
