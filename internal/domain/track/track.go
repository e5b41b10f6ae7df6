// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies the catalog a track was retrieved from.
type Source string

const (
	SourceDeezer  Source = "deezer"
	SourceSpotify Source = "spotify"
)

// Artist is the minimal artist descriptor carried by a track.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Covers holds the album artwork variants.
type Covers struct {
	Default string `json:"cover,omitempty"`
	Small   string `json:"cover_small,omitempty"`
	Medium  string `json:"cover_medium,omitempty"`
	Big     string `json:"cover_big,omitempty"`
}

// Album is the minimal album descriptor carried by a track.
type Album struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Covers Covers `json:"covers"`
}

// Track represents a playable track.
// Tracks are sourced externally and never mutated once created.
type Track struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Duration   time.Duration `json:"duration"`
	PreviewURL string        `json:"preview"`
	Link       string        `json:"link,omitempty"`
	Source     Source        `json:"source,omitempty"`
	Artist     Artist        `json:"artist"`
	Album      Album         `json:"album"`
}

// QueueItem represents a track waiting in the play queue.
type QueueItem struct {
	ID       string    `json:"id"`
	Track    Track     `json:"track"`
	QueuedAt time.Time `json:"queuedAt"`
}

// NewQueueItem wraps a track for the queue.
func NewQueueItem(t Track, now time.Time) QueueItem {
	return QueueItem{
		ID:       uuid.New().String(),
		Track:    t,
		QueuedAt: now,
	}
}

// Seconds returns the track duration in seconds.
func (t *Track) Seconds() float64 {
	return t.Duration.Seconds()
}

// HasPreview reports whether the track carries a playable preview URL.
func (t *Track) HasPreview() bool {
	return strings.TrimSpace(t.PreviewURL) != ""
}

// Ref returns the catalog reference ("source:id") of the track.
func (t *Track) Ref() string {
	if t.Source == "" {
		return t.ID
	}
	return string(t.Source) + ":" + t.ID
}

// ParseRef splits a catalog reference into its source and ID.
// A reference without a known source prefix returns an empty source.
func ParseRef(ref string) (Source, string) {
	ref = strings.TrimSpace(ref)
	for _, s := range []Source{SourceDeezer, SourceSpotify} {
		prefix := string(s) + ":"
		if strings.HasPrefix(ref, prefix) {
			return s, strings.TrimPrefix(ref, prefix)
		}
	}
	return "", ref
}

// DisplayName returns "Artist - Title".
func (t *Track) DisplayName() string {
	if t.Artist.Name == "" {
		return t.Title
	}
	return t.Artist.Name + " - " + t.Title
}
