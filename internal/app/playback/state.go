// Package playback provides the player state machine with integrated queue management.
package playback

import "github.com/osa030/musify/internal/domain/track"

// State represents the playback state derived from PlayerState.
type State int

const (
	StateIdle    State = iota // No current track
	StatePlaying              // Current track set and playing
	StatePaused               // Current track set and paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// PlayerState is the single serializable aggregate describing playback and queue status.
type PlayerState struct {
	CurrentTrack *track.Track       `json:"currentTrack"`
	Queue        []track.QueueItem `json:"queue"`
	IsPlaying    bool              `json:"isPlaying"`
	CurrentTime  float64           `json:"currentTime"` // seconds
	Volume       float64           `json:"volume"`      // [0,1]
}

// DefaultState returns the state used when nothing has been persisted yet.
func DefaultState() PlayerState {
	return PlayerState{
		Queue:  []track.QueueItem{},
		Volume: 1.0,
	}
}

// Status derives the conceptual playback state.
func (s PlayerState) Status() State {
	switch {
	case s.CurrentTrack == nil:
		return StateIdle
	case s.IsPlaying:
		return StatePlaying
	default:
		return StatePaused
	}
}

// Normalize enforces the state invariants in place.
func (s *PlayerState) Normalize() {
	if s.Queue == nil {
		s.Queue = []track.QueueItem{}
	}
	s.Volume = clamp(s.Volume, 0, 1)
	if s.CurrentTime < 0 {
		s.CurrentTime = 0
	}
	if s.CurrentTrack == nil {
		s.IsPlaying = false
		s.CurrentTime = 0
	}
}

// Clone returns a deep copy that shares nothing with s.
func (s PlayerState) Clone() PlayerState {
	out := s
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		out.CurrentTrack = &t
	}
	out.Queue = make([]track.QueueItem, len(s.Queue))
	copy(out.Queue, s.Queue)
	return out
}

// clamp bounds v to [lo, hi]. NaN collapses to lo.
func clamp(v, lo, hi float64) float64 {
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
