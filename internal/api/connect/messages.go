package connect

import (
	"time"

	"github.com/osa030/musify/internal/app/playback"
	"github.com/osa030/musify/internal/domain/track"
)

// Service and procedure names.
const (
	PlayerServiceName = "musify.player.v1.PlayerService"
	PlayerServicePath = "/" + PlayerServiceName + "/"

	GetStateProcedure          = PlayerServicePath + "GetState"
	PlayTrackProcedure         = PlayerServicePath + "PlayTrack"
	EnqueueTrackProcedure      = PlayerServicePath + "EnqueueTrack"
	ForceEnqueueTrackProcedure = PlayerServicePath + "ForceEnqueueTrack"
	TogglePlayPauseProcedure   = PlayerServicePath + "TogglePlayPause"
	PauseProcedure             = PlayerServicePath + "Pause"
	SkipForwardProcedure       = PlayerServicePath + "SkipForward"
	SkipBackwardProcedure      = PlayerServicePath + "SkipBackward"
	SeekToProcedure            = PlayerServicePath + "SeekTo"
	PlayNextTrackProcedure     = PlayerServicePath + "PlayNextTrack"
	PlayPreviousTrackProcedure = PlayerServicePath + "PlayPreviousTrack"
	SetVolumeProcedure         = PlayerServicePath + "SetVolume"
	ClearQueueProcedure        = PlayerServicePath + "ClearQueue"
	SearchProcedure            = PlayerServicePath + "Search"
	LyricsProcedure            = PlayerServicePath + "Lyrics"
	SubscribeProcedure         = PlayerServicePath + "Subscribe"
)

// KindInitialState marks the first message of a Subscribe stream.
const KindInitialState = "initialState"

// Empty is used by calls that take no input.
type Empty struct{}

// StateResponse carries a state snapshot.
type StateResponse struct {
	State  playback.PlayerState `json:"state"`
	Status string               `json:"status"`
}

// TrackRequest names a track inline or by catalog reference.
type TrackRequest struct {
	Track   *track.Track `json:"track,omitempty"`
	TrackID string       `json:"track_id,omitempty"` // "deezer:123", "spotify:abc" or a bare ID
}

// PlayTrackResponse is returned by PlayTrack and PlayNextTrack.
type PlayTrackResponse struct {
	Track   *track.Track `json:"track,omitempty"` // nil when the queue was empty
	Message string       `json:"message"`
}

// EnqueueTrackResponse is returned by EnqueueTrack and ForceEnqueueTrack.
type EnqueueTrackResponse struct {
	Item        track.QueueItem `json:"item"`
	Started     bool            `json:"started"` // Played at once because the player was idle
	QueueLength int             `json:"queue_length"`
	Message     string          `json:"message"`
}

// TogglePlayPauseResponse reports the resulting playing flag.
type TogglePlayPauseResponse struct {
	Playing bool   `json:"playing"`
	Message string `json:"message"`
}

// PauseResponse reports whether playback was running before the call.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// SkipRequest moves the position relatively. Zero uses the server default.
type SkipRequest struct {
	Seconds float64 `json:"seconds,omitempty"`
}

// SeekToRequest moves the position absolutely.
type SeekToRequest struct {
	Position float64 `json:"position"`
}

// PositionResponse carries the applied position in seconds.
type PositionResponse struct {
	Position float64 `json:"position"`
}

// SetVolumeRequest sets the volume in [0,1].
type SetVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// VolumeResponse carries the applied volume.
type VolumeResponse struct {
	Volume float64 `json:"volume"`
}

// MessageResponse carries only a user-facing message.
type MessageResponse struct {
	Message string `json:"message"`
}

// SearchRequest queries the catalog.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Index int    `json:"index,omitempty"`
}

// LyricsRequest looks up lyrics. Empty fields fall back to the current track.
type LyricsRequest struct {
	Artist string `json:"artist,omitempty"`
	Title  string `json:"title,omitempty"`
}

// LyricsResponse carries lyrics or the placeholder text.
type LyricsResponse struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Lyrics string `json:"lyrics"`
}

// SubscribeRequest selects the event kinds to stream. Empty means all.
type SubscribeRequest struct {
	Kinds []string `json:"kinds,omitempty"`
}

// EventMessage is one streamed event.
type EventMessage struct {
	Kind  string               `json:"kind"`
	Seq   uint64               `json:"seq"`
	State playback.PlayerState `json:"state"`
	At    time.Time            `json:"at"`
}
