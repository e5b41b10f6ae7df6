package playback

import (
	"time"

	"github.com/cockroachdb/errors"
)

// EventKind represents a player state-change notification kind.
type EventKind int

const (
	EventPlay         EventKind = iota // Playback started or resumed
	EventPause                         // Playback paused (including rolled back play requests)
	EventTrackChange                   // Current track changed (or cleared)
	EventTimeUpdate                    // Playback position changed
	EventQueueUpdate                   // Queue contents changed
	EventVolumeChange                  // Volume changed
	EventEnd                           // Current track reached its end
)

var eventKindNames = [...]string{
	EventPlay:         "play",
	EventPause:        "pause",
	EventTrackChange:  "trackChange",
	EventTimeUpdate:   "timeUpdate",
	EventQueueUpdate:  "queueUpdate",
	EventVolumeChange: "volumeChange",
	EventEnd:          "end",
}

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Valid reports whether k belongs to the closed set of event kinds.
func (k EventKind) Valid() bool {
	return k >= 0 && int(k) < len(eventKindNames)
}

// AllEventKinds returns every event kind in declaration order.
func AllEventKinds() []EventKind {
	kinds := make([]EventKind, len(eventKindNames))
	for i := range eventKindNames {
		kinds[i] = EventKind(i)
	}
	return kinds
}

// ParseEventKind parses the string form of an event kind.
func ParseEventKind(s string) (EventKind, error) {
	for i, name := range eventKindNames {
		if name == s {
			return EventKind(i), nil
		}
	}
	return 0, errors.Newf("unknown event kind: %q", s)
}

// Event represents a published player event.
type Event struct {
	Kind  EventKind
	Seq   uint64      // Monotonic sequence number assigned by the publisher
	State PlayerState // Snapshot taken right after the mutation
	At    time.Time
}

// Publisher delivers events to interested observers.
type Publisher interface {
	Publish(kind EventKind, state PlayerState)
}
