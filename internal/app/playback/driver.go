package playback

// Driver wraps the single audio-output resource.
//
// Positions and durations are in seconds. Play is asynchronous: the returned
// channel yields exactly one value, nil once playback has started or the
// rejection reason otherwise. Implementations must not block in Play and must
// not hold internal locks while invoking the OnTimeUpdate/OnEnded callbacks.
// Ended reports whether the loaded source has played to its end; it resets on Load.
type Driver interface {
	Load(url string)
	Play() <-chan error
	Pause()
	CurrentTime() float64
	SetCurrentTime(sec float64) float64
	Duration() (float64, bool)
	Ended() bool
	SetVolume(v float64) float64
	OnTimeUpdate(fn func(sec float64))
	OnEnded(fn func())
}

// hintedLoader is implemented by drivers that accept the expected source
// length up front, before metadata is available.
type hintedLoader interface {
	LoadWithHint(url string, durationSec float64)
}
