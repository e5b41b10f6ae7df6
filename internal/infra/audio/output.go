// Package audio provides the process-wide audio output used by the player.
//
// Output follows the semantics of a platform media element: one loaded source,
// asynchronous play requests, a position that advances with the wall clock
// while playing, periodic time updates and a single ended signal per source.
// No decoding happens here; a preview URL is probed over HTTP before playback
// starts so unreachable sources are rejected the way a media element would.
package audio

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var (
	// ErrNoSource is returned by Play when nothing has been loaded.
	ErrNoSource = errors.New("audio: no source loaded")
	// ErrInterrupted is returned by Play when a load or pause supersedes the request.
	ErrInterrupted = errors.New("audio: play request was interrupted")
)

// Config holds output configuration.
type Config struct {
	TickInterval  time.Duration // How often time updates fire while playing
	PreviewLength float64       // Seconds of audio in a preview clip
	Probe         bool          // Check the source over HTTP before playing
	ProbeTimeout  time.Duration
	HTTPClient    *http.Client
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 250 * time.Millisecond
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = 30
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c
}

// Output is a wall-clock driven audio output. It implements playback.Driver.
type Output struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	src         string
	hint        float64
	duration    float64
	hasDuration bool
	position    float64   // position at startedAt
	startedAt   time.Time // wall clock when playback (re)started
	playing     bool
	ended       bool
	volume      float64

	// epoch bumps on every Load and Pause so in-flight play requests can
	// tell they were superseded.
	epoch      uint64
	stopTicker context.CancelFunc

	onTimeUpdate func(float64)
	onEnded      func()
}

var (
	sharedOnce sync.Once
	shared     *Output
)

// Shared returns the process-wide output, creating it on first use.
// Later calls ignore cfg.
func Shared(cfg Config) *Output {
	sharedOnce.Do(func() {
		shared = New(cfg)
	})
	return shared
}

// New creates an output. Most callers want Shared.
func New(cfg Config) *Output {
	return &Output{
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		volume: 1,
	}
}

// Load replaces the source. Position resets to 0 and the duration is unknown
// until a play request has checked the source.
func (o *Output) Load(src string) {
	o.LoadWithHint(src, 0)
}

// LoadWithHint loads src with the expected track length in seconds. A preview
// never reports more than the hint.
func (o *Output) LoadWithHint(src string, durationSec float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.haltLocked()
	o.epoch++
	o.src = src
	o.hint = durationSec
	o.position = 0
	o.ended = false
	o.duration = 0
	o.hasDuration = false
	if !o.cfg.Probe && src != "" {
		o.setDurationLocked()
	}
	zlog.Debug().Msgf("audio: loaded source=%s hint=%.1fs", src, durationSec)
}

// Play starts playback asynchronously. The returned channel yields nil once
// playback has started, or the reason it could not start.
func (o *Output) Play() <-chan error {
	result := make(chan error, 1)

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case o.src == "":
		result <- ErrNoSource
		return result
	case o.playing:
		result <- nil
		return result
	}
	if o.ended {
		o.position = 0
		o.ended = false
	}

	if !o.cfg.Probe || o.hasDuration {
		o.startLocked()
		result <- nil
		return result
	}

	epoch, src := o.epoch, o.src
	go func() {
		err := o.probe(src)

		o.mu.Lock()
		defer o.mu.Unlock()
		switch {
		case epoch != o.epoch:
			result <- ErrInterrupted
		case err != nil:
			result <- err
		case o.playing:
			result <- nil
		default:
			o.setDurationLocked()
			o.startLocked()
			result <- nil
		}
	}()
	return result
}

// Pause stops the clock at the current position.
func (o *Output) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epoch++
	o.haltLocked()
}

// CurrentTime returns the position in seconds.
func (o *Output) CurrentTime() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positionLocked()
}

// SetCurrentTime moves to sec, clamped to [0, duration], and returns the
// applied position.
func (o *Output) SetCurrentTime(sec float64) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if sec < 0 || sec != sec {
		sec = 0
	}
	if o.hasDuration && sec > o.duration {
		sec = o.duration
	}
	o.position = sec
	o.startedAt = o.wallNow()
	if o.hasDuration && sec < o.duration {
		o.ended = false
	}
	return sec
}

// Duration returns the source length once known.
func (o *Output) Duration() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.duration, o.hasDuration
}

// Ended reports whether the loaded source played to its end.
func (o *Output) Ended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ended
}

// Paused reports whether the output is not playing.
func (o *Output) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.playing
}

// Source returns the loaded source.
func (o *Output) Source() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.src
}

// SetVolume clamps v to [0,1] and returns the applied value.
func (o *Output) SetVolume(v float64) float64 {
	if v < 0 || v != v {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = v
	return v
}

// Volume returns the current volume.
func (o *Output) Volume() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

// OnTimeUpdate registers the time update callback.
func (o *Output) OnTimeUpdate(fn func(sec float64)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTimeUpdate = fn
}

// OnEnded registers the ended callback.
func (o *Output) OnEnded(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEnded = fn
}

// Close stops the clock and drops callbacks.
func (o *Output) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.epoch++
	o.haltLocked()
	o.onTimeUpdate = nil
	o.onEnded = nil
}

func (o *Output) setDurationLocked() {
	d := o.cfg.PreviewLength
	if o.hint > 0 && o.hint < d {
		d = o.hint
	}
	o.duration = d
	o.hasDuration = true
}

func (o *Output) startLocked() {
	o.playing = true
	o.startedAt = o.wallNow()

	ctx, cancel := context.WithCancel(context.Background())
	o.stopTicker = cancel
	go o.run(ctx)
}

// haltLocked freezes the position and stops the ticker.
func (o *Output) haltLocked() {
	if o.playing {
		o.position = o.positionLocked()
		o.playing = false
	}
	if o.stopTicker != nil {
		o.stopTicker()
		o.stopTicker = nil
	}
}

func (o *Output) positionLocked() float64 {
	pos := o.position
	if o.playing {
		pos += o.wallNow().Sub(o.startedAt).Seconds()
	}
	if o.hasDuration && pos > o.duration {
		pos = o.duration
	}
	return pos
}

// run fires time updates until the source ends or ctx is cancelled.
// Callbacks run without the lock held.
func (o *Output) run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		if ctx.Err() != nil {
			o.mu.Unlock()
			return
		}
		pos := o.positionLocked()
		onTime, onEnded := o.onTimeUpdate, o.onEnded
		finished := o.hasDuration && pos >= o.duration
		if finished {
			o.position = o.duration
			o.playing = false
			o.ended = true
			o.stopTicker()
			o.stopTicker = nil
		}
		o.mu.Unlock()

		if onTime != nil {
			onTime(pos)
		}
		if finished {
			zlog.Debug().Msgf("audio: source ended at %.1fs", pos)
			if onEnded != nil {
				onEnded()
			}
			return
		}
	}
}

// probe checks that src is reachable. Servers that refuse HEAD are retried
// with a single-byte ranged GET.
func (o *Output) probe(src string) error {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Newf("audio: unsupported source %q", src)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ProbeTimeout)
	defer cancel()

	status, err := o.request(ctx, http.MethodHead, src)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = o.request(ctx, http.MethodGet, src)
	}
	if err != nil {
		return errors.Wrap(err, "audio: failed to reach source")
	}
	if status < 200 || status >= 300 {
		return errors.Newf("audio: source unavailable: status=%d", status)
	}
	return nil
}

func (o *Output) request(ctx context.Context, method, src string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, src, nil)
	if err != nil {
		return 0, err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := o.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// wallNow returns the time with the monotonic reading stripped so elapsed
// time follows the wall clock.
func (o *Output) wallNow() time.Time {
	t := o.now()
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
