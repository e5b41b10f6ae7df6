package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musify/internal/domain/track"
)

// ErrNoSavedState is returned by a StateStore when nothing has been persisted yet.
var ErrNoSavedState = errors.New("no saved player state")

// StateStore persists the single PlayerState blob.
type StateStore interface {
	Load(ctx context.Context) (PlayerState, error)
	Save(ctx context.Context, state PlayerState) error
}

// Config holds controller configuration.
type Config struct {
	DefaultSkipSeconds float64       // Used by callers when no skip amount is given
	RestartThreshold   float64       // Seconds after which "previous" restarts the track
	PersistTimeout     time.Duration // Upper bound for a single store write
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DefaultSkipSeconds: 5,
		RestartThreshold:   3,
		PersistTimeout:     2 * time.Second,
	}
}

type pendingEvent struct {
	kind  EventKind
	state PlayerState
}

// Controller owns the player state, the queue and the audio driver.
//
// Every operation mutates state, persists it and queues events under one lock.
// Events are delivered after the lock is released, in mutation order, so
// subscribers may call back into the controller. No operation returns an
// error: failures are logged and reported through sentinel return values.
type Controller struct {
	mu sync.Mutex

	state  PlayerState // Queue field unused; the queue lives in queue
	queue  *Queue
	config Config

	driver    Driver
	store     StateStore
	publisher Publisher
	now       func() time.Time

	// playSeq identifies the latest play request; late rejections of older
	// requests are ignored.
	playSeq uint64

	pending  []pendingEvent
	draining bool
	closed   bool
}

// NewController creates a controller and rehydrates it from the store.
// A persisted playing state is restored as paused at the stored position.
func NewController(ctx context.Context, config Config, driver Driver, store StateStore, publisher Publisher) *Controller {
	defaults := DefaultConfig()
	if config.DefaultSkipSeconds <= 0 {
		config.DefaultSkipSeconds = defaults.DefaultSkipSeconds
	}
	if config.RestartThreshold < 0 {
		config.RestartThreshold = defaults.RestartThreshold
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = defaults.PersistTimeout
	}

	c := &Controller{
		queue:     NewQueue(),
		config:    config,
		driver:    driver,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}

	st, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSavedState) {
			zlog.Debug().Msg("playback: no saved state, starting idle")
		} else {
			zlog.Warn().Err(err).Msg("playback: failed to load saved state, using defaults")
		}
		st = DefaultState()
	}
	st.Normalize()
	st.IsPlaying = false

	c.queue.Restore(st.Queue)
	st.Queue = nil
	c.state = st

	driver.SetVolume(st.Volume)
	if st.CurrentTrack != nil {
		c.load(*st.CurrentTrack)
		c.state.CurrentTime = driver.SetCurrentTime(st.CurrentTime)
		zlog.Info().Msgf("playback: restored track=%q position=%.1fs queue=%d",
			st.CurrentTrack.DisplayName(), c.state.CurrentTime, c.queue.Len())
	}

	driver.OnTimeUpdate(c.handleTimeUpdate)
	driver.OnEnded(c.handleEnded)

	return c
}

// GetState returns a snapshot of the current state.
func (c *Controller) GetState() PlayerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Status returns the derived playback state.
func (c *Controller) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status()
}

// QueueLength returns the number of queued items.
func (c *Controller) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// DefaultSkipSeconds returns the configured skip amount.
func (c *Controller) DefaultSkipSeconds() float64 {
	return c.config.DefaultSkipSeconds
}

// PlayTrack makes t the current track and starts playing it.
func (c *Controller) PlayTrack(t track.Track) {
	c.do(func() {
		c.playTrackLocked(t)
	})
}

// EnqueueTrack plays t immediately when idle, otherwise appends it to the queue.
func (c *Controller) EnqueueTrack(t track.Track) track.QueueItem {
	var item track.QueueItem
	c.do(func() {
		if c.state.CurrentTrack == nil {
			item = track.NewQueueItem(t, c.now())
			c.playTrackLocked(t)
			return
		}
		item = c.enqueueLocked(t)
	})
	return item
}

// ForceEnqueueTrack appends t to the queue regardless of the playback state.
func (c *Controller) ForceEnqueueTrack(t track.Track) track.QueueItem {
	var item track.QueueItem
	c.do(func() {
		item = c.enqueueLocked(t)
	})
	return item
}

// TogglePlayPause flips between playing and paused.
// Returns the resulting playing flag; false when idle.
func (c *Controller) TogglePlayPause() bool {
	var playing bool
	c.do(func() {
		if c.state.CurrentTrack == nil {
			return
		}
		if c.state.IsPlaying {
			c.pauseLocked()
		} else {
			c.resumeLocked()
		}
		playing = c.state.IsPlaying
	})
	return playing
}

// Pause pauses playback. It is idempotent; returns true if playback was running.
func (c *Controller) Pause() bool {
	var changed bool
	c.do(func() {
		if c.state.CurrentTrack == nil || !c.state.IsPlaying {
			return
		}
		c.pauseLocked()
		changed = true
	})
	return changed
}

// SkipForward moves the position by seconds; negative values move backwards.
// Returns the new position, or 0 when idle.
func (c *Controller) SkipForward(seconds float64) float64 {
	var pos float64
	c.do(func() {
		if c.state.CurrentTrack == nil {
			return
		}
		pos = c.seekLocked(c.driver.CurrentTime() + seconds)
	})
	return pos
}

// SkipBackward moves the position back by seconds, stopping at 0.
// Returns the new position, or 0 when idle.
func (c *Controller) SkipBackward(seconds float64) float64 {
	return c.SkipForward(-seconds)
}

// SeekTo moves to an absolute position clamped to the track bounds.
// Returns the new position, or 0 when idle.
func (c *Controller) SeekTo(position float64) float64 {
	var pos float64
	c.do(func() {
		if c.state.CurrentTrack == nil {
			return
		}
		pos = c.seekLocked(position)
	})
	return pos
}

// PlayNextTrack plays the head of the queue. With an empty queue the player
// goes idle and nil is returned.
func (c *Controller) PlayNextTrack() *track.Track {
	var next *track.Track
	c.do(func() {
		next = c.playNextLocked()
	})
	return next
}

// PlayPreviousTrack restarts the current track. There is no play history:
// whether the position is past the restart threshold or not, it ends at 0.
func (c *Controller) PlayPreviousTrack() {
	c.do(func() {
		if c.state.CurrentTrack == nil {
			return
		}
		if pos := c.driver.CurrentTime(); pos > c.config.RestartThreshold {
			zlog.Debug().Msgf("playback: restarting track at %.1fs", pos)
		}
		c.state.CurrentTime = c.driver.SetCurrentTime(0)
		c.persistLocked()
		c.emitLocked(EventTimeUpdate)
	})
}

// SetVolume clamps v to [0,1], applies it and returns the applied value.
func (c *Controller) SetVolume(v float64) float64 {
	var vol float64
	c.do(func() {
		vol = clamp(v, 0, 1)
		c.driver.SetVolume(vol)
		c.state.Volume = vol
		c.persistLocked()
		c.emitLocked(EventVolumeChange)
	})
	return vol
}

// ClearQueue empties the queue. The current track is unaffected.
func (c *Controller) ClearQueue() {
	c.do(func() {
		c.queue.Clear()
		c.persistLocked()
		c.emitLocked(EventQueueUpdate)
	})
}

// Close pauses output, writes a final snapshot and ignores further driver signals.
func (c *Controller) Close() {
	c.do(func() {
		if c.closed {
			return
		}
		c.playSeq++
		if c.state.IsPlaying {
			c.driver.Pause()
			c.state.CurrentTime = c.driver.CurrentTime()
		}
		c.persistLocked()
		c.closed = true
	})
}

// handleTimeUpdate is the driver's playback tick.
func (c *Controller) handleTimeUpdate(sec float64) {
	c.do(func() {
		if c.closed || c.state.CurrentTrack == nil {
			return
		}
		c.state.CurrentTime = sec
		c.persistLocked()
		c.emitLocked(EventTimeUpdate)
	})
}

// handleEnded auto-advances when the loaded source finishes.
func (c *Controller) handleEnded() {
	c.do(func() {
		if c.closed || c.state.CurrentTrack == nil {
			return
		}
		// A new source may have been loaded while the signal was in flight.
		if !c.driver.Ended() {
			zlog.Debug().Msg("playback: ignoring stale end signal")
			return
		}
		ended := c.state.CurrentTrack.DisplayName()
		next := c.playNextLocked()
		if next != nil {
			zlog.Info().Msgf("playback: track ended: track=%q next=%q", ended, next.DisplayName())
		} else {
			zlog.Info().Msgf("playback: track ended: track=%q queue empty", ended)
		}
		c.emitLocked(EventEnd)
	})
}

func (c *Controller) playTrackLocked(t track.Track) {
	c.state.CurrentTrack = &t
	c.state.IsPlaying = true
	c.state.CurrentTime = 0

	c.load(t)
	c.driver.SetVolume(c.state.Volume)
	result := c.requestPlayLocked()

	zlog.Debug().Msgf("playback: playing track=%q duration=%v", t.DisplayName(), t.Duration)

	c.persistLocked()
	c.emitLocked(EventTrackChange)
	c.emitLocked(EventPlay)
	c.awaitPlayLocked(c.playSeq, result)
}

// load hands the track's source to the driver, with its length when the
// driver can use it.
func (c *Controller) load(t track.Track) {
	if hl, ok := c.driver.(hintedLoader); ok && t.Duration > 0 {
		hl.LoadWithHint(t.PreviewURL, t.Seconds())
		return
	}
	c.driver.Load(t.PreviewURL)
}

func (c *Controller) enqueueLocked(t track.Track) track.QueueItem {
	item := c.queue.Enqueue(t, c.now())
	zlog.Debug().Msgf("playback: queued track=%q position=%d", t.DisplayName(), c.queue.Len())
	c.persistLocked()
	c.emitLocked(EventQueueUpdate)
	return item
}

func (c *Controller) pauseLocked() {
	c.playSeq++
	c.driver.Pause()
	c.state.IsPlaying = false
	c.state.CurrentTime = c.driver.CurrentTime()
	c.persistLocked()
	c.emitLocked(EventPause)
}

func (c *Controller) resumeLocked() {
	c.state.IsPlaying = true
	result := c.requestPlayLocked()
	c.persistLocked()
	c.emitLocked(EventPlay)
	c.awaitPlayLocked(c.playSeq, result)
}

func (c *Controller) playNextLocked() *track.Track {
	item, ok := c.queue.DequeueFront()
	if !ok {
		c.playSeq++
		c.state.CurrentTrack = nil
		c.state.IsPlaying = false
		c.state.CurrentTime = 0
		c.driver.Pause()
		c.driver.SetCurrentTime(0)
		c.persistLocked()
		c.emitLocked(EventTrackChange)
		return nil
	}

	c.emitLocked(EventQueueUpdate)
	next := item.Track
	c.playTrackLocked(next)
	return &next
}

// seekLocked clamps target to [0, duration] and moves the driver there.
// Moving forward without a known duration leaves the position unchanged.
func (c *Controller) seekLocked(target float64) float64 {
	current := c.driver.CurrentTime()
	if target < 0 || target != target {
		target = 0
	}
	if target > current {
		duration, ok := c.durationLocked()
		if !ok {
			zlog.Warn().Msgf("playback: duration unknown, cannot seek forward to %.1fs", target)
			return current
		}
		if target > duration {
			target = duration
		}
	}

	c.state.CurrentTime = c.driver.SetCurrentTime(target)
	c.persistLocked()
	c.emitLocked(EventTimeUpdate)
	return c.state.CurrentTime
}

// durationLocked prefers the driver's native duration and falls back to the
// track metadata until the source metadata has loaded.
func (c *Controller) durationLocked() (float64, bool) {
	if d, ok := c.driver.Duration(); ok && d > 0 {
		return d, true
	}
	if c.state.CurrentTrack != nil && c.state.CurrentTrack.Duration > 0 {
		return c.state.CurrentTrack.Seconds(), true
	}
	return 0, false
}

func (c *Controller) requestPlayLocked() <-chan error {
	c.playSeq++
	return c.driver.Play()
}

// awaitPlayLocked applies the play result without blocking the caller.
// Results that are already available are applied immediately.
func (c *Controller) awaitPlayLocked(seq uint64, result <-chan error) {
	if result == nil {
		return
	}
	select {
	case err := <-result:
		c.applyPlayResultLocked(seq, err)
	default:
		go func() {
			err := <-result
			c.do(func() {
				c.applyPlayResultLocked(seq, err)
			})
		}()
	}
}

func (c *Controller) applyPlayResultLocked(seq uint64, err error) {
	if err == nil {
		return
	}
	zlog.Warn().Err(err).Msg("playback: play request rejected")
	if c.closed || seq != c.playSeq || !c.state.IsPlaying {
		return
	}
	c.driver.Pause()
	c.state.IsPlaying = false
	c.persistLocked()
	c.emitLocked(EventPause)
}

func (c *Controller) snapshotLocked() PlayerState {
	st := c.state.Clone()
	st.Queue = c.queue.Items()
	return st
}

func (c *Controller) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.PersistTimeout)
	defer cancel()
	if err := c.store.Save(ctx, c.snapshotLocked()); err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to persist state")
	}
}

// emitLocked queues an event with the current snapshot. An undelivered
// timeUpdate at the tail is replaced rather than appended, so a fast tick
// rate cannot starve other kinds.
func (c *Controller) emitLocked(kind EventKind) {
	snap := c.snapshotLocked()
	if kind == EventTimeUpdate {
		if n := len(c.pending); n > 0 && c.pending[n-1].kind == EventTimeUpdate {
			c.pending[n-1].state = snap
			return
		}
	}
	c.pending = append(c.pending, pendingEvent{kind: kind, state: snap})
}

// do runs fn under the lock and then delivers the events it queued.
func (c *Controller) do(fn func()) {
	c.mu.Lock()
	fn()
	c.mu.Unlock()
	c.drain()
}

// drain publishes pending events outside the lock. Only one goroutine drains
// at a time; events queued by re-entrant or concurrent calls are picked up by
// the active drainer.
func (c *Controller) drain() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending[0] = pendingEvent{}
		c.pending = c.pending[1:]
		c.mu.Unlock()
		c.publish(ev)
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

func (c *Controller) publish(ev pendingEvent) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback: publisher panicked: kind=%s panic=%v", ev.kind, r)
		}
	}()
	c.publisher.Publish(ev.kind, ev.state)
}
