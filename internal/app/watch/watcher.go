// Package watch follows the remote player state by merging pushed events
// with periodic polling.
package watch

import (
	"context"
	"reflect"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musify/internal/app/playback"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = time.Second

// PollFunc fetches the current state.
type PollFunc func(ctx context.Context) (playback.PlayerState, error)

// StreamFunc opens a push stream of states. The channel is closed when the
// stream ends; it is reopened on the next poll tick.
type StreamFunc func(ctx context.Context) (<-chan playback.PlayerState, error)

// Watcher merges a push stream with a fixed-interval poll. Polling keeps the
// view correct when pushed updates are missed or the stream is down.
type Watcher struct {
	poll     PollFunc
	stream   StreamFunc
	interval time.Duration
}

// New creates a watcher. stream may be nil for poll-only operation.
func New(poll PollFunc, stream StreamFunc, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		poll:     poll,
		stream:   stream,
		interval: interval,
	}
}

// Run starts watching and returns a channel of de-duplicated states.
// The channel is closed when ctx is done.
func (w *Watcher) Run(ctx context.Context) <-chan playback.PlayerState {
	out := make(chan playback.PlayerState)
	go w.run(ctx, out)
	return out
}

func (w *Watcher) run(ctx context.Context, out chan<- playback.PlayerState) {
	defer close(out)

	var last *playback.PlayerState
	emit := func(s playback.PlayerState) bool {
		if last != nil && reflect.DeepEqual(*last, s) {
			return true
		}
		select {
		case out <- s:
			last = &s
			return true
		case <-ctx.Done():
			return false
		}
	}

	pushed := w.openStream(ctx)

	if !w.pollOnce(ctx, emit) {
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if pushed == nil {
				pushed = w.openStream(ctx)
			}
			if !w.pollOnce(ctx, emit) {
				return
			}

		case s, ok := <-pushed:
			if !ok {
				zlog.Debug().Msg("watch: push stream closed, polling only until reopened")
				pushed = nil
				continue
			}
			if !emit(s) {
				return
			}
		}
	}
}

func (w *Watcher) openStream(ctx context.Context) <-chan playback.PlayerState {
	if w.stream == nil {
		return nil
	}
	ch, err := w.stream(ctx)
	if err != nil {
		zlog.Debug().Err(err).Msg("watch: failed to open push stream")
		return nil
	}
	return ch
}

func (w *Watcher) pollOnce(ctx context.Context, emit func(playback.PlayerState) bool) bool {
	s, err := w.poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		zlog.Warn().Err(err).Msg("watch: poll failed")
		return true
	}
	return emit(s)
}
