// Package notification provides the event notifier for broadcasting player events.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musify/internal/app/playback"
)

// Handler receives published events.
type Handler func(ev playback.Event)

// subscription represents a registered handler.
type subscription struct {
	id      string
	handler Handler
}

// Notifier manages per-kind subscriptions and synchronous delivery.
// It implements playback.Publisher.
type Notifier struct {
	mu            sync.RWMutex
	subscriptions map[playback.EventKind][]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	now           func() time.Time
}

// NewNotifier creates a new notifier with no subscribers.
func NewNotifier() *Notifier {
	return &Notifier{
		subscriptions: make(map[playback.EventKind][]*subscription),
		now:           time.Now,
	}
}

// Subscribe registers handler for kind and returns the subscription ID.
// Handlers of one kind run in subscription order. An unknown kind returns "".
func (n *Notifier) Subscribe(kind playback.EventKind, handler Handler) string {
	if !kind.Valid() || handler == nil {
		return ""
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	id := uuid.New().String()
	// Copy on write so an in-flight Publish keeps iterating its own snapshot.
	subs := n.subscriptions[kind]
	next := make([]*subscription, len(subs), len(subs)+1)
	copy(next, subs)
	n.subscriptions[kind] = append(next, &subscription{id: id, handler: handler})
	return id
}

// SubscribeAll registers handler for every kind and returns the IDs in
// playback.AllEventKinds order.
func (n *Notifier) SubscribeAll(handler Handler) []string {
	kinds := playback.AllEventKinds()
	ids := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		ids = append(ids, n.Subscribe(kind, handler))
	}
	return ids
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (n *Notifier) Unsubscribe(kind playback.EventKind, subscriptionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.subscriptions[kind]
	for i, s := range subs {
		if s.id != subscriptionID {
			continue
		}
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(n.subscriptions, kind)
		} else {
			n.subscriptions[kind] = next
		}
		return
	}
}

// UnsubscribeAll removes subscriptions returned by SubscribeAll.
func (n *Notifier) UnsubscribeAll(ids []string) {
	for i, kind := range playback.AllEventKinds() {
		if i < len(ids) {
			n.Unsubscribe(kind, ids[i])
		}
	}
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (n *Notifier) NextSequenceNo() uint64 {
	n.sequenceNoMu.Lock()
	defer n.sequenceNoMu.Unlock()
	n.sequenceNo++
	return n.sequenceNo
}

// Publish delivers an event to the current subscribers of kind, synchronously
// and in subscription order. A panicking handler is logged and skipped.
func (n *Notifier) Publish(kind playback.EventKind, state playback.PlayerState) {
	ev := playback.Event{
		Kind:  kind,
		Seq:   n.NextSequenceNo(),
		State: state,
		At:    n.now(),
	}

	n.mu.RLock()
	subs := n.subscriptions[kind]
	n.mu.RUnlock()

	for _, s := range subs {
		n.deliver(s, ev)
	}
}

func (n *Notifier) deliver(s *subscription, ev playback.Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("notification: handler panicked: kind=%s subscription=%s panic=%v", ev.Kind, s.id, r)
		}
	}()
	s.handler(ev)
}

// Stream subscribes to kinds (all kinds when empty) and forwards events into a
// buffered channel until ctx is done. Events that do not fit in the buffer are
// dropped so a slow reader never stalls the publisher.
func (n *Notifier) Stream(ctx context.Context, kinds []playback.EventKind, buffer int) <-chan playback.Event {
	if len(kinds) == 0 {
		kinds = playback.AllEventKinds()
	}
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan playback.Event, buffer)
	var mu sync.Mutex
	done := false

	handler := func(ev playback.Event) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case ch <- ev:
		default:
			zlog.Warn().Msgf("notification: stream buffer full, dropping event kind=%s seq=%d", ev.Kind, ev.Seq)
		}
	}

	ids := make([]string, len(kinds))
	for i, kind := range kinds {
		ids[i] = n.Subscribe(kind, handler)
	}

	go func() {
		<-ctx.Done()
		for i, kind := range kinds {
			n.Unsubscribe(kind, ids[i])
		}
		mu.Lock()
		done = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}

// SubscriberCount returns the number of active subscriptions across all kinds.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, subs := range n.subscriptions {
		count += len(subs)
	}
	return count
}

// Close removes all subscriptions.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscriptions = make(map[playback.EventKind][]*subscription)
}

var _ playback.Publisher = (*Notifier)(nil)
