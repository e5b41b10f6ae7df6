package playback

import (
	"time"

	"github.com/osa030/musify/internal/domain/track"
)

// Queue is a strict FIFO list of pending tracks.
// It is not safe for concurrent use; the Controller serializes access.
type Queue struct {
	items []track.QueueItem
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make([]track.QueueItem, 0)}
}

// Enqueue appends a track to the tail and returns the created item.
func (q *Queue) Enqueue(t track.Track, now time.Time) track.QueueItem {
	item := track.NewQueueItem(t, now)
	q.items = append(q.items, item)
	return item
}

// DequeueFront removes and returns the head of the queue.
func (q *Queue) DequeueFront() (track.QueueItem, bool) {
	if len(q.items) == 0 {
		return track.QueueItem{}, false
	}
	item := q.items[0]
	q.items[0] = track.QueueItem{}
	q.items = q.items[1:]
	return item, true
}

// Clear removes every item.
func (q *Queue) Clear() {
	q.items = make([]track.QueueItem, 0)
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns a copy of the queued items in FIFO order.
func (q *Queue) Items() []track.QueueItem {
	result := make([]track.QueueItem, len(q.items))
	copy(result, q.items)
	return result
}

// Restore replaces the queue contents, e.g. after rehydration.
func (q *Queue) Restore(items []track.QueueItem) {
	q.items = make([]track.QueueItem, len(items))
	copy(q.items, items)
}
