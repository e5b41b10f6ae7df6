package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/musify/internal/domain/track"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	a := q.Enqueue(track.Track{ID: "a"}, now)
	b := q.Enqueue(track.Track{ID: "b"}, now)
	q.Enqueue(track.Track{ID: "c"}, now)
	assert.Equal(t, 3, q.Len())
	assert.NotEqual(t, a.ID, b.ID)

	for _, want := range []string{"a", "b", "c"} {
		item, ok := q.DequeueFront()
		require.True(t, ok)
		assert.Equal(t, want, item.Track.ID)
	}

	_, ok := q.DequeueFront()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DuplicatesAllowed(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.Enqueue(track.Track{ID: "a"}, now)
	q.Enqueue(track.Track{ID: "a"}, now)

	items := q.Items()
	require.Len(t, items, 2)
	assert.Equal(t, items[0].Track.ID, items[1].Track.ID)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}

func TestQueue_ItemsIsCopy(t *testing.T) {
	q := NewQueue()
	q.Enqueue(track.Track{ID: "a"}, time.Now())

	items := q.Items()
	items[0].Track.ID = "mutated"

	assert.Equal(t, "a", q.Items()[0].Track.ID)
}

func TestQueue_ClearAndRestore(t *testing.T) {
	q := NewQueue()
	q.Enqueue(track.Track{ID: "a"}, time.Now())
	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.NotNil(t, q.Items())

	restored := []track.QueueItem{
		track.NewQueueItem(track.Track{ID: "x"}, time.Now()),
		track.NewQueueItem(track.Track{ID: "y"}, time.Now()),
	}
	q.Restore(restored)
	restored[0].Track.ID = "mutated"

	item, ok := q.DequeueFront()
	require.True(t, ok)
	assert.Equal(t, "x", item.Track.ID)
	assert.Equal(t, 1, q.Len())
}
