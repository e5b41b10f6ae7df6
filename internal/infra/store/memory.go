package store

import (
	"context"
	"sync"

	"github.com/osa030/musify/internal/app/playback"
)

// MemoryStore keeps the encoded state in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Load decodes the stored state.
func (s *MemoryStore) Load(ctx context.Context) (playback.PlayerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return playback.PlayerState{}, ErrNotFound
	}
	return decodeState(s.data)
}

// Save replaces the stored state.
func (s *MemoryStore) Save(ctx context.Context, state playback.PlayerState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
