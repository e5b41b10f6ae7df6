package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musify/internal/app/playback"
)

// FileSettings configures the file backend.
type FileSettings struct {
	Path string `mapstructure:"path" default:"musify-state.json" validate:"required"`
}

// FileStore keeps the state as a JSON document on disk.
// Writes go to a temporary file that is renamed over the target.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file store from backend settings.
func NewFile(settings map[string]any) (*FileStore, error) {
	var cfg FileSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	return NewFileAt(cfg.Path), nil
}

// NewFileAt creates a file store writing to path.
func NewFileAt(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads and decodes the state file.
func (s *FileStore) Load(ctx context.Context) (playback.PlayerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return playback.PlayerState{}, ErrNotFound
		}
		return playback.PlayerState{}, errors.Wrap(err, "failed to read state file")
	}
	return decodeState(data)
}

// Save writes the state atomically.
func (s *FileStore) Save(ctx context.Context, state playback.PlayerState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp state file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp state file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "failed to replace state file")
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}
