package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/musify/internal/app/playback"
	"github.com/osa030/musify/internal/domain/track"
	"github.com/osa030/musify/internal/infra/config"
)

func sampleState() playback.PlayerState {
	current := track.Track{
		ID:         "3135556",
		Title:      "Harder, Better, Faster, Stronger",
		Duration:   224 * time.Second,
		PreviewURL: "https://cdns-preview-d.dzcdn.net/stream/c-deda7fa9316d9e9e880d2c6207e92260-8.mp3",
		Source:     track.SourceDeezer,
		Artist:     track.Artist{ID: "27", Name: "Daft Punk"},
		Album: track.Album{
			ID:     "302127",
			Title:  "Discovery",
			Covers: track.Covers{Default: "https://api.deezer.com/album/302127/image"},
		},
	}
	queued := track.NewQueueItem(track.Track{ID: "3129407", Title: "One More Time"}, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	return playback.PlayerState{
		CurrentTrack: &current,
		Queue:        []track.QueueItem{queued},
		IsPlaying:    true,
		CurrentTime:  12.5,
		Volume:       0.7,
	}
}

// storeContract exercises the behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, playback.ErrNoSavedState)

	want := sampleState()
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Overwrite keeps a single blob.
	want.CurrentTrack = nil
	want.IsPlaying = false
	want.Queue = []track.QueueItem{}
	want.Volume = 0.2
	require.NoError(t, s.Save(ctx, want))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentTrack)
	assert.Empty(t, got.Queue)
	assert.Equal(t, 0.2, got.Volume)

	assert.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewFile(map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	storeContract(t, s)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileAt(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "failed to decode player state")
}

func TestFileStore_SaveHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileAt(filepath.Join(t.TempDir(), "state.json")).Save(ctx, sampleState())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	storeContract(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "musify.db")

	s, err := NewSQLite(ctx, map[string]any{"path": path})
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleState()))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleState().CurrentTrack.ID, got.CurrentTrack.ID)
}

func TestSQLiteStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)`, StateKey, "[]", time.Now())
	require.NoError(t, err)

	_, err = s.Load(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("MUSIFY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MUSIFY_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgres(ctx, map[string]any{"dsn": dsn})
	require.NoError(t, err)

	_, err = s.db.NewDelete().Model((*stateRecord)(nil)).Where("key = ?", StateKey).Exec(ctx)
	require.NoError(t, err)

	storeContract(t, s)
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    any
		wantErr string
	}{
		{name: "memory", cfg: config.StoreConfig{Type: "memory"}, want: &MemoryStore{}},
		{
			name: "file",
			cfg:  config.StoreConfig{Type: "file", Settings: map[string]any{"path": filepath.Join(t.TempDir(), "s.json")}},
			want: &FileStore{},
		},
		{name: "sqlite", cfg: config.StoreConfig{Type: "sqlite", Settings: map[string]any{"path": ":memory:"}}, want: &SQLiteStore{}},
		{name: "unsupported", cfg: config.StoreConfig{Type: "redis"}, wantErr: "unsupported store type"},
		{name: "bad settings", cfg: config.StoreConfig{Type: "file", Settings: map[string]any{"path": 42}}, wantErr: "failed to create store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFromConfig(ctx, tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestStoreFeedsController(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Save(context.Background(), sampleState()))

	var _ playback.StateStore = s
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, got.IsPlaying, "the store keeps the flag; the controller decides how to restore it")
}
