package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/musify/internal/app/catalog"
	"github.com/osa030/musify/internal/app/notification"
	"github.com/osa030/musify/internal/app/playback"
	"github.com/osa030/musify/internal/domain/track"
	"github.com/osa030/musify/internal/infra/config"
)

const testConfig = `
catalog:
  search_limit: 10
  sources:
    - type: deezer
      display_name: Deezer
`

type fakePlayer struct {
	mu    sync.Mutex
	state playback.PlayerState
	calls []string
	skip  float64
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{state: playback.DefaultState(), skip: 5}
}

func (p *fakePlayer) record(name string) {
	p.calls = append(p.calls, name)
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePlayer) GetState() playback.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

func (p *fakePlayer) PlayTrack(t track.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("PlayTrack:" + t.ID)
	p.state.CurrentTrack = &t
	p.state.IsPlaying = true
}

func (p *fakePlayer) EnqueueTrack(t track.Track) track.QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("EnqueueTrack:" + t.ID)
	item := track.NewQueueItem(t, time.Now())
	if p.state.CurrentTrack == nil {
		p.state.CurrentTrack = &t
		p.state.IsPlaying = true
		return item
	}
	p.state.Queue = append(p.state.Queue, item)
	return item
}

func (p *fakePlayer) ForceEnqueueTrack(t track.Track) track.QueueItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("ForceEnqueueTrack:" + t.ID)
	item := track.NewQueueItem(t, time.Now())
	p.state.Queue = append(p.state.Queue, item)
	return item
}

func (p *fakePlayer) TogglePlayPause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("TogglePlayPause")
	p.state.IsPlaying = !p.state.IsPlaying
	return p.state.IsPlaying
}

func (p *fakePlayer) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("Pause")
	was := p.state.IsPlaying
	p.state.IsPlaying = false
	return was
}

func (p *fakePlayer) SkipForward(seconds float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.CurrentTime += seconds
	return p.state.CurrentTime
}

func (p *fakePlayer) SkipBackward(seconds float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.CurrentTime -= seconds
	if p.state.CurrentTime < 0 {
		p.state.CurrentTime = 0
	}
	return p.state.CurrentTime
}

func (p *fakePlayer) SeekTo(position float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.CurrentTime = position
	return position
}

func (p *fakePlayer) PlayNextTrack() *track.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("PlayNextTrack")
	if len(p.state.Queue) == 0 {
		p.state.CurrentTrack = nil
		return nil
	}
	next := p.state.Queue[0].Track
	p.state.Queue = p.state.Queue[1:]
	p.state.CurrentTrack = &next
	return &next
}

func (p *fakePlayer) PlayPreviousTrack() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("PlayPreviousTrack")
	p.state.CurrentTime = 0
}

func (p *fakePlayer) SetVolume(v float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v > 1 {
		v = 1
	}
	p.state.Volume = v
	return v
}

func (p *fakePlayer) ClearQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("ClearQueue")
	p.state.Queue = []track.QueueItem{}
}

func (p *fakePlayer) DefaultSkipSeconds() float64 {
	return p.skip
}

type fakeCatalog struct {
	tracks     map[string]track.Track
	searchErr  error
	lastLimit  int
	lastQuery  string
	lookupFail bool
}

func (c *fakeCatalog) Search(ctx context.Context, query string, limit, index int) (*catalog.SearchResult, error) {
	c.lastQuery, c.lastLimit = query, limit
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	var data []track.Track
	for _, t := range c.tracks {
		data = append(data, t)
	}
	return &catalog.SearchResult{Data: data, Total: len(data), Source: "Deezer"}, nil
}

func (c *fakeCatalog) GetTrack(ctx context.Context, ref string) (*track.Track, error) {
	if c.lookupFail {
		return nil, errors.New("upstream unavailable")
	}
	t, ok := c.tracks[ref]
	if !ok {
		return nil, errors.Wrapf(catalog.ErrTrackNotFound, "ref %s", ref)
	}
	return &t, nil
}

type fakeLyrics struct {
	artist, title string
}

func (l *fakeLyrics) Get(ctx context.Context, artist, title string) string {
	l.artist, l.title = artist, title
	return "la la la"
}

type testEnv struct {
	player   *fakePlayer
	catalog  *fakeCatalog
	lyrics   *fakeLyrics
	notifier *notification.Notifier
	service  *PlayerService
	client   *Client
	server   *httptest.Server
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)

	env := &testEnv{
		player: newFakePlayer(),
		catalog: &fakeCatalog{tracks: map[string]track.Track{
			"deezer:1": {ID: "1", Title: "One More Time", Source: track.SourceDeezer, PreviewURL: "https://cdn.example/1.mp3", Artist: track.Artist{Name: "Daft Punk"}},
			"deezer:2": {ID: "2", Title: "Aerodynamic", Source: track.SourceDeezer, PreviewURL: "https://cdn.example/2.mp3"},
			"deezer:3": {ID: "3", Title: "Silent", Source: track.SourceDeezer},
		}},
		lyrics:   &fakeLyrics{},
		notifier: notification.NewNotifier(),
	}
	env.service = NewPlayerService(env.player, env.catalog, env.lyrics, env.notifier, cfg)

	path, handler := env.service.Handler(connect.WithInterceptors(NewControlTokenInterceptor(token)))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	env.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		env.service.Close()
		env.server.Close()
	})

	env.client = NewClient(env.server.Client(), env.server.URL, token)
	return env
}

func TestPlayerService_GetState(t *testing.T) {
	env := newTestEnv(t, "")

	resp, err := env.client.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", resp.Status)
	assert.Nil(t, resp.State.CurrentTrack)
	assert.Equal(t, 1.0, resp.State.Volume)
}

func TestPlayerService_PlayTrack(t *testing.T) {
	tests := []struct {
		name        string
		trackID     string
		lookupFail  bool
		wantCode    connect.Code
		wantMessage string
	}{
		{name: "found", trackID: "deezer:1", wantMessage: `Now playing: "One More Time"`},
		{name: "unknown", trackID: "deezer:404", wantCode: connect.CodeNotFound, wantMessage: "Track not found"},
		{name: "no preview", trackID: "deezer:3", wantCode: connect.CodeFailedPrecondition, wantMessage: "Track has no preview"},
		{name: "missing id", trackID: "", wantCode: connect.CodeInvalidArgument},
		{name: "catalog down", trackID: "deezer:1", lookupFail: true, wantCode: connect.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			env.catalog.lookupFail = tt.lookupFail

			resp, err := env.client.PlayTrack(context.Background(), tt.trackID)
			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, connect.CodeOf(err))
				if tt.wantMessage != "" {
					var cerr *connect.Error
					require.True(t, errors.As(err, &cerr))
					assert.Equal(t, tt.wantMessage, cerr.Message())
				}
				assert.Empty(t, env.player.Calls())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMessage, resp.Message)
			assert.Equal(t, []string{"PlayTrack:1"}, env.player.Calls())
		})
	}
}

func TestPlayerService_EnqueueTrack(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	first, err := env.client.EnqueueTrack(ctx, "deezer:1")
	require.NoError(t, err)
	assert.True(t, first.Started)
	assert.Equal(t, `Now playing: "One More Time"`, first.Message)
	assert.Equal(t, 0, first.QueueLength)

	second, err := env.client.EnqueueTrack(ctx, "deezer:2")
	require.NoError(t, err)
	assert.False(t, second.Started)
	assert.Equal(t, `"Aerodynamic" added to queue`, second.Message)
	assert.Equal(t, 1, second.QueueLength)

	forced, err := env.client.ForceEnqueueTrack(ctx, "deezer:1")
	require.NoError(t, err)
	assert.Equal(t, 2, forced.QueueLength)
	assert.NotEmpty(t, forced.Item.ID)
}

func TestPlayerService_Transport(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	toggle, err := env.client.TogglePlayPause(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Nothing is playing", toggle.Message)
	assert.Empty(t, env.player.Calls(), "toggle while idle does not reach the player")

	_, err = env.client.PlayTrack(ctx, "deezer:1")
	require.NoError(t, err)

	toggle, err = env.client.TogglePlayPause(ctx)
	require.NoError(t, err)
	assert.False(t, toggle.Playing)

	pause, err := env.client.Pause(ctx)
	require.NoError(t, err)
	assert.False(t, pause.Paused)

	pos, err := env.client.SkipForward(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, pos.Position, "zero uses the default skip")

	pos, err = env.client.SkipForward(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 15.0, pos.Position)

	pos, err = env.client.SkipBackward(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.Position)

	_, err = env.client.SkipBackward(ctx, -1)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	pos, err = env.client.SeekTo(ctx, 12.5)
	require.NoError(t, err)
	assert.Equal(t, 12.5, pos.Position)

	_, err = env.client.SeekTo(ctx, -3)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	vol, err := env.client.SetVolume(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, vol.Volume)

	prev, err := env.client.PlayPreviousTrack(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", prev.Message)
}

func TestPlayerService_PlayNextAndClear(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.client.EnqueueTrack(ctx, "deezer:1")
	require.NoError(t, err)
	_, err = env.client.EnqueueTrack(ctx, "deezer:2")
	require.NoError(t, err)

	next, err := env.client.PlayNextTrack(ctx)
	require.NoError(t, err)
	require.NotNil(t, next.Track)
	assert.Equal(t, "2", next.Track.ID)
	assert.Equal(t, `Now playing: "Aerodynamic"`, next.Message)

	next, err = env.client.PlayNextTrack(ctx)
	require.NoError(t, err)
	assert.Nil(t, next.Track)
	assert.Equal(t, "Queue is empty", next.Message)

	cleared, err := env.client.ClearQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Queue cleared", cleared.Message)
}

func TestPlayerService_Search(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	res, err := env.client.Search(ctx, "  daft punk ", 500, 0)
	require.NoError(t, err)
	assert.Equal(t, "daft punk", env.catalog.lastQuery)
	assert.Equal(t, 10, env.catalog.lastLimit, "limit is capped by config")
	assert.Equal(t, 3, res.Total)

	_, err = env.client.Search(ctx, " ", 0, 0)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	env.catalog.searchErr = errors.New("all sources failed")
	_, err = env.client.Search(ctx, "x", 0, 0)
	assert.Equal(t, connect.CodeUnavailable, connect.CodeOf(err))
}

func TestPlayerService_Lyrics(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.client.Lyrics(ctx, "", "")
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = env.client.PlayTrack(ctx, "deezer:1")
	require.NoError(t, err)

	resp, err := env.client.Lyrics(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "la la la", resp.Lyrics)
	assert.Equal(t, "Daft Punk", env.lyrics.artist)
	assert.Equal(t, "One More Time", env.lyrics.title)

	resp, err = env.client.Lyrics(ctx, "Justice", "D.A.N.C.E.")
	require.NoError(t, err)
	assert.Equal(t, "Justice", resp.Artist)
}

func TestControlToken(t *testing.T) {
	env := newTestEnv(t, "s3cret")
	ctx := context.Background()

	_, err := env.client.GetState(ctx)
	require.NoError(t, err)

	anonymous := NewClient(env.server.Client(), env.server.URL, "")
	_, err = anonymous.GetState(ctx)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	wrong := NewClient(env.server.Client(), env.server.URL, "guess")
	_, err = wrong.ClearQueue(ctx)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))
	assert.Empty(t, env.player.Calls())

	events, wait, err := wrong.Subscribe(ctx)
	require.NoError(t, err)
	for range events {
	}
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(wait()))
}

func TestPlayerService_Subscribe(t *testing.T) {
	env := newTestEnv(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := env.client.Subscribe(ctx, "trackChange")
	require.NoError(t, err)

	initial := <-events
	assert.Equal(t, KindInitialState, initial.Kind)

	// The stream is subscribed before the initial state is sent.
	require.Eventually(t, func() bool {
		return env.notifier.SubscriberCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	state := playback.DefaultState()
	state.CurrentTrack = &track.Track{ID: "9", Title: "Digital Love"}
	env.notifier.Publish(playback.EventVolumeChange, state)
	env.notifier.Publish(playback.EventTrackChange, state)

	select {
	case ev := <-events:
		assert.Equal(t, "trackChange", ev.Kind)
		require.NotNil(t, ev.State.CurrentTrack)
		assert.Equal(t, "Digital Love", ev.State.CurrentTrack.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	env.service.Close()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPlayerService_SubscribeRejectsUnknownKind(t *testing.T) {
	env := newTestEnv(t, "")

	events, wait, err := env.client.Subscribe(context.Background(), "explode")
	require.NoError(t, err)
	for range events {
	}
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(wait()))
}
