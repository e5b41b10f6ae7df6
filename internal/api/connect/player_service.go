package connect

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musify/internal/app/catalog"
	"github.com/osa030/musify/internal/app/playback"
	"github.com/osa030/musify/internal/domain/track"
	"github.com/osa030/musify/internal/infra/config"
)

// Player is the playback controller surface exposed over RPC.
type Player interface {
	GetState() playback.PlayerState
	PlayTrack(t track.Track)
	EnqueueTrack(t track.Track) track.QueueItem
	ForceEnqueueTrack(t track.Track) track.QueueItem
	TogglePlayPause() bool
	Pause() bool
	SkipForward(seconds float64) float64
	SkipBackward(seconds float64) float64
	SeekTo(position float64) float64
	PlayNextTrack() *track.Track
	PlayPreviousTrack()
	SetVolume(v float64) float64
	ClearQueue()
	DefaultSkipSeconds() float64
}

// Catalog resolves and searches tracks.
type Catalog interface {
	Search(ctx context.Context, query string, limit, index int) (*catalog.SearchResult, error)
	GetTrack(ctx context.Context, ref string) (*track.Track, error)
}

// Lyrics looks up lyrics text.
type Lyrics interface {
	Get(ctx context.Context, artist, title string) string
}

// EventSource streams player events.
type EventSource interface {
	Stream(ctx context.Context, kinds []playback.EventKind, buffer int) <-chan playback.Event
	NextSequenceNo() uint64
}

// streamBuffer is the per-subscriber event buffer.
const streamBuffer = 64

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player  Player
	catalog Catalog
	lyrics  Lyrics
	events  EventSource
	config  *config.Config

	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(player Player, cat Catalog, lyrics Lyrics, events EventSource, cfg *config.Config) *PlayerService {
	return &PlayerService{
		player:  player,
		catalog: cat,
		lyrics:  lyrics,
		events:  events,
		config:  cfg,
		done:    make(chan struct{}),
	}
}

// Handler returns the service path and an HTTP handler serving every procedure.
func (s *PlayerService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, s.GetState, opts...))
	mux.Handle(PlayTrackProcedure, connect.NewUnaryHandler(PlayTrackProcedure, s.PlayTrack, opts...))
	mux.Handle(EnqueueTrackProcedure, connect.NewUnaryHandler(EnqueueTrackProcedure, s.EnqueueTrack, opts...))
	mux.Handle(ForceEnqueueTrackProcedure, connect.NewUnaryHandler(ForceEnqueueTrackProcedure, s.ForceEnqueueTrack, opts...))
	mux.Handle(TogglePlayPauseProcedure, connect.NewUnaryHandler(TogglePlayPauseProcedure, s.TogglePlayPause, opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, s.Pause, opts...))
	mux.Handle(SkipForwardProcedure, connect.NewUnaryHandler(SkipForwardProcedure, s.SkipForward, opts...))
	mux.Handle(SkipBackwardProcedure, connect.NewUnaryHandler(SkipBackwardProcedure, s.SkipBackward, opts...))
	mux.Handle(SeekToProcedure, connect.NewUnaryHandler(SeekToProcedure, s.SeekTo, opts...))
	mux.Handle(PlayNextTrackProcedure, connect.NewUnaryHandler(PlayNextTrackProcedure, s.PlayNextTrack, opts...))
	mux.Handle(PlayPreviousTrackProcedure, connect.NewUnaryHandler(PlayPreviousTrackProcedure, s.PlayPreviousTrack, opts...))
	mux.Handle(SetVolumeProcedure, connect.NewUnaryHandler(SetVolumeProcedure, s.SetVolume, opts...))
	mux.Handle(ClearQueueProcedure, connect.NewUnaryHandler(ClearQueueProcedure, s.ClearQueue, opts...))
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, s.Search, opts...))
	mux.Handle(LyricsProcedure, connect.NewUnaryHandler(LyricsProcedure, s.Lyrics, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, s.Subscribe, opts...))

	return PlayerServicePath, mux
}

// Close ends all open Subscribe streams.
func (s *PlayerService) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// GetState returns the current state snapshot.
func (s *PlayerService) GetState(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[StateResponse], error) {
	return connect.NewResponse(s.stateResponse()), nil
}

// PlayTrack makes a track current and starts playing it.
func (s *PlayerService) PlayTrack(
	ctx context.Context,
	req *connect.Request[TrackRequest],
) (*connect.Response[PlayTrackResponse], error) {
	t, err := s.resolveTrack(ctx, req.Msg)
	if err != nil {
		return nil, err
	}

	s.player.PlayTrack(t)
	zlog.Info().Msgf("api: play track: id=%s title=%q", t.Ref(), t.Title)

	return connect.NewResponse(&PlayTrackResponse{
		Track:   &t,
		Message: s.config.FormatMessage("now_playing", t.Title),
	}), nil
}

// EnqueueTrack plays a track when idle, otherwise queues it.
func (s *PlayerService) EnqueueTrack(
	ctx context.Context,
	req *connect.Request[TrackRequest],
) (*connect.Response[EnqueueTrackResponse], error) {
	t, err := s.resolveTrack(ctx, req.Msg)
	if err != nil {
		return nil, err
	}

	wasIdle := s.player.GetState().CurrentTrack == nil
	item := s.player.EnqueueTrack(t)
	state := s.player.GetState()

	// Another caller may have filled the idle slot in between; trust the state.
	started := wasIdle && state.CurrentTrack != nil && state.CurrentTrack.ID == t.ID && !queued(state, item.ID)
	code := "added_to_queue"
	if started {
		code = "now_playing"
	}
	zlog.Info().Msgf("api: enqueue track: id=%s title=%q started=%t", t.Ref(), t.Title, started)

	return connect.NewResponse(&EnqueueTrackResponse{
		Item:        item,
		Started:     started,
		QueueLength: len(state.Queue),
		Message:     s.config.FormatMessage(code, t.Title),
	}), nil
}

// ForceEnqueueTrack appends a track to the queue regardless of playback state.
func (s *PlayerService) ForceEnqueueTrack(
	ctx context.Context,
	req *connect.Request[TrackRequest],
) (*connect.Response[EnqueueTrackResponse], error) {
	t, err := s.resolveTrack(ctx, req.Msg)
	if err != nil {
		return nil, err
	}

	item := s.player.ForceEnqueueTrack(t)
	zlog.Info().Msgf("api: force enqueue track: id=%s title=%q", t.Ref(), t.Title)

	return connect.NewResponse(&EnqueueTrackResponse{
		Item:        item,
		QueueLength: len(s.player.GetState().Queue),
		Message:     s.config.FormatMessage("added_to_queue", t.Title),
	}), nil
}

// TogglePlayPause flips between playing and paused.
func (s *PlayerService) TogglePlayPause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[TogglePlayPauseResponse], error) {
	if s.player.GetState().CurrentTrack == nil {
		return connect.NewResponse(&TogglePlayPauseResponse{
			Message: s.config.GetMessage("nothing_loaded"),
		}), nil
	}

	playing := s.player.TogglePlayPause()
	return connect.NewResponse(&TogglePlayPauseResponse{
		Playing: playing,
		Message: s.config.GetMessage("success"),
	}), nil
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[PauseResponse], error) {
	return connect.NewResponse(&PauseResponse{Paused: s.player.Pause()}), nil
}

// SkipForward moves the position forward.
func (s *PlayerService) SkipForward(
	ctx context.Context,
	req *connect.Request[SkipRequest],
) (*connect.Response[PositionResponse], error) {
	seconds, err := s.skipSeconds(req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&PositionResponse{Position: s.player.SkipForward(seconds)}), nil
}

// SkipBackward moves the position backward.
func (s *PlayerService) SkipBackward(
	ctx context.Context,
	req *connect.Request[SkipRequest],
) (*connect.Response[PositionResponse], error) {
	seconds, err := s.skipSeconds(req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&PositionResponse{Position: s.player.SkipBackward(seconds)}), nil
}

// SeekTo moves to an absolute position.
func (s *PlayerService) SeekTo(
	ctx context.Context,
	req *connect.Request[SeekToRequest],
) (*connect.Response[PositionResponse], error) {
	if req.Msg.Position < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("position must not be negative"))
	}
	return connect.NewResponse(&PositionResponse{Position: s.player.SeekTo(req.Msg.Position)}), nil
}

// PlayNextTrack plays the head of the queue.
func (s *PlayerService) PlayNextTrack(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[PlayTrackResponse], error) {
	next := s.player.PlayNextTrack()
	if next == nil {
		return connect.NewResponse(&PlayTrackResponse{
			Message: s.config.GetMessage("queue_empty"),
		}), nil
	}
	return connect.NewResponse(&PlayTrackResponse{
		Track:   next,
		Message: s.config.FormatMessage("now_playing", next.Title),
	}), nil
}

// PlayPreviousTrack restarts the current track.
func (s *PlayerService) PlayPreviousTrack(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[MessageResponse], error) {
	if s.player.GetState().CurrentTrack == nil {
		return connect.NewResponse(&MessageResponse{Message: s.config.GetMessage("nothing_loaded")}), nil
	}
	s.player.PlayPreviousTrack()
	return connect.NewResponse(&MessageResponse{Message: s.config.GetMessage("success")}), nil
}

// SetVolume sets the output volume.
func (s *PlayerService) SetVolume(
	ctx context.Context,
	req *connect.Request[SetVolumeRequest],
) (*connect.Response[VolumeResponse], error) {
	return connect.NewResponse(&VolumeResponse{Volume: s.player.SetVolume(req.Msg.Volume)}), nil
}

// ClearQueue empties the queue.
func (s *PlayerService) ClearQueue(
	ctx context.Context,
	req *connect.Request[Empty],
) (*connect.Response[MessageResponse], error) {
	s.player.ClearQueue()
	zlog.Info().Msg("api: queue cleared")
	return connect.NewResponse(&MessageResponse{Message: s.config.GetMessage("queue_cleared")}), nil
}

// Search queries the catalog.
func (s *PlayerService) Search(
	ctx context.Context,
	req *connect.Request[SearchRequest],
) (*connect.Response[catalog.SearchResult], error) {
	if s.catalog == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("no catalog configured"))
	}
	query := strings.TrimSpace(req.Msg.Query)
	if query == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("query is required"))
	}
	limit := req.Msg.Limit
	if limit <= 0 || limit > s.config.Catalog.SearchLimit {
		limit = s.config.Catalog.SearchLimit
	}
	index := req.Msg.Index
	if index < 0 {
		index = 0
	}

	res, err := s.catalog.Search(ctx, query, limit, index)
	if err != nil {
		zlog.Error().Err(err).Msgf("api: search failed: query=%q", query)
		return nil, connect.NewError(connect.CodeUnavailable, errors.New(s.config.GetMessage("search_failed")))
	}
	return connect.NewResponse(res), nil
}

// Lyrics returns the lyrics for a track, or for the current track when the
// request names none.
func (s *PlayerService) Lyrics(
	ctx context.Context,
	req *connect.Request[LyricsRequest],
) (*connect.Response[LyricsResponse], error) {
	if s.lyrics == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("no lyrics provider configured"))
	}
	artist, title := req.Msg.Artist, req.Msg.Title
	if artist == "" && title == "" {
		current := s.player.GetState().CurrentTrack
		if current == nil {
			return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New(s.config.GetMessage("nothing_loaded")))
		}
		artist, title = current.Artist.Name, current.Title
	}

	return connect.NewResponse(&LyricsResponse{
		Artist: artist,
		Title:  title,
		Lyrics: s.lyrics.Get(ctx, artist, title),
	}), nil
}

// Subscribe streams the current state followed by player events.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	req *connect.Request[SubscribeRequest],
	stream *connect.ServerStream[EventMessage],
) error {
	kinds := make([]playback.EventKind, 0, len(req.Msg.Kinds))
	for _, name := range req.Msg.Kinds {
		kind, err := playback.ParseEventKind(name)
		if err != nil {
			return connect.NewError(connect.CodeInvalidArgument, err)
		}
		kinds = append(kinds, kind)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Subscribe before the snapshot so nothing falls between the two.
	events := s.events.Stream(ctx, kinds, streamBuffer)

	initial := &EventMessage{
		Kind:  KindInitialState,
		Seq:   s.events.NextSequenceNo(),
		State: s.player.GetState(),
	}
	if err := stream.Send(initial); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(&EventMessage{
				Kind:  ev.Kind.String(),
				Seq:   ev.Seq,
				State: ev.State,
				At:    ev.At,
			}); err != nil {
				zlog.Debug().Err(err).Msg("api: subscriber went away")
				return err
			}
		}
	}
}

func (s *PlayerService) stateResponse() *StateResponse {
	state := s.player.GetState()
	return &StateResponse{
		State:  state,
		Status: state.Status().String(),
	}
}

// resolveTrack returns the inline track or looks the reference up in the
// catalog. Tracks without a preview are rejected since nothing can be played.
func (s *PlayerService) resolveTrack(ctx context.Context, in *TrackRequest) (track.Track, error) {
	var t track.Track
	switch {
	case in.Track != nil:
		t = *in.Track
		if t.ID == "" {
			return t, connect.NewError(connect.CodeInvalidArgument, errors.New("track.id is required"))
		}

	case strings.TrimSpace(in.TrackID) != "":
		if s.catalog == nil {
			return t, connect.NewError(connect.CodeUnimplemented, errors.New("no catalog configured"))
		}
		found, err := s.catalog.GetTrack(ctx, in.TrackID)
		if err != nil {
			if errors.Is(err, catalog.ErrTrackNotFound) {
				return t, connect.NewError(connect.CodeNotFound, errors.New(s.config.GetMessage("track_not_found")))
			}
			zlog.Error().Err(err).Msgf("api: track lookup failed: id=%s", in.TrackID)
			return t, connect.NewError(connect.CodeUnavailable, errors.New(s.config.GetMessage("default_error")))
		}
		t = *found

	default:
		return t, connect.NewError(connect.CodeInvalidArgument, errors.New("track or track_id is required"))
	}

	if !t.HasPreview() {
		return t, connect.NewError(connect.CodeFailedPrecondition, errors.New(s.config.GetMessage("no_preview")))
	}
	return t, nil
}

func (s *PlayerService) skipSeconds(in *SkipRequest) (float64, error) {
	switch {
	case in.Seconds < 0:
		return 0, connect.NewError(connect.CodeInvalidArgument, errors.New("seconds must not be negative"))
	case in.Seconds == 0:
		return s.player.DefaultSkipSeconds(), nil
	default:
		return in.Seconds, nil
	}
}

func queued(state playback.PlayerState, itemID string) bool {
	for _, item := range state.Queue {
		if item.ID == itemID {
			return true
		}
	}
	return false
}
