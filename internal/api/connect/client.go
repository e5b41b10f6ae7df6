package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/musify/internal/app/catalog"
	"github.com/osa030/musify/internal/app/playback"
)

// Client is a typed PlayerService client.
type Client struct {
	httpClient connect.HTTPClient
	baseURL    string
	token      string
	opts       []connect.ClientOption
}

// NewClient creates a client for the server at baseURL. token is sent as the
// control token when non-empty.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		opts:       append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *Client, procedure string, msg *Req) (*Res, error) {
	client := connect.NewClient[Req, Res](c.httpClient, c.baseURL+procedure, c.opts...)
	resp, err := client.CallUnary(ctx, newRequestWithToken(c.token, msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func newRequestWithToken[T any](token string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set(ControlTokenHeader, token)
	}
	return req
}

// GetState fetches the current state.
func (c *Client) GetState(ctx context.Context) (*StateResponse, error) {
	return call[Empty, StateResponse](ctx, c, GetStateProcedure, &Empty{})
}

// PlayTrack plays a track by catalog reference.
func (c *Client) PlayTrack(ctx context.Context, trackID string) (*PlayTrackResponse, error) {
	return call[TrackRequest, PlayTrackResponse](ctx, c, PlayTrackProcedure, &TrackRequest{TrackID: trackID})
}

// EnqueueTrack queues a track by catalog reference, playing it when idle.
func (c *Client) EnqueueTrack(ctx context.Context, trackID string) (*EnqueueTrackResponse, error) {
	return call[TrackRequest, EnqueueTrackResponse](ctx, c, EnqueueTrackProcedure, &TrackRequest{TrackID: trackID})
}

// ForceEnqueueTrack appends a track to the queue.
func (c *Client) ForceEnqueueTrack(ctx context.Context, trackID string) (*EnqueueTrackResponse, error) {
	return call[TrackRequest, EnqueueTrackResponse](ctx, c, ForceEnqueueTrackProcedure, &TrackRequest{TrackID: trackID})
}

// TogglePlayPause flips between playing and paused.
func (c *Client) TogglePlayPause(ctx context.Context) (*TogglePlayPauseResponse, error) {
	return call[Empty, TogglePlayPauseResponse](ctx, c, TogglePlayPauseProcedure, &Empty{})
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context) (*PauseResponse, error) {
	return call[Empty, PauseResponse](ctx, c, PauseProcedure, &Empty{})
}

// SkipForward moves forward by seconds; zero uses the server default.
func (c *Client) SkipForward(ctx context.Context, seconds float64) (*PositionResponse, error) {
	return call[SkipRequest, PositionResponse](ctx, c, SkipForwardProcedure, &SkipRequest{Seconds: seconds})
}

// SkipBackward moves backward by seconds; zero uses the server default.
func (c *Client) SkipBackward(ctx context.Context, seconds float64) (*PositionResponse, error) {
	return call[SkipRequest, PositionResponse](ctx, c, SkipBackwardProcedure, &SkipRequest{Seconds: seconds})
}

// SeekTo moves to an absolute position.
func (c *Client) SeekTo(ctx context.Context, position float64) (*PositionResponse, error) {
	return call[SeekToRequest, PositionResponse](ctx, c, SeekToProcedure, &SeekToRequest{Position: position})
}

// PlayNextTrack plays the head of the queue.
func (c *Client) PlayNextTrack(ctx context.Context) (*PlayTrackResponse, error) {
	return call[Empty, PlayTrackResponse](ctx, c, PlayNextTrackProcedure, &Empty{})
}

// PlayPreviousTrack restarts the current track.
func (c *Client) PlayPreviousTrack(ctx context.Context) (*MessageResponse, error) {
	return call[Empty, MessageResponse](ctx, c, PlayPreviousTrackProcedure, &Empty{})
}

// SetVolume sets the volume.
func (c *Client) SetVolume(ctx context.Context, volume float64) (*VolumeResponse, error) {
	return call[SetVolumeRequest, VolumeResponse](ctx, c, SetVolumeProcedure, &SetVolumeRequest{Volume: volume})
}

// ClearQueue empties the queue.
func (c *Client) ClearQueue(ctx context.Context) (*MessageResponse, error) {
	return call[Empty, MessageResponse](ctx, c, ClearQueueProcedure, &Empty{})
}

// Search queries the catalog.
func (c *Client) Search(ctx context.Context, query string, limit, index int) (*catalog.SearchResult, error) {
	return call[SearchRequest, catalog.SearchResult](ctx, c, SearchProcedure, &SearchRequest{Query: query, Limit: limit, Index: index})
}

// Lyrics fetches lyrics; empty artist and title mean the current track.
func (c *Client) Lyrics(ctx context.Context, artist, title string) (*LyricsResponse, error) {
	return call[LyricsRequest, LyricsResponse](ctx, c, LyricsProcedure, &LyricsRequest{Artist: artist, Title: title})
}

// Subscribe opens an event stream. The channel closes when the stream ends;
// the returned function reports why.
func (c *Client) Subscribe(ctx context.Context, kinds ...string) (<-chan EventMessage, func() error, error) {
	client := connect.NewClient[SubscribeRequest, EventMessage](c.httpClient, c.baseURL+SubscribeProcedure, c.opts...)
	stream, err := client.CallServerStream(ctx, newRequestWithToken(c.token, &SubscribeRequest{Kinds: kinds}))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open event stream")
	}

	out := make(chan EventMessage)
	var streamErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		defer stream.Close()
		for stream.Receive() {
			select {
			case out <- *stream.Msg():
			case <-ctx.Done():
				return
			}
		}
		streamErr = stream.Err()
	}()

	wait := func() error {
		<-done
		return streamErr
	}
	return out, wait, nil
}

// SubscribeStates adapts Subscribe to a stream of state snapshots.
func (c *Client) SubscribeStates(ctx context.Context) (<-chan playback.PlayerState, error) {
	events, _, err := c.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan playback.PlayerState)
	go func() {
		defer close(out)
		for ev := range events {
			select {
			case out <- ev.State:
			case <-ctx.Done():
				// Let the receive loop observe ctx and exit.
				for range events {
				}
				return
			}
		}
	}()
	return out, nil
}

// PollState fetches the current state snapshot.
func (c *Client) PollState(ctx context.Context) (playback.PlayerState, error) {
	resp, err := c.GetState(ctx)
	if err != nil {
		return playback.PlayerState{}, err
	}
	return resp.State, nil
}
