// Package main provides the player control CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/musify/internal/api/connect"
	"github.com/osa030/musify/internal/app/playback"
	"github.com/osa030/musify/internal/app/watch"
	"github.com/osa030/musify/internal/domain/track"
	"github.com/osa030/musify/internal/infra/config"
)

var (
	app     = kingpin.New("musify-playercli", "musify player client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Control token (or set CONTROL_TOKEN env)").Envar("CONTROL_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("10s").Duration()

	stateCmd = app.Command("state", "Show the player state").Default()

	searchCmd   = app.Command("search", "Search the catalog")
	searchQuery = searchCmd.Arg("query", "Search terms").Required().Strings()
	searchLimit = searchCmd.Flag("limit", "Maximum results").Default("10").Int()
	searchIndex = searchCmd.Flag("index", "Result offset").Default("0").Int()

	playCmd   = app.Command("play", "Play a track now")
	playTrack = playCmd.Arg("track-id", "Track reference (deezer:123, spotify:abc or bare ID)").Required().String()

	enqueueCmd   = app.Command("enqueue", "Queue a track, playing it when idle")
	enqueueTrack = enqueueCmd.Arg("track-id", "Track reference").Required().String()

	addCmd   = app.Command("add", "Append a track to the queue")
	addTrack = addCmd.Arg("track-id", "Track reference").Required().String()

	toggleCmd = app.Command("toggle", "Toggle play/pause")
	pauseCmd  = app.Command("pause", "Pause playback")

	forwardCmd     = app.Command("forward", "Skip forward")
	forwardSeconds = forwardCmd.Arg("seconds", "Seconds (default: server setting)").Float64()

	backCmd     = app.Command("back", "Skip backward")
	backSeconds = backCmd.Arg("seconds", "Seconds (default: server setting)").Float64()

	seekCmd      = app.Command("seek", "Seek to a position")
	seekPosition = seekCmd.Arg("position", "Position in seconds").Required().Float64()

	nextCmd = app.Command("next", "Play the next queued track")
	prevCmd = app.Command("prev", "Restart the current track")

	volumeCmd   = app.Command("volume", "Set the volume")
	volumeLevel = volumeCmd.Arg("level", "Volume between 0 and 1").Required().Float64()

	clearCmd = app.Command("clear", "Clear the queue")

	lyricsCmd    = app.Command("lyrics", "Show lyrics (current track when no arguments)")
	lyricsArtist = lyricsCmd.Arg("artist", "Artist name").String()
	lyricsTitle  = lyricsCmd.Arg("title", "Track title").String()

	watchCmd      = app.Command("watch", "Follow the player state")
	watchInterval = watchCmd.Flag("poll-interval", "Polling interval backing up the event stream (default: watch.poll_interval_ms)").Duration()
	watchConfig   = watchCmd.Flag("config", "Path to config file").Default("config/server.yaml").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Create client
	client := apiconnect.NewClient(http.DefaultClient, *server, *token)

	if command == watchCmd.FullCommand() {
		watchState(client, pollInterval(*watchInterval, *watchConfig))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// Execute command
	var err error
	switch command {
	case stateCmd.FullCommand():
		err = showState(ctx, client)
	case searchCmd.FullCommand():
		err = search(ctx, client, strings.Join(*searchQuery, " "), *searchLimit, *searchIndex)
	case playCmd.FullCommand():
		err = printMessage(client.PlayTrack(ctx, *playTrack))
	case enqueueCmd.FullCommand():
		err = printMessage(client.EnqueueTrack(ctx, *enqueueTrack))
	case addCmd.FullCommand():
		err = printMessage(client.ForceEnqueueTrack(ctx, *addTrack))
	case toggleCmd.FullCommand():
		err = printMessage(client.TogglePlayPause(ctx))
	case pauseCmd.FullCommand():
		var resp *apiconnect.PauseResponse
		if resp, err = client.Pause(ctx); err == nil {
			if resp.Paused {
				fmt.Println("Paused")
			} else {
				fmt.Println("Already paused")
			}
		}
	case forwardCmd.FullCommand():
		err = printPosition(client.SkipForward(ctx, *forwardSeconds))
	case backCmd.FullCommand():
		err = printPosition(client.SkipBackward(ctx, *backSeconds))
	case seekCmd.FullCommand():
		err = printPosition(client.SeekTo(ctx, *seekPosition))
	case nextCmd.FullCommand():
		err = printMessage(client.PlayNextTrack(ctx))
	case prevCmd.FullCommand():
		err = printMessage(client.PlayPreviousTrack(ctx))
	case volumeCmd.FullCommand():
		var resp *apiconnect.VolumeResponse
		if resp, err = client.SetVolume(ctx, *volumeLevel); err == nil {
			fmt.Printf("Volume: %.0f%%\n", resp.Volume*100)
		}
	case clearCmd.FullCommand():
		err = printMessage(client.ClearQueue(ctx))
	case lyricsCmd.FullCommand():
		var resp *apiconnect.LyricsResponse
		if resp, err = client.Lyrics(ctx, *lyricsArtist, *lyricsTitle); err == nil {
			fmt.Printf("%s - %s\n\n%s\n", resp.Artist, resp.Title, resp.Lyrics)
		}
	}

	if err != nil {
		fmt.Printf("Error: %s\n", describeError(err))
		os.Exit(1)
	}
}

func printMessage(resp any, err error) error {
	if err != nil {
		return err
	}
	switch r := resp.(type) {
	case *apiconnect.PlayTrackResponse:
		fmt.Println(r.Message)
	case *apiconnect.EnqueueTrackResponse:
		fmt.Printf("%s (queue: %d)\n", r.Message, r.QueueLength)
	case *apiconnect.TogglePlayPauseResponse:
		fmt.Println(r.Message)
		if r.Playing {
			fmt.Println("Playing")
		}
	case *apiconnect.MessageResponse:
		fmt.Println(r.Message)
	}
	return nil
}

func printPosition(resp *apiconnect.PositionResponse, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("Position: %s\n", formatSeconds(resp.Position))
	return nil
}

func showState(ctx context.Context, client *apiconnect.Client) error {
	resp, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	printState(resp.State)
	return nil
}

func search(ctx context.Context, client *apiconnect.Client, query string, limit, index int) error {
	res, err := client.Search(ctx, query, limit, index)
	if err != nil {
		return err
	}
	if len(res.Data) == 0 {
		fmt.Println("No playable tracks found")
		return nil
	}
	fmt.Printf("%d of %d results from %s:\n", len(res.Data), res.Total, res.Source)
	for _, t := range res.Data {
		fmt.Printf("  %-28s %s [%s]\n", t.Ref(), t.DisplayName(), formatSeconds(t.Seconds()))
	}
	return nil
}

func watchState(client *apiconnect.Client, interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopped watching.")
		cancel()
	}()

	fmt.Println("Watching player state. Press Ctrl+C to exit.")

	w := watch.New(client.PollState, client.SubscribeStates, interval)
	var lastTrack string
	for state := range w.Run(ctx) {
		ref := ""
		if state.CurrentTrack != nil {
			ref = state.CurrentTrack.Ref()
		}
		if ref != lastTrack {
			fmt.Println()
			printState(state)
			lastTrack = ref
			continue
		}
		fmt.Printf("\r%s %s / %s   ", statusIcon(state), formatSeconds(state.CurrentTime), trackLength(state.CurrentTrack))
	}
}

// pollInterval prefers the flag, then the config file, then the default.
func pollInterval(flag time.Duration, configPath string) time.Duration {
	if flag > 0 {
		return flag
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return watch.DefaultPollInterval
	}
	return time.Duration(cfg.Watch.PollIntervalMs) * time.Millisecond
}

func printState(s playback.PlayerState) {
	fmt.Printf("Status: %s %s\n", statusIcon(s), s.Status())
	if s.CurrentTrack != nil {
		t := s.CurrentTrack
		fmt.Printf("Track:  %s (%s)\n", t.DisplayName(), t.Ref())
		if t.Album.Title != "" {
			fmt.Printf("Album:  %s\n", t.Album.Title)
		}
		fmt.Printf("Time:   %s / %s\n", formatSeconds(s.CurrentTime), trackLength(t))
	}
	fmt.Printf("Volume: %.0f%%\n", s.Volume*100)
	if len(s.Queue) == 0 {
		fmt.Println("Queue:  (empty)")
		return
	}
	fmt.Printf("Queue:  %d track(s)\n", len(s.Queue))
	for i, item := range s.Queue {
		fmt.Printf("  %2d. %s\n", i+1, item.Track.DisplayName())
	}
}

func statusIcon(s playback.PlayerState) string {
	switch s.Status() {
	case playback.StatePlaying:
		return "▶"
	case playback.StatePaused:
		return "⏸"
	default:
		return "⏹"
	}
}

func trackLength(t *track.Track) string {
	if t == nil || t.Duration <= 0 {
		return "--:--"
	}
	return formatSeconds(t.Seconds())
}

func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func describeError(err error) string {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return fmt.Sprintf("%s (%s)", cerr.Message(), cerr.Code())
	}
	return err.Error()
}
