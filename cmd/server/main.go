// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/musify/internal/api/connect"
	"github.com/osa030/musify/internal/app/catalog"
	"github.com/osa030/musify/internal/app/notification"
	"github.com/osa030/musify/internal/app/playback"
	"github.com/osa030/musify/internal/infra/audio"
	"github.com/osa030/musify/internal/infra/config"
	"github.com/osa030/musify/internal/infra/logger"
	"github.com/osa030/musify/internal/infra/lyrics"
	"github.com/osa030/musify/internal/infra/store"
)

var (
	app        = kingpin.New("musify-server", "musify player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		printConfig(cfg)
		return
	}

	// Switch to a rotating log file once rotation settings are known
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
		loggerConfig.MaxSizeMB = cfg.Log.MaxSizeMB
		loggerConfig.MaxBackups = cfg.Log.MaxBackups
		loggerConfig.MaxAgeDays = cfg.Log.MaxAgeDays
		loggerConfig.Compress = cfg.Log.Compress
		if err := logger.Init(loggerConfig); err != nil {
			zlog.Fatal().Msgf("Failed to initialize log file: %v", err)
		}
	}
	defer func() { _ = logger.Close() }()

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		_ = logger.Close()
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Open state store
	stateStore, err := store.NewFromConfig(ctx, cfg.Store)
	if err != nil {
		return errors.Wrap(err, "failed to open state store")
	}
	defer func() {
		if err := stateStore.Close(); err != nil {
			zlog.Error().Msgf("Failed to close state store: %v", err)
		}
	}()

	// Create catalog and lyrics clients
	catalogChain, err := catalog.NewChainFromConfig(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to create catalog")
	}
	lyricsClient := lyrics.New(lyrics.Config{
		BaseURL: cfg.Lyrics.BaseURL,
		Timeout: time.Duration(cfg.Lyrics.TimeoutMs) * time.Millisecond,
	})

	// Create audio output (one per process)
	output := audio.Shared(audio.Config{
		TickInterval:  cfg.Player.TickInterval(),
		PreviewLength: cfg.Player.PreviewLengthSec,
		Probe:         cfg.Player.ProbeEnabled(),
		ProbeTimeout:  time.Duration(cfg.Player.ProbeTimeoutMs) * time.Millisecond,
	})
	defer output.Close()

	// Create notifier and controller
	notifier := notification.NewNotifier()
	defer notifier.Close()
	notifier.Subscribe(playback.EventTrackChange, func(ev playback.Event) {
		if t := ev.State.CurrentTrack; t != nil {
			zlog.Info().Msgf("Now playing: %s (%s)", t.DisplayName(), t.Ref())
		} else {
			zlog.Info().Msg("Playback stopped, queue is empty")
		}
	})

	controller := playback.NewController(ctx, playback.Config{
		DefaultSkipSeconds: cfg.Player.DefaultSkipSec,
		RestartThreshold:   cfg.Player.RestartThresholdSec,
		PersistTimeout:     time.Duration(cfg.Player.PersistTimeoutMs) * time.Millisecond,
	}, output, stateStore, notifier)

	// Create RPC service
	playerService := apiconnect.NewPlayerService(controller, catalogChain, lyricsClient, notifier, cfg)

	// Create HTTP mux
	mux := http.NewServeMux()
	playerPath, playerHandler := playerService.Handler(
		connect.WithInterceptors(apiconnect.NewControlTokenInterceptor(cfg.Server.ControlToken)),
	)
	mux.Handle(playerPath, playerHandler)
	if cfg.Server.ControlToken == "" {
		zlog.Warn().Msg("No control token configured, the player API is open to anyone who can reach it")
	}

	// Create server with h2c (HTTP/2 cleartext) support
	serverAddr := cfg.Server.Addr
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", serverAddr)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		controller.Close()
		return errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// End event streams first so Shutdown does not wait on them
	playerService.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	// Pause and write the final state before the store closes
	controller.Close()

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printConfig prints the effective configuration summary.
func printConfig(cfg *config.Config) {
	fmt.Println("Configuration OK")
	fmt.Printf("  %-16s %s\n", "server.addr", cfg.Server.Addr)
	fmt.Printf("  %-16s %s\n", "store.type", cfg.Store.Type)
	for i, s := range cfg.Catalog.Sources {
		fmt.Printf("  %-16s %d: %s (%s)\n", "catalog.source", i+1, s.DisplayName, s.Type)
	}
	fmt.Printf("  %-16s %.0fs\n", "player.skip", cfg.Player.DefaultSkipSec)
	fmt.Printf("  %-16s %t\n", "player.probe", cfg.Player.ProbeEnabled())
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
