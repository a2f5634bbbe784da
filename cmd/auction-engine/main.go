package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"livein-auction-engine/internal/adapters/broadcaster"
	"livein-auction-engine/internal/adapters/dispatcher"
	"livein-auction-engine/internal/adapters/redis"
	"livein-auction-engine/internal/adapters/ws"
	"livein-auction-engine/internal/app"
	"livein-auction-engine/internal/config"
	"livein-auction-engine/internal/ports/outbound"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().Msg("Starting LiveIn Auction Engine...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Pick the broadcast backend. Memory keeps everything in-process,
	// Redis lets multiple engine instances share one delta stream.
	var deltaDispatcher outbound.Dispatcher
	var redisDispatcher *broadcaster.RedisDispatcher

	switch cfg.Engine.Backend {
	case "redis":
		redisClient := redis.NewClient(cfg)
		if err := redis.PingRedis(redisClient); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		log.Info().Msg("Redis connection established")

		redisDispatcher = broadcaster.NewRedisDispatcher(broadcaster.RedisDispatcherParams{
			RedisClient: redisClient,
			Logger:      log.Logger,
		})
		deltaDispatcher = redisDispatcher
		log.Info().Msg("Redis dispatcher initialized")

	default:
		deltaDispatcher = dispatcher.NewMemoryDispatcher(dispatcher.MemoryDispatcherParams{
			Logger: log.Logger,
		})
		log.Info().Msg("In-memory dispatcher initialized")
	}

	engine := app.NewEngine(app.EngineParams{
		Dispatcher: deltaDispatcher,
		Defaults: app.Defaults{
			ClosingThreshold:   cfg.Engine.ClosingThreshold,
			ExtensionWindow:    cfg.Engine.ExtensionWindow,
			ExtensionDuration:  cfg.Engine.ExtensionDuration,
			MaxExtensions:      cfg.Engine.MaxExtensions,
			IdleNudgeWindow:    cfg.Engine.IdleNudgeWindow,
			NudgeCheckInterval: cfg.Engine.NudgeCheckInterval,
			SubmitTimeout:      cfg.Engine.SubmitTimeout,
			SnapshotHistory:    cfg.Engine.SnapshotHistory,
		},
		Logger: log.Logger,
	})

	log.Info().Msg("Auction engine initialized")

	wsServer := ws.NewServer(ws.ServerParams{
		Config:     cfg,
		Engine:     engine,
		Dispatcher: deltaDispatcher,
		Logger:     log.Logger,
	})

	log.Info().Msg("WebSocket server initialized")

	// Start WebSocket server
	go func() {
		if err := wsServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start WebSocket server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop WebSocket server first so no new commands arrive
	if err := wsServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping WebSocket server")
	}

	// Stop session workers
	engine.Shutdown()
	log.Info().Msg("Auction engine stopped")

	if redisDispatcher != nil {
		if err := redisDispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing Redis dispatcher")
		}
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		// JSON format (default)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global logger
	zerolog.DefaultContextLogger = &log.Logger
}
