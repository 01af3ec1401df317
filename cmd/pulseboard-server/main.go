// Package main is the entrypoint for the Pulseboard server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/cache"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/db"
	"github.com/pulseboard/pulseboard/internal/ingest"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/realtime"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Pulseboard server")

	// Load configuration
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	if cfg.DatabaseURL == "" {
		logger.Error().Msg("DATABASE_URL environment variable is required")
		return 1
	}

	// Connect to database
	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run database migrations")
		return 1
	}

	// Rollup cache: Redis when configured, in-process otherwise
	var rollupCache metrics.RollupCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
			return 1
		}
		defer client.Close()
		rollupCache = cache.NewRedis(client, cfg.CacheTTL(), logger)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis rollup cache")
	} else {
		rollupCache = cache.NewMemory(cfg.CacheTTL(), logger)
		logger.Info().Msg("Using in-memory rollup cache")
	}

	// Metrics aggregator
	aggCfg := metrics.DefaultConfig()
	aggCfg.DefaultSLATarget = cfg.SLADefaultTarget
	aggCfg.DefaultResponseTimeTargetMs = cfg.ResponseTimeTargetMs
	aggregator := metrics.NewAggregator(database, rollupCache, aggCfg, logger)

	// Realtime hub
	hubCfg := realtime.DefaultConfig()
	hubCfg.ActionsPerSecond = cfg.WSActionsPerSecond
	hubCfg.SendBufferSize = cfg.WSSendBufferSize
	hub := realtime.NewHub(hubCfg, logger)
	hub.Start()
	defer hub.Stop()

	// Ingestion pipeline
	pipeline := ingest.NewPipeline(database, rollupCache, hub, logger)

	// Router
	router, err := api.NewRouter(cfg, database, aggregator, pipeline, hub, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Start rollup pre-warm scheduler
	scheduler := metrics.NewScheduler(aggregator, database, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start rollup scheduler")
	}
	defer scheduler.Stop()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped")
	return 0
}
