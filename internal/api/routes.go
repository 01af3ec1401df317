// Package api provides the HTTP API for the Pulseboard server.
package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulseboard/pulseboard/internal/api/handlers"
	"github.com/pulseboard/pulseboard/internal/api/middleware"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/db"
	"github.com/pulseboard/pulseboard/internal/ingest"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/realtime"
	"github.com/rs/zerolog"
)

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg config.ServerConfig,
	database *db.DB,
	aggregator *metrics.Aggregator,
	pipeline *ingest.Pipeline,
	hub *realtime.Hub,
	logger zerolog.Logger,
) (*Router, error) {
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.CORSOrigins, cfg.Environment))
	r.Engine.Use(middleware.Identify())

	// Rate limiting
	if cfg.APIRateLimit != "" {
		requests, period, err := parseRateLimit(cfg.APIRateLimit)
		if err != nil {
			return nil, err
		}
		rateLimiter, err := middleware.NewRateLimiter(requests, period)
		if err != nil {
			return nil, err
		}
		r.Engine.Use(rateLimiter)
	}

	// Health check endpoint (no auth required)
	healthHandler := handlers.NewHealthHandler(database)
	healthHandler.RegisterRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	apiV1 := r.Engine.Group("/api/v1")

	slaHandler := handlers.NewSLAHandler(aggregator, logger)
	slaHandler.RegisterRoutes(apiV1)

	uptimeHandler := handlers.NewUptimeHandler(aggregator, logger)
	uptimeHandler.RegisterRoutes(apiV1)

	incidentHandler := handlers.NewIncidentHandler(database, hub, logger)
	incidentHandler.RegisterRoutes(apiV1)

	sampleHandler := handlers.NewSampleHandler(pipeline, logger)
	sampleHandler.RegisterRoutes(apiV1)

	wsHandler := handlers.NewWSHandler(hub)
	wsHandler.RegisterRoutes(apiV1)

	return r, nil
}

// parseRateLimit splits "<requests>/<period>" (e.g. "300/1m") into its parts.
func parseRateLimit(spec string) (int64, string, error) {
	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid rate limit %q, want <requests>/<period>", spec)
	}
	requests, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || requests <= 0 {
		return 0, "", fmt.Errorf("invalid rate limit requests %q", parts[0])
	}
	return requests, parts[1], nil
}
