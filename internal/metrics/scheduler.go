package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ServiceLister enumerates the services whose rollups get pre-warmed.
type ServiceLister interface {
	ListServices(ctx context.Context) ([]*models.Service, error)
}

// Scheduler recomputes the default-range rollups for every service shortly
// after the daily rollover so the first dashboard load of the day hits a
// warm cache.
type Scheduler struct {
	aggregator *Aggregator
	services   ServiceLister
	cron       *cron.Cron
	logger     zerolog.Logger
	mu         sync.Mutex
	running    bool
}

// NewScheduler creates a new rollup pre-warm scheduler.
func NewScheduler(aggregator *Aggregator, services ServiceLister, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		services:   services,
		cron:       cron.New(),
		logger:     logger.With().Str("component", "rollup_scheduler").Logger(),
	}
}

// Start begins the nightly pre-warm schedule at 00:15 UTC, after the day's
// final records have been ingested.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("rollup scheduler already running")
	}

	_, err := s.cron.AddFunc("15 0 * * *", s.runPrewarm)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("rollup scheduler started (daily at 00:15 UTC)")
	return nil
}

// Stop stops the scheduler gracefully.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping rollup scheduler")
	return s.cron.Stop()
}

// runPrewarm recomputes the default availability and response-time reports
// for every known service.
func (s *Scheduler) runPrewarm() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	services, err := s.services.ListServices(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list services for pre-warm")
		return
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	rangeStart := end.AddDate(0, 0, -(s.aggregator.Config().DefaultRangeDays - 1))

	warmed := 0
	for _, service := range services {
		if _, err := s.aggregator.ComputeAvailability(ctx, service.ID, AvailabilityQuery{Start: rangeStart, End: end}); err != nil {
			s.logger.Warn().Err(err).Str("service_id", service.ID).Msg("availability pre-warm failed")
			continue
		}
		if _, err := s.aggregator.ComputeResponseTimes(ctx, service.ID, ResponseTimeQuery{Start: rangeStart, End: end}); err != nil {
			s.logger.Warn().Err(err).Str("service_id", service.ID).Msg("response time pre-warm failed")
			continue
		}
		warmed++
	}

	s.logger.Info().
		Int("services", len(services)).
		Int("warmed", warmed).
		Dur("elapsed", time.Since(start)).
		Msg("rollup pre-warm completed")
}

// RunNow triggers an immediate pre-warm (useful for testing).
func (s *Scheduler) RunNow() {
	s.runPrewarm()
}
