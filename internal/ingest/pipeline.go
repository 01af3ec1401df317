// Package ingest wires sample ingestion to persistence, rollup-cache
// invalidation and realtime notification. Writes become visible to the next
// aggregation call for the same service before the ingest call returns.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/realtime"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownService is returned when the sample references a service
	// that does not exist.
	ErrUnknownService = errors.New("unknown service")
	// ErrInvalidSample is returned for samples violating field bounds.
	ErrInvalidSample = errors.New("invalid sample")
)

// Store defines the persistence operations the pipeline needs.
type Store interface {
	ServiceExists(ctx context.Context, serviceID string) (bool, error)
	GetUptimeRecord(ctx context.Context, serviceID string, day time.Time) (*models.UptimeRecord, error)
	UpsertUptimeRecord(ctx context.Context, record *models.UptimeRecord) error
	InsertResponseTimeSample(ctx context.Context, sample *models.ResponseTimeSample) error
}

// Invalidator drops cached rollups covering an ingested day.
type Invalidator interface {
	Invalidate(ctx context.Context, serviceID string, day time.Time) int
}

// Broadcaster fans an event out to a room.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

// Pipeline is the ingestion coordinator.
type Pipeline struct {
	store       Store
	cache       Invalidator
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewPipeline creates an ingestion pipeline. cache and broadcaster may be
// nil; ingestion then only persists.
func NewPipeline(store Store, cache Invalidator, broadcaster Broadcaster, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:       store,
		cache:       cache,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "ingest_pipeline").Logger(),
	}
}

// RecordUptime persists a per-day uptime record, invalidates affected
// rollups, and emits uptime-updated plus, on a status transition,
// status-update. Broadcast failures never fail the ingestion.
func (p *Pipeline) RecordUptime(ctx context.Context, record *models.UptimeRecord) error {
	start := time.Now()
	if err := validateUptimeRecord(record); err != nil {
		return err
	}
	exists, err := p.store.ServiceExists(ctx, record.ServiceID)
	if err != nil {
		return fmt.Errorf("check service %s: %w", record.ServiceID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownService, record.ServiceID)
	}

	day := time.Date(record.Date.Year(), record.Date.Month(), record.Date.Day(), 0, 0, 0, 0, time.UTC)
	record.Date = day

	previous, err := p.store.GetUptimeRecord(ctx, record.ServiceID, day)
	if err != nil {
		return fmt.Errorf("get previous uptime record: %w", err)
	}

	if err := p.store.UpsertUptimeRecord(ctx, record); err != nil {
		return fmt.Errorf("upsert uptime record: %w", err)
	}

	if p.cache != nil {
		p.cache.Invalidate(ctx, record.ServiceID, day)
	}

	if p.broadcaster != nil {
		now := time.Now().UTC()
		p.broadcaster.Broadcast(realtime.UptimeRoom(record.ServiceID), realtime.EventUptimeUpdated, realtime.UptimeUpdated{
			ServiceID:        record.ServiceID,
			Date:             day.Format(models.DateFormat),
			UptimePercentage: record.UptimePercentage,
			Status:           record.Status,
			Timestamp:        now,
		})

		previousStatus := models.StatusNoData
		if previous != nil {
			previousStatus = previous.Status
		}
		if previousStatus != record.Status {
			p.broadcaster.Broadcast(realtime.RoomSystemStatus, realtime.EventStatusUpdate, realtime.StatusUpdate{
				ServiceID:           record.ServiceID,
				PreviousStatus:      previousStatus,
				CurrentStatus:       record.Status,
				Timestamp:           now,
				AffectedServices:    []string{record.ServiceID},
				NotificationDelayMs: time.Since(start).Milliseconds(),
			})
		}
	}

	p.logger.Debug().
		Str("service_id", record.ServiceID).
		Str("date", day.Format(models.DateFormat)).
		Str("status", string(record.Status)).
		Float64("uptime", record.UptimePercentage).
		Msg("ingested uptime record")
	return nil
}

// RecordResponseTime persists a latency sample and invalidates rollups
// covering its day.
func (p *Pipeline) RecordResponseTime(ctx context.Context, sample *models.ResponseTimeSample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	exists, err := p.store.ServiceExists(ctx, sample.ServiceID)
	if err != nil {
		return fmt.Errorf("check service %s: %w", sample.ServiceID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownService, sample.ServiceID)
	}

	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	if err := p.store.InsertResponseTimeSample(ctx, sample); err != nil {
		return fmt.Errorf("insert response time sample: %w", err)
	}

	if p.cache != nil {
		p.cache.Invalidate(ctx, sample.ServiceID, sample.Timestamp)
	}
	return nil
}

func validateUptimeRecord(record *models.UptimeRecord) error {
	switch {
	case record.ServiceID == "":
		return fmt.Errorf("%w: missing service_id", ErrInvalidSample)
	case record.Date.IsZero():
		return fmt.Errorf("%w: missing date", ErrInvalidSample)
	case !record.Status.IsValid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSample, record.Status)
	case record.UptimePercentage < 0 || record.UptimePercentage > 100:
		return fmt.Errorf("%w: uptime_percentage out of [0,100]", ErrInvalidSample)
	case record.DowntimeMinutes < 0 || record.DowntimeMinutes > 1440:
		return fmt.Errorf("%w: downtime_minutes out of [0,1440]", ErrInvalidSample)
	case record.IncidentCount < 0:
		return fmt.Errorf("%w: negative incident_count", ErrInvalidSample)
	}
	return nil
}

func validateSample(sample *models.ResponseTimeSample) error {
	switch {
	case sample.ServiceID == "":
		return fmt.Errorf("%w: missing service_id", ErrInvalidSample)
	case sample.Endpoint == "":
		return fmt.Errorf("%w: missing endpoint", ErrInvalidSample)
	case sample.Method == "":
		return fmt.Errorf("%w: missing method", ErrInvalidSample)
	case sample.ResponseTimeMs < 0:
		return fmt.Errorf("%w: negative response_time_ms", ErrInvalidSample)
	}
	return nil
}
