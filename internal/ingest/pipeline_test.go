package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/realtime"
	"github.com/rs/zerolog"
)

type mockPipelineStore struct {
	exists       bool
	previous     *models.UptimeRecord
	upserted     *models.UptimeRecord
	inserted     *models.ResponseTimeSample
	upsertErr    error
}

func (m *mockPipelineStore) ServiceExists(_ context.Context, _ string) (bool, error) {
	return m.exists, nil
}

func (m *mockPipelineStore) GetUptimeRecord(_ context.Context, _ string, _ time.Time) (*models.UptimeRecord, error) {
	return m.previous, nil
}

func (m *mockPipelineStore) UpsertUptimeRecord(_ context.Context, record *models.UptimeRecord) error {
	m.upserted = record
	return m.upsertErr
}

func (m *mockPipelineStore) InsertResponseTimeSample(_ context.Context, sample *models.ResponseTimeSample) error {
	m.inserted = sample
	return nil
}

type mockInvalidator struct {
	serviceID string
	day       time.Time
	calls     int
}

func (m *mockInvalidator) Invalidate(_ context.Context, serviceID string, day time.Time) int {
	m.serviceID = serviceID
	m.day = day
	m.calls++
	return 1
}

type broadcastCall struct {
	room    string
	event   string
	payload any
}

type mockBroadcaster struct {
	calls []broadcastCall
}

func (m *mockBroadcaster) Broadcast(room, event string, payload any) {
	m.calls = append(m.calls, broadcastCall{room: room, event: event, payload: payload})
}

func (m *mockBroadcaster) find(event string) *broadcastCall {
	for i := range m.calls {
		if m.calls[i].event == event {
			return &m.calls[i]
		}
	}
	return nil
}

func validRecord() *models.UptimeRecord {
	return &models.UptimeRecord{
		ServiceID:        "api",
		Date:             time.Date(2025, 6, 5, 13, 45, 0, 0, time.UTC),
		Status:           models.StatusOperational,
		UptimePercentage: 99.5,
		DowntimeMinutes:  7,
		IncidentCount:    1,
	}
}

func TestRecordUptime(t *testing.T) {
	ctx := context.Background()

	t.Run("persists, invalidates and broadcasts", func(t *testing.T) {
		store := &mockPipelineStore{exists: true}
		inv := &mockInvalidator{}
		bc := &mockBroadcaster{}
		p := NewPipeline(store, inv, bc, zerolog.Nop())

		if err := p.RecordUptime(ctx, validRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if store.upserted == nil {
			t.Fatal("record not persisted")
		}
		// Timestamp is normalized to the UTC day.
		if !store.upserted.Date.Equal(time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("date not normalized: %v", store.upserted.Date)
		}
		if inv.calls != 1 || inv.serviceID != "api" {
			t.Errorf("expected one invalidation for api, got %+v", inv)
		}

		call := bc.find(realtime.EventUptimeUpdated)
		if call == nil {
			t.Fatal("uptime-updated not broadcast")
		}
		if call.room != realtime.UptimeRoom("api") {
			t.Errorf("expected uptime room, got %s", call.room)
		}
	})

	t.Run("status transition broadcasts status-update", func(t *testing.T) {
		store := &mockPipelineStore{exists: true, previous: &models.UptimeRecord{Status: models.StatusOperational}}
		bc := &mockBroadcaster{}
		p := NewPipeline(store, nil, bc, zerolog.Nop())

		record := validRecord()
		record.Status = models.StatusMajorOutage
		record.UptimePercentage = 40
		if err := p.RecordUptime(ctx, record); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		call := bc.find(realtime.EventStatusUpdate)
		if call == nil {
			t.Fatal("status-update not broadcast")
		}
		if call.room != realtime.RoomSystemStatus {
			t.Errorf("expected system-status room, got %s", call.room)
		}
		update := call.payload.(realtime.StatusUpdate)
		if update.PreviousStatus != models.StatusOperational || update.CurrentStatus != models.StatusMajorOutage {
			t.Errorf("unexpected transition: %+v", update)
		}
		if update.NotificationDelayMs < 0 {
			t.Errorf("negative notification delay: %d", update.NotificationDelayMs)
		}
	})

	t.Run("unchanged status does not broadcast status-update", func(t *testing.T) {
		store := &mockPipelineStore{exists: true, previous: &models.UptimeRecord{Status: models.StatusOperational}}
		bc := &mockBroadcaster{}
		p := NewPipeline(store, nil, bc, zerolog.Nop())

		if err := p.RecordUptime(ctx, validRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if bc.find(realtime.EventStatusUpdate) != nil {
			t.Error("status-update broadcast without a transition")
		}
		if bc.find(realtime.EventUptimeUpdated) == nil {
			t.Error("uptime-updated missing")
		}
	})

	t.Run("first record baselines against no_data", func(t *testing.T) {
		store := &mockPipelineStore{exists: true}
		bc := &mockBroadcaster{}
		p := NewPipeline(store, nil, bc, zerolog.Nop())

		if err := p.RecordUptime(ctx, validRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		call := bc.find(realtime.EventStatusUpdate)
		if call == nil {
			t.Fatal("expected status-update for the first observation")
		}
		update := call.payload.(realtime.StatusUpdate)
		if update.PreviousStatus != models.StatusNoData {
			t.Errorf("expected no_data baseline, got %s", update.PreviousStatus)
		}
	})

	t.Run("unknown service", func(t *testing.T) {
		p := NewPipeline(&mockPipelineStore{exists: false}, nil, nil, zerolog.Nop())
		if err := p.RecordUptime(ctx, validRecord()); !errors.Is(err, ErrUnknownService) {
			t.Errorf("expected ErrUnknownService, got %v", err)
		}
	})

	t.Run("field bounds", func(t *testing.T) {
		p := NewPipeline(&mockPipelineStore{exists: true}, nil, nil, zerolog.Nop())

		cases := []func(*models.UptimeRecord){
			func(r *models.UptimeRecord) { r.UptimePercentage = 101 },
			func(r *models.UptimeRecord) { r.UptimePercentage = -1 },
			func(r *models.UptimeRecord) { r.DowntimeMinutes = 1441 },
			func(r *models.UptimeRecord) { r.DowntimeMinutes = -1 },
			func(r *models.UptimeRecord) { r.IncidentCount = -1 },
			func(r *models.UptimeRecord) { r.Status = "exploded" },
			func(r *models.UptimeRecord) { r.ServiceID = "" },
		}
		for i, mutate := range cases {
			record := validRecord()
			mutate(record)
			if err := p.RecordUptime(ctx, record); !errors.Is(err, ErrInvalidSample) {
				t.Errorf("case %d: expected ErrInvalidSample, got %v", i, err)
			}
		}
	})

	t.Run("broadcast is skipped without a broadcaster", func(t *testing.T) {
		store := &mockPipelineStore{exists: true}
		p := NewPipeline(store, nil, nil, zerolog.Nop())
		if err := p.RecordUptime(ctx, validRecord()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestRecordResponseTime(t *testing.T) {
	ctx := context.Background()

	t.Run("persists and defaults the timestamp", func(t *testing.T) {
		store := &mockPipelineStore{exists: true}
		inv := &mockInvalidator{}
		p := NewPipeline(store, inv, nil, zerolog.Nop())

		sample := &models.ResponseTimeSample{
			ServiceID:      "api",
			Endpoint:       "/api/status",
			Method:         "GET",
			ResponseTimeMs: 42,
			StatusCode:     200,
		}
		if err := p.RecordResponseTime(ctx, sample); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.inserted == nil {
			t.Fatal("sample not persisted")
		}
		if store.inserted.Timestamp.IsZero() {
			t.Error("timestamp not defaulted")
		}
		if inv.calls != 1 {
			t.Errorf("expected cache invalidation, got %d calls", inv.calls)
		}
	})

	t.Run("invalid samples are rejected", func(t *testing.T) {
		p := NewPipeline(&mockPipelineStore{exists: true}, nil, nil, zerolog.Nop())

		bad := []*models.ResponseTimeSample{
			{Endpoint: "/a", Method: "GET"},
			{ServiceID: "api", Method: "GET"},
			{ServiceID: "api", Endpoint: "/a"},
			{ServiceID: "api", Endpoint: "/a", Method: "GET", ResponseTimeMs: -5},
		}
		for i, sample := range bad {
			if err := p.RecordResponseTime(ctx, sample); !errors.Is(err, ErrInvalidSample) {
				t.Errorf("case %d: expected ErrInvalidSample, got %v", i, err)
			}
		}
	})

	t.Run("unknown service", func(t *testing.T) {
		p := NewPipeline(&mockPipelineStore{exists: false}, nil, nil, zerolog.Nop())
		sample := &models.ResponseTimeSample{ServiceID: "ghost", Endpoint: "/a", Method: "GET"}
		if err := p.RecordResponseTime(ctx, sample); !errors.Is(err, ErrUnknownService) {
			t.Errorf("expected ErrUnknownService, got %v", err)
		}
	})
}
