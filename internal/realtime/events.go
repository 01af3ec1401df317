package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// Event names. Client-originated events are marked; everything else is
// emitted by the server.
const (
	EventJoinRoom        = "join-room"  // client
	EventLeaveRoom       = "leave-room" // client
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventStatusUpdate    = "status-update"
	EventUptimeUpdated   = "uptime-updated"
	EventIncidentCreated = "incident-created"
	EventIncidentUpdated = "incident-updated"
	EventIncidentEditing = "incident-editing" // client and server
	EventFieldUpdated    = "field-updated"    // client and server
	EventAutoSaved       = "auto-saved"
	EventUserPresence    = "user-presence"
	EventError           = "error"
)

// Error codes carried in error events.
const (
	CodeInvalidRoom  = "INVALID_ROOM"
	CodeAuthRequired = "AUTH_REQUIRED"
	CodeInvalidData  = "INVALID_DATA"
	CodeRateLimited  = "RATE_LIMITED"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RoomRequest is the payload of join-room and leave-room.
type RoomRequest struct {
	Room   string `json:"room"`
	UserID string `json:"user_id"`
}

// Membership is the payload of user-joined and user-left.
type Membership struct {
	Room      string    `json:"room"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdate announces a service status transition.
type StatusUpdate struct {
	ServiceID           string               `json:"service_id"`
	PreviousStatus      models.ServiceStatus `json:"previous_status"`
	CurrentStatus       models.ServiceStatus `json:"current_status"`
	Timestamp           time.Time            `json:"timestamp"`
	AffectedServices    []string             `json:"affected_services"`
	NotificationDelayMs int64                `json:"notification_delay_ms"`
}

// UptimeUpdated announces a change to a day's uptime rollup.
type UptimeUpdated struct {
	ServiceID        string               `json:"service_id"`
	Date             string               `json:"date"`
	UptimePercentage float64              `json:"uptime_percentage"`
	Status           models.ServiceStatus `json:"status"`
	Timestamp        time.Time            `json:"timestamp"`
}

// IncidentCreated announces a new incident.
type IncidentCreated struct {
	Incident         *models.Incident `json:"incident"`
	NotificationType string           `json:"notification_type"`
	Timestamp        time.Time        `json:"timestamp"`
}

// IncidentUpdated announces changes to an existing incident.
type IncidentUpdated struct {
	IncidentID string         `json:"incident_id"`
	Changes    map[string]any `json:"changes"`
	UpdatedBy  string         `json:"updated_by"`
	Timestamp  time.Time      `json:"timestamp"`
}

// IncidentEditing announces that a user started or stopped editing a field.
type IncidentEditing struct {
	IncidentID string `json:"incident_id"`
	Field      string `json:"field"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	IsEditing  bool   `json:"is_editing"`
}

// FieldUpdated carries edited content with a strictly increasing version per
// (incident, field). Receivers treat a lower-or-equal version as stale.
type FieldUpdated struct {
	IncidentID string    `json:"incident_id"`
	Field      string    `json:"field"`
	Content    string    `json:"content"`
	UserID     string    `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
	Version    int64     `json:"version"`
}

// AutoSaved is emitted by the 30s auto-save timer of an editing session.
type AutoSaved struct {
	IncidentID          string    `json:"incident_id"`
	FieldsSaved         []string  `json:"fields_saved"`
	Timestamp           time.Time `json:"timestamp"`
	NextAutoSaveSeconds int       `json:"next_auto_save_seconds"`
}

// PresenceEntry describes one active user in a collaborative room.
type PresenceEntry struct {
	UserID       string    `json:"user_id"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActivity time.Time `json:"last_activity"`
	EditingField *string   `json:"editing_field"`
}

// UserPresence is the payload of user-presence.
type UserPresence struct {
	IncidentID       string          `json:"incident_id"`
	ActiveUsers      []PresenceEntry `json:"active_users"`
	TotalActiveUsers int             `json:"total_active_users"`
}

// ErrorEvent is the payload of error.
type ErrorEvent struct {
	Message           string `json:"message"`
	Code              string `json:"code"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// decodeStrict unmarshals data into v, rejecting unknown fields so malformed
// payload shapes surface as INVALID_DATA instead of silently zeroing.
func decodeStrict(data json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

// DecodeInbound validates and decodes a client-originated payload for the
// given event name. Unknown events and malformed shapes return an error the
// caller surfaces as INVALID_DATA.
func DecodeInbound(event string, data json.RawMessage) (any, error) {
	switch event {
	case EventJoinRoom, EventLeaveRoom:
		var req RoomRequest
		if err := decodeStrict(data, &req); err != nil {
			return nil, err
		}
		if req.Room == "" {
			return nil, fmt.Errorf("missing room")
		}
		return &req, nil
	case EventIncidentEditing:
		var req IncidentEditing
		if err := decodeStrict(data, &req); err != nil {
			return nil, err
		}
		if req.IncidentID == "" || req.Field == "" {
			return nil, fmt.Errorf("missing incident_id or field")
		}
		return &req, nil
	case EventFieldUpdated:
		var req FieldUpdated
		if err := decodeStrict(data, &req); err != nil {
			return nil, err
		}
		if req.IncidentID == "" || req.Field == "" {
			return nil, fmt.Errorf("missing incident_id or field")
		}
		return &req, nil
	default:
		return nil, fmt.Errorf("unknown event %q", event)
	}
}

// Marshal frames an event for the wire.
func Marshal(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
