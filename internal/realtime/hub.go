// Package realtime provides room-scoped WebSocket fan-out with presence
// tracking, per-connection rate limiting and collaborative-edit versioning.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pulseboard/pulseboard/internal/telemetry"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidRoom is returned when a room name matches no known pattern.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrAuthRequired is returned when a room action lacks a resolved user.
	ErrAuthRequired = errors.New("authentication required")
)

// RateLimitedError is returned when a connection exceeds its action window.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

// Config holds hub tuning parameters.
type Config struct {
	// PingInterval is how often to ping clients.
	PingInterval time.Duration
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration
	// ReadTimeout is the read deadline, refreshed on pong.
	ReadTimeout time.Duration
	// MaxMessageSize caps inbound message size.
	MaxMessageSize int64
	// SendBufferSize is the outbound buffer per client. A full buffer
	// drops the event for that client rather than blocking the room.
	SendBufferSize int
	// ActionsPerSecond is the sliding-window limit per (connection, action).
	ActionsPerSecond int64
	// AutoSaveInterval is the auto-save period for editing sessions.
	AutoSaveInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      60 * time.Second,
		MaxMessageSize:   32 * 1024,
		SendBufferSize:   256,
		ActionsPerSecond: 5,
		AutoSaveInterval: 30 * time.Second,
	}
}

// member is one client's membership in one room, with presence metadata.
type member struct {
	client       *Client
	joinedAt     time.Time
	lastActivity time.Time
	editingField string
}

// Hub is the room registry and notification broadcaster. Rooms are
// ephemeral: created on first join, destroyed on last leave.
type Hub struct {
	cfg      Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	limiter  *ActionLimiter
	versions *EditTracker

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	rooms   map[string]map[uuid.UUID]*member

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewHub creates a hub with the given configuration.
func NewHub(cfg Config, logger zerolog.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger.With().Str("component", "realtime_hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		limiter:    NewActionLimiter(cfg.ActionsPerSecond, time.Second),
		versions:   NewEditTracker(),
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[uuid.UUID]*member),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Start begins client lifecycle processing.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
	h.logger.Info().Msg("realtime hub started")
}

// Stop closes all client connections and waits for the loop to exit.
func (h *Hub) Stop() {
	close(h.done)
	h.wg.Wait()
	h.logger.Info().Msg("realtime hub stopped")
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			h.closeAllClients()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	telemetry.ConnectedClients.Inc()
	h.logger.Debug().
		Str("client_id", client.ID.String()).
		Str("user_id", client.UserID).
		Msg("client connected")
}

// removeClient tears down a client: leaves every room (with user-left and
// presence events), stops auto-save sessions, signals writePump to exit.
// The send channel is never closed; a Broadcast racing the disconnect must
// not be able to send on a closed channel.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)

	var left []string
	for room, members := range h.rooms {
		if _, ok := members[client.ID]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
			left = append(left, room)
		}
	}
	h.mu.Unlock()

	client.stopAllSessions()
	close(client.done)
	telemetry.ConnectedClients.Dec()

	now := time.Now().UTC()
	for _, room := range left {
		telemetry.RoomMembers.WithLabelValues(room).Dec()
		h.Broadcast(room, EventUserLeft, Membership{Room: room, UserID: client.UserID, Timestamp: now})
		h.emitPresence(room)
	}

	h.logger.Debug().
		Str("client_id", client.ID.String()).
		Str("user_id", client.UserID).
		Int("rooms_left", len(left)).
		Msg("client disconnected")
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*Client)
	h.rooms = make(map[string]map[uuid.UUID]*member)
	h.mu.Unlock()

	for _, client := range clients {
		client.stopAllSessions()
		close(client.done)
		telemetry.ConnectedClients.Dec()
	}
}

// JoinRoom adds a connection to a room. It validates the room name, requires
// a resolved user, applies the join rate limit, and emits user-joined to the
// room (the joiner included).
func (h *Hub) JoinRoom(ctx context.Context, client *Client, room string) error {
	if !ValidRoom(room) {
		return fmt.Errorf("%w: %s", ErrInvalidRoom, room)
	}
	if client.UserID == "" {
		return ErrAuthRequired
	}
	if retry, ok := h.limiter.Allow(ctx, client.ID, EventJoinRoom); !ok {
		return &RateLimitedError{RetryAfterSeconds: retry}
	}

	now := time.Now().UTC()
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*member)
		h.rooms[room] = members
	}
	if _, already := members[client.ID]; already {
		h.mu.Unlock()
		return nil
	}
	members[client.ID] = &member{client: client, joinedAt: now, lastActivity: now}
	h.mu.Unlock()

	telemetry.RoomMembers.WithLabelValues(room).Inc()
	h.Broadcast(room, EventUserJoined, Membership{Room: room, UserID: client.UserID, Timestamp: now})
	h.emitPresence(room)

	h.logger.Debug().
		Str("client_id", client.ID.String()).
		Str("user_id", client.UserID).
		Str("room", room).
		Msg("joined room")
	return nil
}

// LeaveRoom removes a connection from a room and emits user-left. Leaving a
// room the connection is not a member of is a no-op.
func (h *Hub) LeaveRoom(client *Client, room string) error {
	if !ValidRoom(room) {
		return fmt.Errorf("%w: %s", ErrInvalidRoom, room)
	}

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	if _, isMember := members[client.ID]; !isMember {
		h.mu.Unlock()
		return nil
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	if id := incidentIDFromRoom(room); id != "" {
		client.stopSession(id)
	}

	telemetry.RoomMembers.WithLabelValues(room).Dec()
	h.Broadcast(room, EventUserLeft, Membership{Room: room, UserID: client.UserID, Timestamp: time.Now().UTC()})
	h.emitPresence(room)
	return nil
}

// Broadcast delivers an event to every current member of a room. Enqueue is
// non-blocking per connection: a slow client loses the event instead of
// stalling the room.
func (h *Hub) Broadcast(room, event string, payload any) {
	start := time.Now()
	frame, err := Marshal(event, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to marshal broadcast")
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, m := range h.rooms[room] {
		members = append(members, m.client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		select {
		case client.send <- frame:
		default:
			telemetry.DroppedEvents.WithLabelValues(event).Inc()
			h.logger.Warn().
				Str("client_id", client.ID.String()).
				Str("event", event).
				Str("room", room).
				Msg("client send buffer full, dropping event")
		}
	}
	telemetry.BroadcastEnqueueSeconds.WithLabelValues(event).Observe(time.Since(start).Seconds())
}

// Presence returns the current members of a room with activity and editing
// metadata.
func (h *Hub) Presence(room string) UserPresence {
	h.mu.RLock()
	defer h.mu.RUnlock()

	presence := UserPresence{
		IncidentID:  incidentIDFromRoom(room),
		ActiveUsers: []PresenceEntry{},
	}
	for _, m := range h.rooms[room] {
		entry := PresenceEntry{
			UserID:       m.client.UserID,
			JoinedAt:     m.joinedAt,
			LastActivity: m.lastActivity,
		}
		if m.editingField != "" {
			field := m.editingField
			entry.EditingField = &field
		}
		presence.ActiveUsers = append(presence.ActiveUsers, entry)
	}
	presence.TotalActiveUsers = len(presence.ActiveUsers)
	return presence
}

// emitPresence broadcasts the presence list of collaborative rooms.
func (h *Hub) emitPresence(room string) {
	if incidentIDFromRoom(room) == "" {
		return
	}
	h.Broadcast(room, EventUserPresence, h.Presence(room))
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleEditing processes an incident-editing announcement: presence editing
// state, auto-save session lifecycle, and rebroadcast to the incident room.
func (h *Hub) handleEditing(ctx context.Context, client *Client, req *IncidentEditing) {
	if retry, ok := h.limiter.Allow(ctx, client.ID, EventIncidentEditing); !ok {
		client.sendError(CodeRateLimited, "too many editing updates", retry)
		return
	}

	room := IncidentRoom(req.IncidentID)
	now := time.Now().UTC()

	h.mu.Lock()
	m, isMember := h.memberLocked(room, client.ID)
	if isMember {
		m.lastActivity = now
		if req.IsEditing {
			m.editingField = req.Field
		} else if m.editingField == req.Field {
			m.editingField = ""
		}
	}
	h.mu.Unlock()
	if !isMember {
		client.sendError(CodeInvalidData, "not a member of "+room, 0)
		return
	}

	if req.IsEditing {
		session := client.session(req.IncidentID, h.cfg.AutoSaveInterval, h.emitAutoSave)
		session.AddField(req.Field)
	} else if session := client.existingSession(req.IncidentID); session != nil {
		if !session.RemoveField(req.Field) {
			client.stopSession(req.IncidentID)
		}
	}

	req.UserID = client.UserID
	req.UserName = client.UserName
	h.Broadcast(room, EventIncidentEditing, req)
	h.emitPresence(room)
}

// handleFieldUpdate assigns the next version for (incident, field) and
// rebroadcasts the content to the incident room.
func (h *Hub) handleFieldUpdate(ctx context.Context, client *Client, req *FieldUpdated) {
	if retry, ok := h.limiter.Allow(ctx, client.ID, EventFieldUpdated); !ok {
		client.sendError(CodeRateLimited, "too many field updates", retry)
		return
	}

	room := IncidentRoom(req.IncidentID)
	now := time.Now().UTC()

	h.mu.Lock()
	m, isMember := h.memberLocked(room, client.ID)
	if isMember {
		m.lastActivity = now
	}
	h.mu.Unlock()
	if !isMember {
		client.sendError(CodeInvalidData, "not a member of "+room, 0)
		return
	}

	if session := client.existingSession(req.IncidentID); session != nil {
		session.AddField(req.Field)
	}

	req.UserID = client.UserID
	req.Timestamp = now
	req.Version = h.versions.Next(req.IncidentID, req.Field)
	h.Broadcast(room, EventFieldUpdated, req)
}

func (h *Hub) emitAutoSave(incidentID string, fields []string) {
	h.Broadcast(IncidentRoom(incidentID), EventAutoSaved, AutoSaved{
		IncidentID:          incidentID,
		FieldsSaved:         fields,
		Timestamp:           time.Now().UTC(),
		NextAutoSaveSeconds: int(h.cfg.AutoSaveInterval.Seconds()),
	})
}

// memberLocked looks up a room member. Callers hold h.mu.
func (h *Hub) memberLocked(room string, id uuid.UUID) (*member, bool) {
	members, ok := h.rooms[room]
	if !ok {
		return nil, false
	}
	m, ok := members[id]
	return m, ok
}

// HandleWebSocket upgrades the request and runs the client until disconnect.
// userID is the identity resolved by the auth collaborator; it may be empty,
// in which case room actions fail with AUTH_REQUIRED.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, userID, userName string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	client := &Client{
		ID:       uuid.New(),
		UserID:   userID,
		UserName: userName,
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBufferSize),
		done:     make(chan struct{}),
		hub:      h,
		sessions: make(map[string]*autoSaveSession),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// dispatch routes one inbound frame from a client.
func (h *Hub) dispatch(ctx context.Context, client *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		client.sendError(CodeInvalidData, "malformed event frame", 0)
		return
	}

	payload, err := DecodeInbound(env.Event, env.Data)
	if err != nil {
		client.sendError(CodeInvalidData, err.Error(), 0)
		return
	}

	switch req := payload.(type) {
	case *RoomRequest:
		if env.Event == EventJoinRoom {
			if err := h.JoinRoom(ctx, client, req.Room); err != nil {
				client.sendActionError(err)
			}
		} else {
			if err := h.LeaveRoom(client, req.Room); err != nil {
				client.sendActionError(err)
			}
		}
	case *IncidentEditing:
		h.handleEditing(ctx, client, req)
	case *FieldUpdated:
		h.handleFieldUpdate(ctx, client, req)
	}
}
