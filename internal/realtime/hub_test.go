package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func testHub(cfg Config) *Hub {
	if cfg.SendBufferSize == 0 {
		cfg.SendBufferSize = 16
	}
	if cfg.ActionsPerSecond == 0 {
		cfg.ActionsPerSecond = 100
	}
	if cfg.AutoSaveInterval == 0 {
		cfg.AutoSaveInterval = time.Hour
	}
	return NewHub(cfg, zerolog.Nop())
}

func testClient(h *Hub, userID string) *Client {
	return &Client{
		ID:       uuid.New(),
		UserID:   userID,
		UserName: userID,
		send:     make(chan []byte, h.cfg.SendBufferSize),
		done:     make(chan struct{}),
		hub:      h,
		sessions: make(map[string]*autoSaveSession),
	}
}

// recvEvent drains the client's send channel until it sees the named event.
func recvEvent(t *testing.T, c *Client, event string) json.RawMessage {
	t.Helper()
	for {
		select {
		case frame := <-c.send:
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			if env.Event == event {
				return env.Data
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestJoinRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid room", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")
		if err := h.JoinRoom(ctx, c, "not-a-room"); !errors.Is(err, ErrInvalidRoom) {
			t.Errorf("expected ErrInvalidRoom, got %v", err)
		}
	})

	t.Run("auth required", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "")
		if err := h.JoinRoom(ctx, c, RoomIncidents); !errors.Is(err, ErrAuthRequired) {
			t.Errorf("expected ErrAuthRequired, got %v", err)
		}
	})

	t.Run("join emits user-joined to the room", func(t *testing.T) {
		h := testHub(Config{})
		alice := testClient(h, "alice")
		bob := testClient(h, "bob")

		if err := h.JoinRoom(ctx, alice, RoomIncidents); err != nil {
			t.Fatalf("alice join: %v", err)
		}
		drain(alice)

		if err := h.JoinRoom(ctx, bob, RoomIncidents); err != nil {
			t.Fatalf("bob join: %v", err)
		}

		data := recvEvent(t, alice, EventUserJoined)
		var m Membership
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad membership payload: %v", err)
		}
		if m.UserID != "bob" || m.Room != RoomIncidents {
			t.Errorf("unexpected membership: %+v", m)
		}
		// The joiner sees its own join too.
		recvEvent(t, bob, EventUserJoined)
	})

	t.Run("duplicate join is idempotent", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")

		if err := h.JoinRoom(ctx, c, RoomIncidents); err != nil {
			t.Fatalf("join: %v", err)
		}
		drain(c)
		if err := h.JoinRoom(ctx, c, RoomIncidents); err != nil {
			t.Fatalf("rejoin: %v", err)
		}
		select {
		case frame := <-c.send:
			t.Errorf("expected no event on duplicate join, got %s", frame)
		default:
		}
	})

	t.Run("rooms are created and destroyed on demand", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")

		if h.RoomCount() != 0 {
			t.Fatal("expected no rooms initially")
		}
		if err := h.JoinRoom(ctx, c, "uptime-api"); err != nil {
			t.Fatalf("join: %v", err)
		}
		if h.RoomCount() != 1 {
			t.Errorf("expected 1 room, got %d", h.RoomCount())
		}
		if err := h.LeaveRoom(c, "uptime-api"); err != nil {
			t.Fatalf("leave: %v", err)
		}
		if h.RoomCount() != 0 {
			t.Errorf("expected room destroyed on last leave, got %d", h.RoomCount())
		}
	})

	t.Run("rate limited join", func(t *testing.T) {
		h := testHub(Config{ActionsPerSecond: 2})
		c := testClient(h, "u1")

		rooms := []string{"uptime-a", "uptime-b", "uptime-c"}
		var rateErr *RateLimitedError
		limited := false
		for _, room := range rooms {
			if err := h.JoinRoom(ctx, c, room); err != nil {
				if !errors.As(err, &rateErr) {
					t.Fatalf("unexpected error: %v", err)
				}
				limited = true
			}
			drain(c)
		}
		if !limited {
			t.Error("expected the third join inside one second to be rate limited")
		}
		if rateErr != nil && rateErr.RetryAfterSeconds < 0 {
			t.Errorf("negative retry-after: %d", rateErr.RetryAfterSeconds)
		}
	})
}

func TestLeaveRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("leave emits user-left to remaining members", func(t *testing.T) {
		h := testHub(Config{})
		alice := testClient(h, "alice")
		bob := testClient(h, "bob")
		if err := h.JoinRoom(ctx, alice, RoomIncidents); err != nil {
			t.Fatal(err)
		}
		if err := h.JoinRoom(ctx, bob, RoomIncidents); err != nil {
			t.Fatal(err)
		}
		drain(alice)

		if err := h.LeaveRoom(bob, RoomIncidents); err != nil {
			t.Fatalf("leave: %v", err)
		}
		data := recvEvent(t, alice, EventUserLeft)
		var m Membership
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatal(err)
		}
		if m.UserID != "bob" {
			t.Errorf("expected bob left, got %+v", m)
		}
	})

	t.Run("leaving a room you are not in is a no-op", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")
		if err := h.LeaveRoom(c, RoomIncidents); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("invalid room name", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")
		if err := h.LeaveRoom(c, "nope"); !errors.Is(err, ErrInvalidRoom) {
			t.Errorf("expected ErrInvalidRoom, got %v", err)
		}
	})
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()

	t.Run("only room members receive the event", func(t *testing.T) {
		h := testHub(Config{})
		inRoom := testClient(h, "alice")
		outOfRoom := testClient(h, "bob")
		if err := h.JoinRoom(ctx, inRoom, "uptime-api"); err != nil {
			t.Fatal(err)
		}
		drain(inRoom)

		h.Broadcast("uptime-api", EventUptimeUpdated, UptimeUpdated{ServiceID: "api", Date: "2025-06-01"})

		data := recvEvent(t, inRoom, EventUptimeUpdated)
		var u UptimeUpdated
		if err := json.Unmarshal(data, &u); err != nil {
			t.Fatal(err)
		}
		if u.ServiceID != "api" {
			t.Errorf("unexpected payload: %+v", u)
		}
		select {
		case frame := <-outOfRoom.send:
			t.Errorf("non-member received %s", frame)
		default:
		}
	})

	t.Run("slow client drops instead of blocking", func(t *testing.T) {
		h := testHub(Config{SendBufferSize: 1})
		c := testClient(h, "u1")
		if err := h.JoinRoom(ctx, c, "uptime-api"); err != nil {
			t.Fatal(err)
		}
		// Buffer already holds the join event; further broadcasts must not
		// block.
		done := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				h.Broadcast("uptime-api", EventUptimeUpdated, UptimeUpdated{ServiceID: "api"})
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("broadcast blocked on a slow client")
		}
	})

	t.Run("broadcast racing a disconnect does not panic", func(t *testing.T) {
		h := testHub(Config{SendBufferSize: 1})
		h.Start()
		defer h.Stop()

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.Broadcast("uptime-api", EventUptimeUpdated, UptimeUpdated{ServiceID: "api"})
				}
			}
		}()

		// Churn connections while the broadcaster runs. A send on a closed
		// channel would panic here.
		for i := 0; i < 200; i++ {
			c := testClient(h, fmt.Sprintf("user-%d", i))
			h.register <- c
			if err := h.JoinRoom(ctx, c, "uptime-api"); err != nil {
				t.Fatal(err)
			}
			h.unregister <- c
		}
		close(stop)
		wg.Wait()
	})

	t.Run("fan-out to many members completes quickly", func(t *testing.T) {
		h := testHub(Config{})
		const n = 100
		clients := make([]*Client, n)
		for i := range clients {
			clients[i] = testClient(h, fmt.Sprintf("user-%d", i))
			if err := h.JoinRoom(ctx, clients[i], RoomSystemStatus); err != nil {
				t.Fatal(err)
			}
			drain(clients[i])
		}

		start := time.Now()
		h.Broadcast(RoomSystemStatus, EventStatusUpdate, StatusUpdate{ServiceID: "api"})
		elapsed := time.Since(start)

		if elapsed > 5*time.Second {
			t.Fatalf("broadcast took %v", elapsed)
		}
		for i, c := range clients {
			select {
			case <-c.send:
			default:
				t.Fatalf("client %d received nothing", i)
			}
		}
	})
}

func TestPresence(t *testing.T) {
	ctx := context.Background()

	t.Run("incident room presence lists members", func(t *testing.T) {
		h := testHub(Config{})
		alice := testClient(h, "alice")
		bob := testClient(h, "bob")
		room := IncidentRoom("inc1")
		if err := h.JoinRoom(ctx, alice, room); err != nil {
			t.Fatal(err)
		}
		if err := h.JoinRoom(ctx, bob, room); err != nil {
			t.Fatal(err)
		}

		p := h.Presence(room)
		if p.IncidentID != "inc1" {
			t.Errorf("expected incident id inc1, got %q", p.IncidentID)
		}
		if p.TotalActiveUsers != 2 || len(p.ActiveUsers) != 2 {
			t.Errorf("expected 2 active users, got %+v", p)
		}
	})

	t.Run("editing state appears in presence", func(t *testing.T) {
		h := testHub(Config{})
		alice := testClient(h, "alice")
		room := IncidentRoom("inc1")
		if err := h.JoinRoom(ctx, alice, room); err != nil {
			t.Fatal(err)
		}
		drain(alice)

		h.handleEditing(ctx, alice, &IncidentEditing{IncidentID: "inc1", Field: "title", IsEditing: true})

		p := h.Presence(room)
		if len(p.ActiveUsers) != 1 || p.ActiveUsers[0].EditingField == nil || *p.ActiveUsers[0].EditingField != "title" {
			t.Fatalf("expected alice editing title, got %+v", p.ActiveUsers)
		}

		h.handleEditing(ctx, alice, &IncidentEditing{IncidentID: "inc1", Field: "title", IsEditing: false})
		p = h.Presence(room)
		if p.ActiveUsers[0].EditingField != nil {
			t.Errorf("expected editing cleared, got %+v", p.ActiveUsers[0])
		}
	})

	t.Run("editing outside the room is rejected", func(t *testing.T) {
		h := testHub(Config{})
		alice := testClient(h, "alice")

		h.handleEditing(context.Background(), alice, &IncidentEditing{IncidentID: "inc1", Field: "title", IsEditing: true})

		data := recvEvent(t, alice, EventError)
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatal(err)
		}
		if e.Code != CodeInvalidData {
			t.Errorf("expected %s, got %s", CodeInvalidData, e.Code)
		}
	})
}

func TestFieldUpdateVersions(t *testing.T) {
	ctx := context.Background()
	h := testHub(Config{})
	alice := testClient(h, "alice")
	bob := testClient(h, "bob")
	room := IncidentRoom("inc1")
	if err := h.JoinRoom(ctx, alice, room); err != nil {
		t.Fatal(err)
	}
	if err := h.JoinRoom(ctx, bob, room); err != nil {
		t.Fatal(err)
	}
	drain(bob)

	var last int64
	for i := 0; i < 5; i++ {
		h.handleFieldUpdate(ctx, alice, &FieldUpdated{IncidentID: "inc1", Field: "body", Content: "v"})
		data := recvEvent(t, bob, EventFieldUpdated)
		var f FieldUpdated
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatal(err)
		}
		if f.Version <= last {
			t.Fatalf("version %d not greater than %d", f.Version, last)
		}
		if f.UserID != "alice" {
			t.Errorf("expected author alice, got %q", f.UserID)
		}
		last = f.Version
	}

	// Versions are scoped per (incident, field).
	h.handleFieldUpdate(ctx, alice, &FieldUpdated{IncidentID: "inc1", Field: "title", Content: "v"})
	data := recvEvent(t, bob, EventFieldUpdated)
	var f FieldUpdated
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f.Version != 1 {
		t.Errorf("expected fresh field to start at version 1, got %d", f.Version)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed frame yields INVALID_DATA", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")

		h.dispatch(ctx, c, []byte(`not json`))

		data := recvEvent(t, c, EventError)
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatal(err)
		}
		if e.Code != CodeInvalidData {
			t.Errorf("expected %s, got %s", CodeInvalidData, e.Code)
		}
	})

	t.Run("join via dispatch", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")

		h.dispatch(ctx, c, []byte(`{"event":"join-room","data":{"room":"incidents"}}`))

		recvEvent(t, c, EventUserJoined)
		if h.RoomCount() != 1 {
			t.Errorf("expected 1 room after dispatch join, got %d", h.RoomCount())
		}
	})

	t.Run("invalid room via dispatch maps to INVALID_ROOM", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "u1")

		h.dispatch(ctx, c, []byte(`{"event":"join-room","data":{"room":"bogus!"}}`))

		data := recvEvent(t, c, EventError)
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatal(err)
		}
		if e.Code != CodeInvalidRoom {
			t.Errorf("expected %s, got %s", CodeInvalidRoom, e.Code)
		}
	})

	t.Run("unauthenticated join maps to AUTH_REQUIRED", func(t *testing.T) {
		h := testHub(Config{})
		c := testClient(h, "")

		h.dispatch(ctx, c, []byte(`{"event":"join-room","data":{"room":"incidents"}}`))

		data := recvEvent(t, c, EventError)
		var e ErrorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatal(err)
		}
		if e.Code != CodeAuthRequired {
			t.Errorf("expected %s, got %s", CodeAuthRequired, e.Code)
		}
	})
}

func TestHubLifecycle(t *testing.T) {
	h := testHub(Config{})
	h.Start()

	c := testClient(h, "u1")
	h.register <- c

	deadline := time.After(time.Second)
	for h.ClientCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := h.JoinRoom(context.Background(), c, RoomIncidents); err != nil {
		t.Fatal(err)
	}

	h.unregister <- c
	deadline = time.After(time.Second)
	for h.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("client never unregistered")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if h.RoomCount() != 0 {
		t.Errorf("expected rooms cleaned up on disconnect, got %d", h.RoomCount())
	}

	h.Stop()
}
