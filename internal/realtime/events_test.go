package realtime

import (
	"encoding/json"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	t.Run("join room", func(t *testing.T) {
		payload, err := DecodeInbound(EventJoinRoom, json.RawMessage(`{"room":"incidents","user_id":"u1"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		req, ok := payload.(*RoomRequest)
		if !ok {
			t.Fatalf("expected *RoomRequest, got %T", payload)
		}
		if req.Room != "incidents" || req.UserID != "u1" {
			t.Errorf("unexpected payload: %+v", req)
		}
	})

	t.Run("missing room", func(t *testing.T) {
		if _, err := DecodeInbound(EventJoinRoom, json.RawMessage(`{}`)); err == nil {
			t.Error("expected error for missing room")
		}
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		if _, err := DecodeInbound(EventJoinRoom, json.RawMessage(`{"room":"incidents","extra":1}`)); err == nil {
			t.Error("expected error for unknown field")
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		if _, err := DecodeInbound("shutdown-server", json.RawMessage(`{}`)); err == nil {
			t.Error("expected error for unknown event")
		}
	})

	t.Run("incident editing requires identifiers", func(t *testing.T) {
		payload, err := DecodeInbound(EventIncidentEditing, json.RawMessage(`{"incident_id":"i1","field":"title","is_editing":true}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		req := payload.(*IncidentEditing)
		if req.IncidentID != "i1" || req.Field != "title" || !req.IsEditing {
			t.Errorf("unexpected payload: %+v", req)
		}

		if _, err := DecodeInbound(EventIncidentEditing, json.RawMessage(`{"field":"title"}`)); err == nil {
			t.Error("expected error for missing incident_id")
		}
	})

	t.Run("field updated", func(t *testing.T) {
		payload, err := DecodeInbound(EventFieldUpdated, json.RawMessage(`{"incident_id":"i1","field":"body","content":"text"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		req := payload.(*FieldUpdated)
		if req.Content != "text" {
			t.Errorf("unexpected content %q", req.Content)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := DecodeInbound(EventJoinRoom, json.RawMessage(`{"room":`)); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})
}

func TestMarshal(t *testing.T) {
	frame, err := Marshal(EventUserJoined, Membership{Room: "incidents", UserID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("frame is not a valid envelope: %v", err)
	}
	if env.Event != EventUserJoined {
		t.Errorf("expected event %q, got %q", EventUserJoined, env.Event)
	}
	var payload Membership
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("payload does not decode: %v", err)
	}
	if payload.Room != "incidents" || payload.UserID != "u1" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}
