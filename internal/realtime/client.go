package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one connected WebSocket peer.
type Client struct {
	ID       uuid.UUID
	UserID   string
	UserName string

	conn *websocket.Conn
	send chan []byte
	// done signals writePump to shut down. send is never closed: broadcasts
	// may race a disconnect, and enqueueing to a live-but-abandoned buffer
	// is harmless where a send on a closed channel panics.
	done chan struct{}
	hub  *Hub

	mu       sync.Mutex
	sessions map[string]*autoSaveSession // incidentID -> session
}

// session returns the auto-save session for an incident, creating it if
// needed.
func (c *Client) session(incidentID string, interval time.Duration, emit func(string, []string)) *autoSaveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[incidentID]
	if !ok {
		s = newAutoSaveSession(incidentID, interval, emit)
		c.sessions[incidentID] = s
	}
	return s
}

// existingSession returns the session for an incident, nil if none.
func (c *Client) existingSession(incidentID string) *autoSaveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[incidentID]
}

// stopSession cancels and removes the session for an incident.
func (c *Client) stopSession(incidentID string) {
	c.mu.Lock()
	s, ok := c.sessions[incidentID]
	if ok {
		delete(c.sessions, incidentID)
	}
	c.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// stopAllSessions cancels every session. Called on disconnect so timers
// never outlive the connection.
func (c *Client) stopAllSessions() {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*autoSaveSession)
	c.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

// sendError delivers an error event to this client only.
func (c *Client) sendError(code, message string, retryAfterSeconds int) {
	frame, err := Marshal(EventError, ErrorEvent{
		Message:           message,
		Code:              code,
		RetryAfterSeconds: retryAfterSeconds,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// sendActionError maps a room action error to its wire code.
func (c *Client) sendActionError(err error) {
	var rateErr *RateLimitedError
	switch {
	case errors.Is(err, ErrInvalidRoom):
		c.sendError(CodeInvalidRoom, err.Error(), 0)
	case errors.Is(err, ErrAuthRequired):
		c.sendError(CodeAuthRequired, err.Error(), 0)
	case errors.As(err, &rateErr):
		c.sendError(CodeRateLimited, err.Error(), rateErr.RetryAfterSeconds)
	default:
		c.sendError(CodeInvalidData, err.Error(), 0)
	}
}

// readPump reads frames from the client until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("client_id", c.ID.String()).Msg("websocket read error")
			}
			break
		}
		c.hub.dispatch(context.Background(), c, message)
	}
}

// writePump writes outbound frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
