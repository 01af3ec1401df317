package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/pulseboard/pulseboard/internal/api/middleware"
	"github.com/pulseboard/pulseboard/internal/realtime"
)

// WSHandler upgrades dashboard connections into the realtime hub.
type WSHandler struct {
	hub *realtime.Hub
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// RegisterRoutes registers the WebSocket endpoint on the given router group.
func (h *WSHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws", h.Connect)
}

// Connect upgrades the request. An unauthenticated connection may observe
// public events but every room action fails with AUTH_REQUIRED.
func (h *WSHandler) Connect(c *gin.Context) {
	var userID, userName string
	if identity := middleware.GetIdentity(c); identity != nil {
		userID = identity.UserID
		userName = identity.UserName
	}
	h.hub.HandleWebSocket(c.Writer, c.Request, userID, userName)
}
