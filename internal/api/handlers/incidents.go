package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pulseboard/pulseboard/internal/api/middleware"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/realtime"
	"github.com/rs/zerolog"
)

// IncidentStore defines the persistence operations for incidents.
type IncidentStore interface {
	ServiceExists(ctx context.Context, serviceID string) (bool, error)
	CreateIncident(ctx context.Context, incident *models.Incident) error
	GetIncidentByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	UpdateIncident(ctx context.Context, incident *models.Incident) error
	ListIncidentsByService(ctx context.Context, serviceID string, limit int) ([]*models.Incident, error)
}

// Broadcaster fans an event out to a room.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

// IncidentHandler handles incident lifecycle endpoints. The bookkeeping is
// thin; the point is driving incident-created / incident-updated broadcasts.
type IncidentHandler struct {
	store       IncidentStore
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewIncidentHandler creates a new IncidentHandler.
func NewIncidentHandler(store IncidentStore, broadcaster Broadcaster, logger zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{
		store:       store,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "incident_handler").Logger(),
	}
}

// RegisterRoutes registers incident routes on the given router group.
func (h *IncidentHandler) RegisterRoutes(r *gin.RouterGroup) {
	incidents := r.Group("/incidents")
	{
		incidents.POST("", h.CreateIncident)
		incidents.GET("/:id", h.GetIncident)
		incidents.PUT("/:id", h.UpdateIncident)
	}
	r.GET("/services/:serviceId/incidents", h.ListIncidents)
}

// CreateIncidentRequest is the request body for creating an incident.
type CreateIncidentRequest struct {
	ServiceID string `json:"service_id" binding:"required"`
	Title     string `json:"title" binding:"required,min=1,max=512"`
	Body      string `json:"body,omitempty"`
	Severity  string `json:"severity" binding:"required"`
}

// CreateIncident creates an incident and broadcasts incident-created.
func (h *IncidentHandler) CreateIncident(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	severity := models.IncidentSeverity(req.Severity)
	if !severity.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
		return
	}

	exists, err := h.store.ServiceExists(c.Request.Context(), req.ServiceID)
	if err != nil {
		h.logger.Error().Err(err).Str("service_id", req.ServiceID).Msg("failed to check service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create incident"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
		return
	}

	incident := models.NewIncident(req.ServiceID, req.Title, severity, user.UserID)
	incident.Body = req.Body

	if err := h.store.CreateIncident(c.Request.Context(), incident); err != nil {
		h.logger.Error().Err(err).Str("service_id", req.ServiceID).Msg("failed to create incident")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create incident"})
		return
	}

	now := time.Now().UTC()
	payload := realtime.IncidentCreated{
		Incident:         incident,
		NotificationType: "new_incident",
		Timestamp:        now,
	}
	h.broadcaster.Broadcast(realtime.RoomIncidents, realtime.EventIncidentCreated, payload)
	h.broadcaster.Broadcast(realtime.RoomSystemStatus, realtime.EventIncidentCreated, payload)

	h.logger.Info().
		Str("incident_id", incident.ID.String()).
		Str("service_id", incident.ServiceID).
		Str("severity", string(incident.Severity)).
		Msg("incident created")

	c.JSON(http.StatusCreated, incident)
}

// GetIncident returns one incident by id.
func (h *IncidentHandler) GetIncident(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}

	incident, err := h.store.GetIncidentByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("incident_id", id.String()).Msg("failed to get incident")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	c.JSON(http.StatusOK, incident)
}

// UpdateIncidentRequest is the request body for updating an incident.
type UpdateIncidentRequest struct {
	Title    *string `json:"title,omitempty"`
	Body     *string `json:"body,omitempty"`
	Status   *string `json:"status,omitempty"`
	Severity *string `json:"severity,omitempty"`
}

// UpdateIncident applies changes to an incident and broadcasts
// incident-updated with the changed fields.
func (h *IncidentHandler) UpdateIncident(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return
	}

	incident, err := h.store.GetIncidentByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("incident_id", id.String()).Msg("failed to get incident")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update incident"})
		return
	}
	if incident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}

	var req UpdateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	changes := make(map[string]any)
	if req.Title != nil && *req.Title != incident.Title {
		incident.Title = *req.Title
		changes["title"] = *req.Title
	}
	if req.Body != nil && *req.Body != incident.Body {
		incident.Body = *req.Body
		changes["body"] = *req.Body
	}
	if req.Severity != nil {
		severity := models.IncidentSeverity(*req.Severity)
		if !severity.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid severity"})
			return
		}
		if severity != incident.Severity {
			incident.Severity = severity
			changes["severity"] = string(severity)
		}
	}
	if req.Status != nil {
		status := models.IncidentStatus(*req.Status)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		if status != incident.Status {
			incident.Status = status
			changes["status"] = string(status)
			if status == models.IncidentStatusResolved {
				now := time.Now().UTC()
				incident.ResolvedAt = &now
			}
		}
	}

	if len(changes) == 0 {
		c.JSON(http.StatusOK, incident)
		return
	}
	incident.UpdatedAt = time.Now().UTC()

	if err := h.store.UpdateIncident(c.Request.Context(), incident); err != nil {
		h.logger.Error().Err(err).Str("incident_id", id.String()).Msg("failed to update incident")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update incident"})
		return
	}

	payload := realtime.IncidentUpdated{
		IncidentID: incident.ID.String(),
		Changes:    changes,
		UpdatedBy:  user.UserID,
		Timestamp:  incident.UpdatedAt,
	}
	h.broadcaster.Broadcast(realtime.IncidentRoom(incident.ID.String()), realtime.EventIncidentUpdated, payload)
	h.broadcaster.Broadcast(realtime.RoomIncidents, realtime.EventIncidentUpdated, payload)

	h.logger.Info().
		Str("incident_id", incident.ID.String()).
		Int("changes", len(changes)).
		Msg("incident updated")

	c.JSON(http.StatusOK, incident)
}

// ListIncidents returns recent incidents for a service.
func (h *IncidentHandler) ListIncidents(c *gin.Context) {
	serviceID := c.Param("serviceId")

	exists, err := h.store.ServiceExists(c.Request.Context(), serviceID)
	if err != nil {
		h.logger.Error().Err(err).Str("service_id", serviceID).Msg("failed to check service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list incidents"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
		return
	}

	incidents, err := h.store.ListIncidentsByService(c.Request.Context(), serviceID, 100)
	if err != nil {
		h.logger.Error().Err(err).Str("service_id", serviceID).Msg("failed to list incidents")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list incidents"})
		return
	}
	if incidents == nil {
		incidents = []*models.Incident{}
	}

	c.JSON(http.StatusOK, gin.H{"incidents": incidents})
}
