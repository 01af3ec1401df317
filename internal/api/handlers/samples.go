package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseboard/pulseboard/internal/ingest"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/rs/zerolog"
)

// SampleHandler accepts raw samples from monitoring probes and feeds them
// through the ingestion pipeline.
type SampleHandler struct {
	pipeline *ingest.Pipeline
	logger   zerolog.Logger
}

// NewSampleHandler creates a new SampleHandler.
func NewSampleHandler(pipeline *ingest.Pipeline, logger zerolog.Logger) *SampleHandler {
	return &SampleHandler{
		pipeline: pipeline,
		logger:   logger.With().Str("component", "sample_handler").Logger(),
	}
}

// RegisterRoutes registers ingestion routes on the given router group.
func (h *SampleHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/uptime/:serviceId/records", h.PostUptimeRecord)
	r.POST("/response-times/:serviceId/samples", h.PostResponseTimeSample)
}

// PostUptimeRecordRequest is the request body for ingesting a day's uptime.
type PostUptimeRecordRequest struct {
	Date             string  `json:"date" binding:"required"`
	Status           string  `json:"status" binding:"required"`
	UptimePercentage float64 `json:"uptime_percentage"`
	DowntimeMinutes  int     `json:"downtime_minutes"`
	IncidentCount    int     `json:"incident_count"`
}

// PostUptimeRecord ingests one per-day uptime record.
func (h *SampleHandler) PostUptimeRecord(c *gin.Context) {
	serviceID := c.Param("serviceId")

	var req PostUptimeRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	date, err := time.Parse(models.DateFormat, req.Date)
	if err != nil {
		validationError(c, []FieldError{{Field: "date", Message: "must be a YYYY-MM-DD date"}})
		return
	}

	record := &models.UptimeRecord{
		ServiceID:        serviceID,
		Date:             date,
		Status:           models.ServiceStatus(req.Status),
		UptimePercentage: req.UptimePercentage,
		DowntimeMinutes:  req.DowntimeMinutes,
		IncidentCount:    req.IncidentCount,
	}
	if err := h.pipeline.RecordUptime(c.Request.Context(), record); err != nil {
		h.writeIngestError(c, serviceID, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// PostResponseTimeSampleRequest is the request body for a latency sample.
type PostResponseTimeSampleRequest struct {
	Endpoint       string     `json:"endpoint" binding:"required"`
	Method         string     `json:"method" binding:"required"`
	ResponseTimeMs float64    `json:"response_time_ms"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	StatusCode     int        `json:"status_code" binding:"required"`
}

// PostResponseTimeSample ingests one latency sample.
func (h *SampleHandler) PostResponseTimeSample(c *gin.Context) {
	serviceID := c.Param("serviceId")

	var req PostResponseTimeSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	sample := &models.ResponseTimeSample{
		ServiceID:      serviceID,
		Endpoint:       req.Endpoint,
		Method:         req.Method,
		ResponseTimeMs: req.ResponseTimeMs,
		StatusCode:     req.StatusCode,
	}
	if req.Timestamp != nil {
		sample.Timestamp = *req.Timestamp
	}
	if err := h.pipeline.RecordResponseTime(c.Request.Context(), sample); err != nil {
		h.writeIngestError(c, serviceID, err)
		return
	}

	c.JSON(http.StatusCreated, sample)
}

func (h *SampleHandler) writeIngestError(c *gin.Context, serviceID string, err error) {
	switch {
	case errors.Is(err, ingest.ErrUnknownService):
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
	case errors.Is(err, ingest.ErrInvalidSample):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Str("service_id", serviceID).Msg("sample ingestion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest sample"})
	}
}
