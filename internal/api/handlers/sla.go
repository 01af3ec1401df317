package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/rs/zerolog"
)

// SLAHandler serves availability and response-time rollups.
type SLAHandler struct {
	aggregator *metrics.Aggregator
	logger     zerolog.Logger
}

// NewSLAHandler creates a new SLAHandler.
func NewSLAHandler(aggregator *metrics.Aggregator, logger zerolog.Logger) *SLAHandler {
	return &SLAHandler{
		aggregator: aggregator,
		logger:     logger.With().Str("component", "sla_handler").Logger(),
	}
}

// RegisterRoutes registers SLA routes on the given router group.
func (h *SLAHandler) RegisterRoutes(r *gin.RouterGroup) {
	slaGroup := r.Group("/sla")
	{
		slaGroup.GET("/availability/:serviceId", h.GetAvailability)
		slaGroup.GET("/response-times/:serviceId", h.GetResponseTimes)
	}
}

// GetAvailability returns the availability rollup for a service.
func (h *SLAHandler) GetAvailability(c *gin.Context) {
	serviceID := c.Param("serviceId")

	start, end, details := parseDateRange(c, h.aggregator.Config().DefaultRangeDays)
	target, targetDetails := parseSLATarget(c)
	details = append(details, targetDetails...)
	if len(details) > 0 {
		validationError(c, details)
		return
	}

	report, err := h.aggregator.ComputeAvailability(c.Request.Context(), serviceID, metrics.AvailabilityQuery{
		Start:     start,
		End:       end,
		SLATarget: target,
		Quarterly: c.Query("aggregation") == "quarterly",
	})
	if err != nil {
		h.writeAggregationError(c, serviceID, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetResponseTimes returns the response-time rollup for a service.
func (h *SLAHandler) GetResponseTimes(c *gin.Context) {
	serviceID := c.Param("serviceId")

	start, end, details := parseDateRange(c, h.aggregator.Config().DefaultRangeDays)
	targetMs, targetDetails := parseTargetMs(c)
	details = append(details, targetDetails...)
	if len(details) > 0 {
		validationError(c, details)
		return
	}

	report, err := h.aggregator.ComputeResponseTimes(c.Request.Context(), serviceID, metrics.ResponseTimeQuery{
		Start:    start,
		End:      end,
		Endpoint: c.Query("endpoint"),
		Method:   c.Query("method"),
		TargetMs: targetMs,
	})
	if err != nil {
		h.writeAggregationError(c, serviceID, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *SLAHandler) writeAggregationError(c *gin.Context, serviceID string, err error) {
	switch {
	case errors.Is(err, metrics.ErrServiceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
	case errors.Is(err, metrics.ErrInvalidRange):
		validationError(c, []FieldError{{Field: "days", Message: err.Error()}})
	case errors.Is(err, metrics.ErrInvalidTarget):
		validationError(c, []FieldError{{Field: "slaTarget", Message: err.Error()}})
	default:
		h.logger.Error().Err(err).Str("service_id", serviceID).Msg("aggregation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute report"})
	}
}
