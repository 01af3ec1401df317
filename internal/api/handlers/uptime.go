package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/rs/zerolog"
)

// UptimeHandler serves the monthly/daily uptime breakdown view.
type UptimeHandler struct {
	aggregator *metrics.Aggregator
	logger     zerolog.Logger
}

// NewUptimeHandler creates a new UptimeHandler.
func NewUptimeHandler(aggregator *metrics.Aggregator, logger zerolog.Logger) *UptimeHandler {
	return &UptimeHandler{
		aggregator: aggregator,
		logger:     logger.With().Str("component", "uptime_handler").Logger(),
	}
}

// RegisterRoutes registers uptime routes on the given router group.
func (h *UptimeHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/uptime/:serviceId", h.GetUptime)
}

// GetUptime returns the daily and monthly uptime breakdown for a service
// over the trailing months window (default 3, max 12) or from an explicit
// start date.
func (h *UptimeHandler) GetUptime(c *gin.Context) {
	serviceID := c.Param("serviceId")
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var start time.Time
	if startStr := c.Query("startDate"); startStr != "" {
		var err error
		start, err = time.Parse(models.DateFormat, startStr)
		if err != nil {
			validationError(c, []FieldError{{Field: "startDate", Message: "must be a YYYY-MM-DD date"}})
			return
		}
	} else {
		months := 3
		if monthsStr := c.Query("months"); monthsStr != "" {
			parsed, err := strconv.Atoi(monthsStr)
			if err != nil || parsed < 1 || parsed > 12 {
				validationError(c, []FieldError{{Field: "months", Message: "must be an integer in [1,12]"}})
				return
			}
			months = parsed
		}
		start = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)
	}

	report, err := h.aggregator.ComputeAvailability(c.Request.Context(), serviceID, metrics.AvailabilityQuery{
		Start: start,
		End:   today,
	})
	if err != nil {
		if errors.Is(err, metrics.ErrServiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "service not found"})
			return
		}
		if errors.Is(err, metrics.ErrInvalidRange) {
			validationError(c, []FieldError{{Field: "startDate", Message: err.Error()}})
			return
		}
		h.logger.Error().Err(err).Str("service_id", serviceID).Msg("uptime breakdown failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute uptime breakdown"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service_id":      report.ServiceID,
		"range_start":     report.RangeStart,
		"range_end":       report.RangeEnd,
		"daily_breakdown": report.DailyBreakdown,
		"monthly_summary": report.MonthlySummary,
	})
}
