// Package handlers implements the Pulseboard HTTP endpoints.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseboard/pulseboard/internal/models"
)

// FieldError is one validation failure in a 400 response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validationError writes the standard 400 body.
func validationError(c *gin.Context, details []FieldError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation failed",
		"details": details,
	})
}

// parseDateRange resolves the days / startDate+endDate query parameters into
// an inclusive day range. Without parameters the range is the trailing
// defaultDays ending today.
func parseDateRange(c *gin.Context, defaultDays int) (start, end time.Time, details []FieldError) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	startStr := c.Query("startDate")
	endStr := c.Query("endDate")
	if startStr != "" || endStr != "" {
		var err error
		start, err = time.Parse(models.DateFormat, startStr)
		if err != nil {
			details = append(details, FieldError{Field: "startDate", Message: "must be a YYYY-MM-DD date"})
		}
		if endStr == "" {
			end = today
		} else if end, err = time.Parse(models.DateFormat, endStr); err != nil {
			details = append(details, FieldError{Field: "endDate", Message: "must be a YYYY-MM-DD date"})
		}
		if len(details) == 0 && end.Before(start) {
			details = append(details, FieldError{Field: "endDate", Message: "must not precede startDate"})
		}
		return start, end, details
	}

	days := defaultDays
	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 {
			details = append(details, FieldError{Field: "days", Message: "must be a positive integer"})
			return start, end, details
		}
		days = parsed
	}
	end = today
	start = end.AddDate(0, 0, -(days - 1))
	return start, end, nil
}

// parseSLATarget resolves the slaTarget query parameter. nil means the
// aggregator default applies; an explicit 0 is a valid target.
func parseSLATarget(c *gin.Context) (*float64, []FieldError) {
	targetStr := c.Query("slaTarget")
	if targetStr == "" {
		return nil, nil
	}
	target, err := strconv.ParseFloat(targetStr, 64)
	if err != nil || target < 0 || target > 100 {
		return nil, []FieldError{{Field: "slaTarget", Message: "must be a number in [0,100]"}}
	}
	return &target, nil
}

// parseTargetMs resolves the targetMs query parameter. nil means the
// aggregator default applies; an explicit 0 is a valid target.
func parseTargetMs(c *gin.Context) (*float64, []FieldError) {
	targetStr := c.Query("targetMs")
	if targetStr == "" {
		return nil, nil
	}
	target, err := strconv.ParseFloat(targetStr, 64)
	if err != nil || target < 0 {
		return nil, []FieldError{{Field: "targetMs", Message: "must be a non-negative number"}}
	}
	return &target, nil
}
