// Package sla applies compliance targets to aggregation output. It holds no
// state; every function is pure.
package sla

import (
	"math"
	"sort"

	"github.com/pulseboard/pulseboard/internal/models"
)

// EvaluateAvailability produces the availability compliance block for a set
// of observed daily entries. With no data there is no evidence of compliance,
// so is_compliant is false rather than vacuously true.
func EvaluateAvailability(daily []models.DailyBreakdownEntry, overallPercentage, target float64) models.SLACompliance {
	compliance := models.SLACompliance{
		TargetAvailabilityPercentage: target,
	}
	if len(daily) == 0 {
		return compliance
	}

	meeting := 0
	for _, d := range daily {
		if d.UptimePercentage >= target {
			meeting++
		} else {
			compliance.BreachDays++
		}
	}
	compliance.CompliancePercentage = float64(meeting) / float64(len(daily)) * 100
	compliance.IsCompliant = overallPercentage >= target
	return compliance
}

// EvaluateResponseTimes produces the response-time compliance block for a
// sample set against a latency target in milliseconds.
func EvaluateResponseTimes(responseTimesMs []float64, targetMs float64) models.ResponseTimeCompliance {
	compliance := models.ResponseTimeCompliance{
		TargetResponseTimeMs: targetMs,
	}
	if len(responseTimesMs) == 0 {
		return compliance
	}

	within := 0
	for _, v := range responseTimesMs {
		if v <= targetMs {
			within++
		}
	}
	compliance.RequestsWithinTargetPercentage = float64(within) / float64(len(responseTimesMs)) * 100
	compliance.IsCompliant = p95(responseTimesMs) <= targetMs
	return compliance
}

// p95 computes the nearest-rank 95th percentile without mutating the input.
func p95(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
