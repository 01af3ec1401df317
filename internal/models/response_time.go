package models

import "time"

// ResponseTimeSample is one observed request latency. Samples are
// append-only; many arrive per day.
type ResponseTimeSample struct {
	ServiceID      string    `json:"service_id"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Timestamp      time.Time `json:"timestamp"`
	StatusCode     int       `json:"status_code"`
}

// ResponseTimeMetrics holds the percentile ladder over a sample set. When
// TotalRequests is 0 every numeric field is 0, never NaN.
type ResponseTimeMetrics struct {
	Average             float64 `json:"average"`
	Median              float64 `json:"median"`
	P95                 float64 `json:"p95"`
	P99                 float64 `json:"p99"`
	Min                 float64 `json:"min"`
	Max                 float64 `json:"max"`
	TotalRequests       int     `json:"total_requests"`
	ErrorRatePercentage float64 `json:"error_rate_percentage"`
}

// HourlyBucket is one hour of response-time samples, keyed by the
// truncated-to-hour timestamp.
type HourlyBucket struct {
	Hour         time.Time `json:"hour"`
	AverageMs    float64   `json:"average_ms"`
	RequestCount int       `json:"request_count"`
}

// EndpointStats aggregates samples per (endpoint, method).
type EndpointStats struct {
	Endpoint            string  `json:"endpoint"`
	Method              string  `json:"method"`
	AverageMs           float64 `json:"average_ms"`
	RequestCount        int     `json:"request_count"`
	ErrorRatePercentage float64 `json:"error_rate_percentage"`
}

// ResponseTimeCompliance is the response-time compliance block of a report.
type ResponseTimeCompliance struct {
	TargetResponseTimeMs           float64 `json:"target_response_time_ms"`
	IsCompliant                    bool    `json:"is_compliant"`
	RequestsWithinTargetPercentage float64 `json:"requests_within_target_percentage"`
}

// ResponseTimeReport is the full response-time rollup for a service over a
// date range.
type ResponseTimeReport struct {
	ServiceID         string                 `json:"service_id"`
	RangeStart        string                 `json:"range_start"`
	RangeEnd          string                 `json:"range_end"`
	Metrics           ResponseTimeMetrics    `json:"metrics"`
	HourlyBreakdown   []HourlyBucket         `json:"hourly_breakdown"`
	EndpointBreakdown []EndpointStats        `json:"endpoint_breakdown"`
	SLA               ResponseTimeCompliance `json:"sla"`
}
