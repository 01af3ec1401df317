package models

import "time"

// UptimeRecord is the per-service, per-day availability sample. One record
// exists per service per day; it is mutable while the day is open and frozen
// once the day closes.
type UptimeRecord struct {
	ServiceID        string        `json:"service_id"`
	Date             time.Time     `json:"date"`
	Status           ServiceStatus `json:"status"`
	UptimePercentage float64       `json:"uptime_percentage"`
	DowntimeMinutes  int           `json:"downtime_minutes"`
	IncidentCount    int           `json:"incident_count"`
}

// DailyBreakdownEntry is the per-day view included in availability reports,
// ordered by date descending.
type DailyBreakdownEntry struct {
	Date             string        `json:"date"`
	Status           ServiceStatus `json:"status"`
	UptimePercentage float64       `json:"uptime_percentage"`
	DowntimeMinutes  int           `json:"downtime_minutes"`
	IncidentCount    int           `json:"incident_count"`
}

// MonthlySummary aggregates daily records into one calendar month.
type MonthlySummary struct {
	Month                  string  `json:"month"` // YYYY-MM
	AvailabilityPercentage float64 `json:"availability_percentage"`
	TotalDowntimeMinutes   int     `json:"total_downtime_minutes"`
	IncidentCount          int     `json:"incident_count"`
	OperationalDays        int     `json:"operational_days"`
	PartialOutageDays      int     `json:"partial_outage_days"`
	MajorOutageDays        int     `json:"major_outage_days"`
	SLABreachDays          int     `json:"sla_breach_days"`
	DaysInMonth            int     `json:"days_in_month"`
}

// QuarterlySummary groups monthly summaries into a calendar quarter.
type QuarterlySummary struct {
	Quarter                string  `json:"quarter"` // YYYY-Qn
	AvailabilityPercentage float64 `json:"availability_percentage"`
	TotalDowntimeMinutes   int     `json:"total_downtime_minutes"`
	IncidentCount          int     `json:"incident_count"`
	SLABreachDays          int     `json:"sla_breach_days"`
}

// SLACompliance is the availability compliance block of a report.
type SLACompliance struct {
	TargetAvailabilityPercentage float64 `json:"target_availability_percentage"`
	IsCompliant                  bool    `json:"is_compliant"`
	BreachDays                   int     `json:"breach_days"`
	CompliancePercentage         float64 `json:"compliance_percentage"`
}

// AvailabilityReport is the full availability rollup for a service over a
// date range.
type AvailabilityReport struct {
	ServiceID                     string              `json:"service_id"`
	RangeStart                    string              `json:"range_start"`
	RangeEnd                      string              `json:"range_end"`
	Uptime24h                     float64             `json:"uptime_24h"`
	Uptime7d                      float64             `json:"uptime_7d"`
	Uptime30d                     float64             `json:"uptime_30d"`
	OverallAvailabilityPercentage float64             `json:"overall_availability_percentage"`
	TotalDowntimeMinutes          int                 `json:"total_downtime_minutes"`
	TotalIncidents                int                 `json:"total_incidents"`
	MTTRMinutes                   float64             `json:"mttr_minutes"`
	MTBFHours                     float64             `json:"mtbf_hours"`
	DailyBreakdown                []DailyBreakdownEntry `json:"daily_breakdown"`
	MonthlySummary                []MonthlySummary      `json:"monthly_summary"`
	QuarterlySummary              []QuarterlySummary    `json:"quarterly_summary,omitempty"`
	SLA                           SLACompliance         `json:"sla"`
}

// DateFormat is the wire format for day-granularity dates.
const DateFormat = "2006-01-02"

// MonthFormat is the wire format for calendar months.
const MonthFormat = "2006-01"
