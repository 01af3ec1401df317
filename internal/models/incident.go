package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// IsValid reports whether the status is one of the known values.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusInvestigating, IncidentStatusIdentified, IncidentStatusMonitoring, IncidentStatusResolved:
		return true
	}
	return false
}

// IncidentSeverity classifies incident impact.
type IncidentSeverity string

const (
	IncidentSeverityMinor    IncidentSeverity = "minor"
	IncidentSeverityMajor    IncidentSeverity = "major"
	IncidentSeverityCritical IncidentSeverity = "critical"
)

// IsValid reports whether the severity is one of the known values.
func (s IncidentSeverity) IsValid() bool {
	switch s {
	case IncidentSeverityMinor, IncidentSeverityMajor, IncidentSeverityCritical:
		return true
	}
	return false
}

// Incident is a service incident tracked through its lifecycle.
type Incident struct {
	ID         uuid.UUID        `json:"id"`
	ServiceID  string           `json:"service_id"`
	Title      string           `json:"title"`
	Body       string           `json:"body,omitempty"`
	Status     IncidentStatus   `json:"status"`
	Severity   IncidentSeverity `json:"severity"`
	CreatedBy  string           `json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// NewIncident creates an incident in the investigating state.
func NewIncident(serviceID, title string, severity IncidentSeverity, createdBy string) *Incident {
	now := time.Now().UTC()
	return &Incident{
		ID:        uuid.New(),
		ServiceID: serviceID,
		Title:     title,
		Status:    IncidentStatusInvestigating,
		Severity:  severity,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsResolved reports whether the incident has been resolved.
func (i *Incident) IsResolved() bool {
	return i.Status == IncidentStatusResolved
}
