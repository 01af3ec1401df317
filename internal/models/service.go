package models

import "time"

// ServiceStatus represents the health state of a monitored service on a
// given day.
type ServiceStatus string

const (
	StatusOperational   ServiceStatus = "operational"
	StatusPartialOutage ServiceStatus = "partial_outage"
	StatusMajorOutage   ServiceStatus = "major_outage"
	StatusNoData        ServiceStatus = "no_data"
	StatusEmpty         ServiceStatus = "empty"
)

// IsValid reports whether the status is one of the known values.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case StatusOperational, StatusPartialOutage, StatusMajorOutage, StatusNoData, StatusEmpty:
		return true
	}
	return false
}

// IsObserved reports whether the status carries real measurement data.
// no_data and empty days are calendar placeholders and are excluded from
// availability denominators.
func (s ServiceStatus) IsObserved() bool {
	switch s {
	case StatusOperational, StatusPartialOutage, StatusMajorOutage:
		return true
	}
	return false
}

// Service is a monitored service on the status page.
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Status      ServiceStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
