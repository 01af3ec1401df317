package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulseboard/pulseboard/internal/models"
)

// CreateIncident creates a new incident.
func (db *DB) CreateIncident(ctx context.Context, incident *models.Incident) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO incidents (
			id, service_id, title, body, status, severity,
			created_by, created_at, updated_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, incident.ID, incident.ServiceID, incident.Title, incident.Body,
		string(incident.Status), string(incident.Severity),
		incident.CreatedBy, incident.CreatedAt, incident.UpdatedAt, incident.ResolvedAt)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// GetIncidentByID returns an incident by id, or nil if it does not exist.
func (db *DB) GetIncidentByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	var incident models.Incident
	var statusStr, severityStr string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, service_id, title, body, status, severity,
		       created_by, created_at, updated_at, resolved_at
		FROM incidents WHERE id = $1
	`, id).Scan(
		&incident.ID, &incident.ServiceID, &incident.Title, &incident.Body,
		&statusStr, &severityStr,
		&incident.CreatedBy, &incident.CreatedAt, &incident.UpdatedAt, &incident.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	incident.Status = models.IncidentStatus(statusStr)
	incident.Severity = models.IncidentSeverity(severityStr)
	return &incident, nil
}

// UpdateIncident persists changes to an incident.
func (db *DB) UpdateIncident(ctx context.Context, incident *models.Incident) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE incidents SET
			title = $2, body = $3, status = $4, severity = $5,
			updated_at = $6, resolved_at = $7
		WHERE id = $1
	`, incident.ID, incident.Title, incident.Body,
		string(incident.Status), string(incident.Severity),
		incident.UpdatedAt, incident.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// ListIncidentsByService returns incidents for a service, newest first.
func (db *DB) ListIncidentsByService(ctx context.Context, serviceID string, limit int) ([]*models.Incident, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, service_id, title, body, status, severity,
		       created_by, created_at, updated_at, resolved_at
		FROM incidents
		WHERE service_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		var incident models.Incident
		var statusStr, severityStr string
		if err := rows.Scan(
			&incident.ID, &incident.ServiceID, &incident.Title, &incident.Body,
			&statusStr, &severityStr,
			&incident.CreatedBy, &incident.CreatedAt, &incident.UpdatedAt, &incident.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incident.Status = models.IncidentStatus(statusStr)
		incident.Severity = models.IncidentSeverity(severityStr)
		incidents = append(incidents, &incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return incidents, nil
}
