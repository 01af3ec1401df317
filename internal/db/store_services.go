package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pulseboard/pulseboard/internal/models"
)

// CreateService creates a monitored service.
func (db *DB) CreateService(ctx context.Context, service *models.Service) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO services (id, name, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, service.ID, service.Name, service.Description, string(service.Status),
		service.CreatedAt, service.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

// GetServiceByID returns a service by id, or nil if it does not exist.
func (db *DB) GetServiceByID(ctx context.Context, id string) (*models.Service, error) {
	var service models.Service
	var statusStr string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, description, status, created_at, updated_at
		FROM services WHERE id = $1
	`, id).Scan(
		&service.ID, &service.Name, &service.Description, &statusStr,
		&service.CreatedAt, &service.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	service.Status = models.ServiceStatus(statusStr)
	return &service, nil
}

// ServiceExists reports whether a service id is known.
func (db *DB) ServiceExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM services WHERE id = $1)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check service exists: %w", err)
	}
	return exists, nil
}

// ListServices returns all services ordered by name.
func (db *DB) ListServices(ctx context.Context) ([]*models.Service, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, description, status, created_at, updated_at
		FROM services ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		var service models.Service
		var statusStr string
		if err := rows.Scan(
			&service.ID, &service.Name, &service.Description, &statusStr,
			&service.CreatedAt, &service.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		service.Status = models.ServiceStatus(statusStr)
		services = append(services, &service)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return services, nil
}

// UpdateServiceStatus sets the live status of a service.
func (db *DB) UpdateServiceStatus(ctx context.Context, id string, status models.ServiceStatus) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE services SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	return nil
}
