package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pulseboard/pulseboard/internal/models"
)

// UpsertUptimeRecord inserts or replaces the record for (service, day).
// Records stay mutable intra-day; the upsert makes ingestion idempotent.
func (db *DB) UpsertUptimeRecord(ctx context.Context, record *models.UptimeRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO uptime_records (
			service_id, date, status, uptime_percentage, downtime_minutes, incident_count
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (service_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			uptime_percentage = EXCLUDED.uptime_percentage,
			downtime_minutes = EXCLUDED.downtime_minutes,
			incident_count = EXCLUDED.incident_count
	`, record.ServiceID, record.Date, string(record.Status),
		record.UptimePercentage, record.DowntimeMinutes, record.IncidentCount)
	if err != nil {
		return fmt.Errorf("upsert uptime record: %w", err)
	}
	return nil
}

// GetUptimeRecord returns the record for (service, day), or nil if none.
func (db *DB) GetUptimeRecord(ctx context.Context, serviceID string, day time.Time) (*models.UptimeRecord, error) {
	var record models.UptimeRecord
	var statusStr string
	err := db.Pool.QueryRow(ctx, `
		SELECT service_id, date, status, uptime_percentage, downtime_minutes, incident_count
		FROM uptime_records
		WHERE service_id = $1 AND date = $2
	`, serviceID, day).Scan(
		&record.ServiceID, &record.Date, &statusStr,
		&record.UptimePercentage, &record.DowntimeMinutes, &record.IncidentCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get uptime record: %w", err)
	}
	record.Status = models.ServiceStatus(statusStr)
	return &record, nil
}

// GetUptimeRecords returns all records for a service between start and end
// inclusive, ordered by date ascending.
func (db *DB) GetUptimeRecords(ctx context.Context, serviceID string, start, end time.Time) ([]*models.UptimeRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT service_id, date, status, uptime_percentage, downtime_minutes, incident_count
		FROM uptime_records
		WHERE service_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`, serviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query uptime records: %w", err)
	}
	defer rows.Close()

	var records []*models.UptimeRecord
	for rows.Next() {
		var record models.UptimeRecord
		var statusStr string
		if err := rows.Scan(
			&record.ServiceID, &record.Date, &statusStr,
			&record.UptimePercentage, &record.DowntimeMinutes, &record.IncidentCount,
		); err != nil {
			return nil, fmt.Errorf("scan uptime record: %w", err)
		}
		record.Status = models.ServiceStatus(statusStr)
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uptime records: %w", err)
	}
	return records, nil
}
