package db

import (
	"context"
	"fmt"
	"time"

	"github.com/pulseboard/pulseboard/internal/models"
)

// InsertResponseTimeSample appends one latency sample.
func (db *DB) InsertResponseTimeSample(ctx context.Context, sample *models.ResponseTimeSample) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO response_time_samples (
			service_id, endpoint, method, response_time_ms, timestamp, status_code
		) VALUES ($1, $2, $3, $4, $5, $6)
	`, sample.ServiceID, sample.Endpoint, sample.Method,
		sample.ResponseTimeMs, sample.Timestamp, sample.StatusCode)
	if err != nil {
		return fmt.Errorf("insert response time sample: %w", err)
	}
	return nil
}

// GetResponseTimeSamples returns all samples for a service in
// [start, end), ordered by timestamp ascending.
func (db *DB) GetResponseTimeSamples(ctx context.Context, serviceID string, start, end time.Time) ([]*models.ResponseTimeSample, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT service_id, endpoint, method, response_time_ms, timestamp, status_code
		FROM response_time_samples
		WHERE service_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC
	`, serviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query response time samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.ResponseTimeSample
	for rows.Next() {
		var sample models.ResponseTimeSample
		if err := rows.Scan(
			&sample.ServiceID, &sample.Endpoint, &sample.Method,
			&sample.ResponseTimeMs, &sample.Timestamp, &sample.StatusCode,
		); err != nil {
			return nil, fmt.Errorf("scan response time sample: %w", err)
		}
		samples = append(samples, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate response time samples: %w", err)
	}
	return samples, nil
}
