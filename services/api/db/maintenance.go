package db

import (
	"context"
	"fmt"
)

// The retention window for durable history is owned by these stored
// procedures, not by the service.

// CleanupOldTelemetry runs cleanup_old_telemetry().
func (s *Store) CleanupOldTelemetry(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, `SELECT cleanup_old_telemetry()`); err != nil {
		return fmt.Errorf("cleanup telemetry: %w", err)
	}
	return nil
}

// CleanupOldInverterData runs cleanup_old_inverter_data().
func (s *Store) CleanupOldInverterData(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, `SELECT cleanup_old_inverter_data()`); err != nil {
		return fmt.Errorf("cleanup inverter data: %w", err)
	}
	return nil
}

// RetentionCounts reports how many rows the cleanup procedures would remove.
// Used by the maintenance job's dry run.
func (s *Store) RetentionCounts(ctx context.Context) (telemetry, inverter int64, err error) {
	err = s.conn.QueryRow(ctx, `
    SELECT
      (SELECT COUNT(*) FROM telemetry_history WHERE timestamp < NOW() - INTERVAL '90 days'),
      (SELECT COUNT(*) FROM inverter_telemetry WHERE timestamp < NOW() - INTERVAL '90 days')
`).Scan(&telemetry, &inverter)
	if err != nil {
		return 0, 0, fmt.Errorf("count expired rows: %w", err)
	}
	return telemetry, inverter, nil
}
