package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mtzview/supervisorio/services/api/models"
)

const insertAlertSQL = `
    INSERT INTO alert_history (
      device_id, sensor_name, alert_level, severity,
      measured_value, threshold_value, message, triggered_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// InsertAlerts appends alerts to alert_history in a single round trip.
// Alerts without their own timestamp are stamped with fallback.
func (s *Store) InsertAlerts(ctx context.Context, deviceID string, fallback time.Time, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range alerts {
		triggered := fallback
		if ts, err := time.Parse(time.RFC3339, a.Timestamp); err == nil {
			triggered = ts
		}
		batch.Queue(insertAlertSQL,
			deviceID, a.SensorName, a.Level, a.Severity,
			a.MeasuredValue, a.ThresholdValue, a.Message, triggered)
	}

	br := s.conn.SendBatch(ctx, batch)
	defer br.Close()
	for range alerts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}
	return nil
}

// AlertPreferences returns the active threshold configuration per sensor.
func (s *Store) AlertPreferences(ctx context.Context) ([]Row, error) {
	return collectRows(s.conn.Query(ctx, `SELECT * FROM alert_preferences WHERE is_active = true`))
}

// AlertPreferenceUpdate is a partial update; nil fields keep their stored value.
type AlertPreferenceUpdate struct {
	ThresholdHH     *float64 `json:"threshold_hh"`
	ThresholdH      *float64 `json:"threshold_h"`
	ThresholdL      *float64 `json:"threshold_l"`
	ThresholdLL     *float64 `json:"threshold_ll"`
	EnableHH        *bool    `json:"enable_hh"`
	EnableH         *bool    `json:"enable_h"`
	EnableL         *bool    `json:"enable_l"`
	EnableLL        *bool    `json:"enable_ll"`
	Hysteresis      *float64 `json:"hysteresis"`
	CooldownSeconds *int32   `json:"cooldown_seconds"`
	IsActive        *bool    `json:"is_active"`
}

const updateAlertPreferencesSQL = `
    UPDATE alert_preferences
    SET
      threshold_hh = COALESCE($2, threshold_hh),
      threshold_h = COALESCE($3, threshold_h),
      threshold_l = COALESCE($4, threshold_l),
      threshold_ll = COALESCE($5, threshold_ll),
      enable_hh = COALESCE($6, enable_hh),
      enable_h = COALESCE($7, enable_h),
      enable_l = COALESCE($8, enable_l),
      enable_ll = COALESCE($9, enable_ll),
      hysteresis = COALESCE($10, hysteresis),
      cooldown_seconds = COALESCE($11, cooldown_seconds),
      is_active = COALESCE($12, is_active)
    WHERE sensor_name = $1
    RETURNING *
`

// UpdateAlertPreferences applies u to the sensor's preferences. It returns
// nil when the sensor has no preferences row.
func (s *Store) UpdateAlertPreferences(ctx context.Context, sensor string, u AlertPreferenceUpdate) (Row, error) {
	return collectOne(s.conn.Query(ctx, updateAlertPreferencesSQL,
		sensor,
		u.ThresholdHH, u.ThresholdH, u.ThresholdL, u.ThresholdLL,
		u.EnableHH, u.EnableH, u.EnableL, u.EnableLL,
		u.Hysteresis, u.CooldownSeconds, u.IsActive,
	))
}

// ActiveAlerts returns unresolved alerts.
func (s *Store) ActiveAlerts(ctx context.Context) ([]Row, error) {
	return collectRows(s.conn.Query(ctx, `SELECT * FROM active_alerts`))
}

// AcknowledgeAlert marks an alert acknowledged. It returns nil for an unknown id.
func (s *Store) AcknowledgeAlert(ctx context.Context, id int64) (Row, error) {
	return collectOne(s.conn.Query(ctx, `
    UPDATE alert_history
    SET is_acknowledged = true, acknowledged_at = NOW()
    WHERE id = $1
    RETURNING *
`, id))
}

// ResolveAlert closes an alert. It returns nil for an unknown id.
func (s *Store) ResolveAlert(ctx context.Context, id int64) (Row, error) {
	return collectOne(s.conn.Query(ctx, `
    UPDATE alert_history
    SET is_active = false, resolved_at = NOW()
    WHERE id = $1
    RETURNING *
`, id))
}
