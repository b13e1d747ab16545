package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mtzview/supervisorio/services/api/models"
)

const insertInverterSQL = `
    INSERT INTO inverter_telemetry (
      device_id, timestamp,
      input_power, active_power, reactive_power, power_factor,
      line_voltage_ab, line_voltage_bc, line_voltage_ca,
      phase_a_voltage, phase_b_voltage, phase_c_voltage,
      phase_a_current, phase_b_current, phase_c_current,
      daily_yield_energy, accumulated_yield_energy,
      internal_temperature, grid_frequency,
      device_status, alarm_1, alarm_2, alarm_3,
      connection_type, data_quality, read_timestamp
    ) VALUES (
      $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
      $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
    ) RETURNING id
`

const insertPVStringsSQL = `
    INSERT INTO pv_strings_data (
      inverter_telemetry_id, timestamp,
      pv_01_voltage, pv_01_current,
      pv_02_voltage, pv_02_current,
      pv_03_voltage, pv_03_current,
      pv_04_voltage, pv_04_current
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func optionalText(t models.Text) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

// InsertInverterTelemetry writes the inverter summary row and its PV string
// row in one transaction and returns the generated summary id. On any error
// the transaction is rolled back and nothing is stored.
func (s *Store) InsertInverterTelemetry(ctx context.Context, r *models.Reading) (id int64, err error) {
	p := r.Inverter()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin inverter telemetry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	vc := p.VoltageCurrent
	err = tx.QueryRow(ctx, insertInverterSQL,
		r.DeviceID,
		r.Timestamp,
		p.Power.InputPower.Ptr(),
		p.Power.ActivePower.Ptr(),
		p.Power.ReactivePower.Ptr(),
		p.Power.PowerFactor.Ptr(),
		vc.LineVoltageAB.Ptr(),
		vc.LineVoltageBC.Ptr(),
		vc.LineVoltageCA.Ptr(),
		vc.PhaseAVoltage.Ptr(),
		vc.PhaseBVoltage.Ptr(),
		vc.PhaseCVoltage.Ptr(),
		vc.PhaseACurrent.Ptr(),
		vc.PhaseBCurrent.Ptr(),
		vc.PhaseCCurrent.Ptr(),
		p.Energy.DailyYield.Ptr(),
		p.Energy.AccumulatedYield.Ptr(),
		p.Temperature.Internal.Ptr(),
		p.Grid.Frequency.Ptr(),
		p.Status.DeviceStatus.Ptr(),
		p.Status.Alarm1.Ptr(),
		p.Status.Alarm2.Ptr(),
		p.Status.Alarm3.Ptr(),
		optionalText(p.Metadata.ConnectionType),
		optionalText(p.Metadata.DataQuality),
		optionalText(p.Metadata.ReadTimestamp),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert inverter telemetry: %w", err)
	}

	if pvs, ok := p.Strings(); ok {
		args := make([]any, 0, 2+2*len(pvs))
		args = append(args, id, r.Timestamp)
		for _, pv := range pvs {
			args = append(args, pv.Voltage, pv.Current)
		}
		if _, err = tx.Exec(ctx, insertPVStringsSQL, args...); err != nil {
			return 0, fmt.Errorf("insert pv strings: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit inverter telemetry: %w", err)
	}
	return id, nil
}

// LatestInverterData returns the latest row of every inverter.
func (s *Store) LatestInverterData(ctx context.Context) ([]Row, error) {
	return collectRows(s.conn.Query(ctx, `SELECT * FROM latest_inverter_data`))
}

// LatestInverterDevice returns the latest row for one inverter, or nil.
func (s *Store) LatestInverterDevice(ctx context.Context, deviceID string) (Row, error) {
	return collectOne(s.conn.Query(ctx, `SELECT * FROM latest_inverter_data WHERE device_id = $1`, deviceID))
}

// StatsQuery selects a window of aggregated inverter stats.
type StatsQuery struct {
	DeviceID string
	Window   int
}

// InverterHourlyStats returns hourly aggregates for the last q.Window hours.
func (s *Store) InverterHourlyStats(ctx context.Context, q StatsQuery) ([]Row, error) {
	sql, args := statsSQL("inverter_hourly_stats", "hour", "NOW() - make_interval(hours => $1)", q)
	return collectRows(s.conn.Query(ctx, sql, args...))
}

// InverterDailyStats returns daily aggregates for the last q.Window days.
func (s *Store) InverterDailyStats(ctx context.Context, q StatsQuery) ([]Row, error) {
	sql, args := statsSQL("inverter_daily_stats", "date", "CURRENT_DATE - make_interval(days => $1)", q)
	return collectRows(s.conn.Query(ctx, sql, args...))
}

func statsSQL(view, column, since string, q StatsQuery) (string, []any) {
	args := []any{q.Window}
	clause := " WHERE " + column + " >= " + since
	if q.DeviceID != "" {
		args = append(args, q.DeviceID)
		clause += " AND device_id = $" + strconv.Itoa(len(args))
	}
	return "SELECT * FROM " + view + clause + " ORDER BY " + column + " DESC", args
}

// InverterDevice is the registration record for one inverter.
type InverterDevice struct {
	DeviceID     string   `json:"device_id" binding:"required"`
	ModelName    *string  `json:"model_name"`
	SerialNumber *string  `json:"serial_number"`
	PN           *string  `json:"pn"`
	ModelID      *int32   `json:"model_id"`
	NbPVStrings  *int32   `json:"nb_pv_strings"`
	RatedPower   *float64 `json:"rated_power"`
}

const upsertInverterDeviceSQL = `
    INSERT INTO inverter_devices (
      device_id, model_name, serial_number, pn, model_id,
      nb_pv_strings, rated_power, is_active
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, true)
    ON CONFLICT (device_id)
    DO UPDATE SET
      model_name = EXCLUDED.model_name,
      updated_at = NOW()
    RETURNING *
`

// UpsertInverterDevice registers an inverter or refreshes its model name.
func (s *Store) UpsertInverterDevice(ctx context.Context, d InverterDevice) (Row, error) {
	return collectOne(s.conn.Query(ctx, upsertInverterDeviceSQL,
		d.DeviceID, d.ModelName, d.SerialNumber, d.PN, d.ModelID, d.NbPVStrings, d.RatedPower))
}

// ActiveInverters lists registered inverters that are still active.
func (s *Store) ActiveInverters(ctx context.Context) ([]Row, error) {
	return collectRows(s.conn.Query(ctx, `SELECT * FROM inverter_devices WHERE is_active = true ORDER BY device_id`))
}
