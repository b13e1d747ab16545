package db

import (
	"context"
	"fmt"

	"github.com/mtzview/supervisorio/services/api/models"
)

const insertTelemetrySQL = `
    INSERT INTO telemetry_history (
      device_id, timestamp,
      temp_ambiente, temp_quadro_eletrico, temp_modulo_fotovoltaico, temp_transformador,
      comunicacao_ok, sistema_ativo, em_falha, alarme_ativo, emergencia_ativa,
      disjuntor_geral_status, servico_auxiliar_ok,
      reset_rasp, reset_link_3g, usina_gerando, dj_geral_fechado,
      data_quality
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`

// InsertControllerTelemetry appends one controller reading to telemetry_history.
func (s *Store) InsertControllerTelemetry(ctx context.Context, r *models.Reading) error {
	p := r.Controller()
	t := p.Sensors.Temperaturas
	st := p.Status

	_, err := s.conn.Exec(ctx, insertTelemetrySQL,
		r.DeviceID,
		r.Timestamp,
		t.Ambiente.Ptr(),
		t.QuadroEletrico.Ptr(),
		t.ModuloFotovoltaico.Ptr(),
		t.Transformador.Ptr(),
		bool(st.Operational.ComunicacaoOK),
		bool(st.Operational.SistemaAtivo),
		bool(st.Operational.EmFalha),
		bool(st.Operational.AlarmeAtivo),
		bool(st.Operational.EmergenciaAtiva),
		st.Electrical.DisjuntorGeralStatus.Or("ABERTO"),
		bool(st.Electrical.ServicoAuxiliarOK),
		bool(st.Outputs.ResetRasp),
		bool(st.Outputs.ResetLink3G),
		bool(st.Outputs.UsinaGerando),
		bool(st.Inputs.DJGeralFechado),
		p.Metadata.DataQuality.Or("unknown"),
	)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

const temperatureStatsSQL = `SELECT * FROM temperature_stats_24h`

// TemperatureStats returns the 24h temperature aggregates view.
func (s *Store) TemperatureStats(ctx context.Context) ([]Row, error) {
	return collectRows(s.conn.Query(ctx, temperatureStatsSQL))
}
