package models

import "fmt"

// ControllerPayload is the typed view of a CLP reading as published by the
// Node-RED flow. Only the fields the pipeline stores are modelled.
type ControllerPayload struct {
	Sensors struct {
		Temperaturas struct {
			Ambiente           Measure `json:"ambiente"`
			QuadroEletrico     Measure `json:"quadro_eletrico"`
			ModuloFotovoltaico Measure `json:"modulo_fotovoltaico"`
			Transformador      Measure `json:"transformador"`
		} `json:"temperaturas"`
	} `json:"sensors"`
	Status   ControllerStatus `json:"status"`
	Metadata struct {
		DataQuality Text `json:"data_quality"`
	} `json:"metadata"`
}

// ControllerStatus groups the controller's digital points.
type ControllerStatus struct {
	Operational struct {
		ComunicacaoOK   Flag `json:"comunicacao_ok"`
		SistemaAtivo    Flag `json:"sistema_ativo"`
		EmFalha         Flag `json:"em_falha"`
		AlarmeAtivo     Flag `json:"alarme_ativo"`
		EmergenciaAtiva Flag `json:"emergencia_ativa"`
	} `json:"operational"`
	Electrical struct {
		DisjuntorGeralStatus Text `json:"disjuntor_geral_status"`
		ServicoAuxiliarOK    Flag `json:"servico_auxiliar_ok"`
	} `json:"electrical"`
	Outputs struct {
		ResetRasp    Flag `json:"reset_rasp"`
		ResetLink3G  Flag `json:"reset_link_3g"`
		UsinaGerando Flag `json:"usina_gerando"`
	} `json:"outputs"`
	Inputs struct {
		DJGeralFechado Flag `json:"dj_geral_fechado"`
	} `json:"inputs"`
}

// Temperatures returns the four temperature probes keyed by their short
// sensor names.
func (p ControllerPayload) Temperatures() map[string]*float64 {
	t := p.Sensors.Temperaturas
	return map[string]*float64{
		"ambiente": t.Ambiente.Ptr(),
		"quadro":   t.QuadroEletrico.Ptr(),
		"modulo":   t.ModuloFotovoltaico.Ptr(),
		"trafo":    t.Transformador.Ptr(),
	}
}

// Operational returns the operational status flags.
func (p ControllerPayload) Operational() map[string]bool {
	o := p.Status.Operational
	return map[string]bool{
		"comunicacao_ok":   bool(o.ComunicacaoOK),
		"sistema_ativo":    bool(o.SistemaAtivo),
		"em_falha":         bool(o.EmFalha),
		"alarme_ativo":     bool(o.AlarmeAtivo),
		"emergencia_ativa": bool(o.EmergenciaAtiva),
	}
}

// InverterPayload is the typed view of a SUN2000 reading posted by the
// inverter service.
type InverterPayload struct {
	Power struct {
		InputPower    Measure `json:"input_power"`
		ActivePower   Measure `json:"active_power"`
		ReactivePower Measure `json:"reactive_power"`
		PowerFactor   Measure `json:"power_factor"`
	} `json:"power"`
	VoltageCurrent struct {
		LineVoltageAB Measure `json:"line_voltage_A_B"`
		LineVoltageBC Measure `json:"line_voltage_B_C"`
		LineVoltageCA Measure `json:"line_voltage_C_A"`
		PhaseAVoltage Measure `json:"phase_A_voltage"`
		PhaseBVoltage Measure `json:"phase_B_voltage"`
		PhaseCVoltage Measure `json:"phase_C_voltage"`
		PhaseACurrent Measure `json:"phase_A_current"`
		PhaseBCurrent Measure `json:"phase_B_current"`
		PhaseCCurrent Measure `json:"phase_C_current"`
	} `json:"voltage_current"`
	Energy struct {
		DailyYield       Measure `json:"daily_yield_energy"`
		AccumulatedYield Measure `json:"accumulated_yield_energy"`
	} `json:"energy"`
	Temperature struct {
		Internal Measure `json:"internal_temperature"`
	} `json:"temperature"`
	Grid struct {
		Frequency Measure `json:"grid_frequency"`
	} `json:"grid"`
	Status struct {
		DeviceStatus Measure `json:"device_status"`
		Alarm1       Measure `json:"alarm_1"`
		Alarm2       Measure `json:"alarm_2"`
		Alarm3       Measure `json:"alarm_3"`
	} `json:"status"`
	PVStrings map[string]Measure `json:"pv_strings"`
	Metadata  struct {
		ConnectionType Text `json:"connection_type"`
		DataQuality    Text `json:"data_quality"`
		ReadTimestamp  Text `json:"read_timestamp"`
	} `json:"metadata"`
}

// PVString is one photovoltaic string's voltage/current pair.
type PVString struct {
	Index   int
	Voltage *float64
	Current *float64
}

// MaxPVStrings is the number of string columns in pv_strings_data.
const MaxPVStrings = 4

// Strings returns the PV string pairs 1..MaxPVStrings. ok is false when the
// reading carried no pv_strings group at all.
func (p InverterPayload) Strings() ([]PVString, bool) {
	if p.PVStrings == nil {
		return nil, false
	}
	out := make([]PVString, 0, MaxPVStrings)
	for i := 1; i <= MaxPVStrings; i++ {
		v := p.PVStrings[pvKey(i, "voltage")]
		c := p.PVStrings[pvKey(i, "current")]
		out = append(out, PVString{Index: i, Voltage: v.Ptr(), Current: c.Ptr()})
	}
	return out, true
}

func pvKey(i int, kind string) string {
	return fmt.Sprintf("PV_%02d_%s", i, kind)
}

// Summary returns the scalar fields kept in the inverter history ring.
func (p InverterPayload) Summary() map[string]*float64 {
	return map[string]*float64{
		"active_power":         p.Power.ActivePower.Ptr(),
		"input_power":          p.Power.InputPower.Ptr(),
		"daily_yield":          p.Energy.DailyYield.Ptr(),
		"internal_temperature": p.Temperature.Internal.Ptr(),
		"grid_frequency":       p.Grid.Frequency.Ptr(),
	}
}
