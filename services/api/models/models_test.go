package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const controllerSample = `{
  "device_id": "CLP-01",
  "timestamp": "2024-01-01T00:00:00Z",
  "sensors": {"temperaturas": {
    "ambiente": {"value": 25.5, "unit": "C"},
    "quadro_eletrico": {"value": "31.25"},
    "modulo_fotovoltaico": "broken",
    "transformador": 40
  }},
  "status": {"operational": {"comunicacao_ok": true, "em_falha": "yes"},
             "electrical": {"disjuntor_geral_status": "FECHADO"}},
  "alerts": [{"type": "HH", "severity": "high", "message": "trafo hot"}, 7],
  "metadata": {"data_quality": "good"}
}`

func TestControllerPayloadIsLenient(t *testing.T) {
	r := &Reading{Payload: json.RawMessage(controllerSample)}
	p := r.Controller()

	temps := p.Temperatures()
	require.NotNil(t, temps["ambiente"])
	assert.Equal(t, 25.5, *temps["ambiente"])
	require.NotNil(t, temps["quadro"])
	assert.Equal(t, 31.25, *temps["quadro"])
	assert.Nil(t, temps["modulo"])
	require.NotNil(t, temps["trafo"])
	assert.Equal(t, 40.0, *temps["trafo"])

	ops := p.Operational()
	assert.True(t, ops["comunicacao_ok"])
	assert.False(t, ops["em_falha"])
	assert.Equal(t, "FECHADO", p.Status.Electrical.DisjuntorGeralStatus.Or("ABERTO"))
	assert.Equal(t, "good", p.Metadata.DataQuality.Or("unknown"))
}

func TestGroupTypeMismatchLeavesZeroValue(t *testing.T) {
	r := &Reading{Payload: json.RawMessage(`{"sensors": "n/a", "status": {"operational": {"sistema_ativo": true}}}`)}
	p := r.Controller()

	assert.Nil(t, p.Temperatures()["ambiente"])
	assert.True(t, p.Operational()["sistema_ativo"])
	assert.Equal(t, "ABERTO", p.Status.Electrical.DisjuntorGeralStatus.Or("ABERTO"))
}

func TestDecodeAlertsSkipsNonObjects(t *testing.T) {
	alerts := DecodeAlerts(json.RawMessage(controllerSample))
	require.Len(t, alerts, 1)
	assert.Equal(t, "HH", alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)

	assert.Empty(t, DecodeAlerts(json.RawMessage(`{"alerts": "none"}`)))
}

func TestInverterStrings(t *testing.T) {
	r := &Reading{Payload: json.RawMessage(`{
	  "power": {"active_power": {"value": 87.2}},
	  "pv_strings": {"PV_01_voltage": {"value": 610}, "PV_01_current": {"value": 9.1}, "PV_03_voltage": {"value": 598}}
	}`)}
	p := r.Inverter()

	strings, ok := p.Strings()
	require.True(t, ok)
	require.Len(t, strings, MaxPVStrings)
	assert.Equal(t, 610.0, *strings[0].Voltage)
	assert.Equal(t, 9.1, *strings[0].Current)
	assert.Nil(t, strings[1].Voltage)
	assert.Equal(t, 598.0, *strings[2].Voltage)
	assert.Equal(t, 87.2, *p.Summary()["active_power"])

	_, ok = (&Reading{Payload: json.RawMessage(`{"power": {}}`)}).Inverter().Strings()
	assert.False(t, ok)
}

func TestReadingMarshalsPayloadVerbatim(t *testing.T) {
	r := &Reading{Payload: json.RawMessage(`{"device_id":"CLP-01","x":1}`)}
	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_id":"CLP-01","x":1}`, string(out))
}
