package models

import (
	"encoding/json"
	"time"
)

// DeviceClass separates the controller from the inverters; each class keeps
// its own snapshot and history.
type DeviceClass string

const (
	Controller DeviceClass = "controller"
	Inverter   DeviceClass = "inverter"
)

// Classes lists every tracked device class in a stable order.
var Classes = []DeviceClass{Controller, Inverter}

// Reading is one accepted telemetry sample. It is never modified after
// construction, so the same pointer is handed to the snapshot store, the
// persistence gateway and every live viewer.
type Reading struct {
	Class      DeviceClass
	DeviceID   string
	Timestamp  time.Time
	Payload    json.RawMessage
	Alerts     []Alert
	ReceivedAt time.Time
}

// MarshalJSON emits the payload exactly as it was received.
func (r *Reading) MarshalJSON() ([]byte, error) {
	if len(r.Payload) == 0 {
		return []byte("null"), nil
	}
	return r.Payload, nil
}

// Controller decodes the payload as a controller reading.
func (r *Reading) Controller() ControllerPayload {
	var p ControllerPayload
	decodeLenient(r.Payload, &p)
	return p
}

// Inverter decodes the payload as an inverter reading.
func (r *Reading) Inverter() InverterPayload {
	var p InverterPayload
	decodeLenient(r.Payload, &p)
	return p
}

// Alert is an upstream-evaluated alarm carried verbatim with the reading.
type Alert struct {
	Type           string   `json:"type"`
	Severity       string   `json:"severity"`
	Message        string   `json:"message"`
	Timestamp      string   `json:"timestamp,omitempty"`
	SensorName     string   `json:"sensor_name,omitempty"`
	Level          string   `json:"alert_level,omitempty"`
	MeasuredValue  *float64 `json:"measured_value,omitempty"`
	ThresholdValue *float64 `json:"threshold_value,omitempty"`
}

// DecodeAlerts pulls the alerts array out of a payload. Entries that are not
// objects are skipped.
func DecodeAlerts(payload json.RawMessage) []Alert {
	var envelope struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	decodeLenient(payload, &envelope)

	alerts := make([]Alert, 0, len(envelope.Alerts))
	for _, raw := range envelope.Alerts {
		var a Alert
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts
}
