package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Measure is a `{"value": <number>, "unit": ...}` leaf. Anything else decodes
// as an absent value instead of failing the whole payload.
type Measure struct {
	Value *float64
	Unit  string
}

func (m *Measure) UnmarshalJSON(data []byte) error {
	*m = Measure{}
	var raw struct {
		Value json.RawMessage `json:"value"`
		Unit  json.RawMessage `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// bare numbers are accepted as unit-less measures
		m.Value = parseNumber(data)
		return nil
	}
	m.Value = parseNumber(raw.Value)
	_ = json.Unmarshal(raw.Unit, &m.Unit)
	return nil
}

// Ptr returns the measured value or nil.
func (m Measure) Ptr() *float64 {
	return m.Value
}

func parseNumber(data json.RawMessage) *float64 {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return &f
		}
	}
	return nil
}

// Flag is a boolean leaf that falls back to false for non-boolean input.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		*f = false
		return nil
	}
	*f = Flag(b)
	return nil
}

// Text is a string leaf that falls back to "" for non-string input.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = ""
		return nil
	}
	*t = Text(s)
	return nil
}

// Or returns the text or fallback when empty.
func (t Text) Or(fallback string) string {
	if t == "" {
		return fallback
	}
	return string(t)
}

// decodeLenient fills dst as far as the payload allows. encoding/json keeps
// going after a type mismatch, so a string where an object is expected only
// leaves that group at its zero value.
func decodeLenient(payload json.RawMessage, dst any) {
	if len(payload) == 0 {
		return
	}
	_ = json.Unmarshal(payload, dst)
}
