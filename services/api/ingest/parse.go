package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/mtzview/supervisorio/services/api/models"
)

// ValidationError rejects a reading before it reaches any component.
type ValidationError struct {
	Field  string
	Reason string
	err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.err }

// IsValidation reports whether err rejects the input rather than signalling
// an internal failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type envelope struct {
	DeviceID  string `json:"device_id" binding:"required"`
	Timestamp string `json:"timestamp" binding:"required"`
}

var jsonFields = map[string]string{
	"DeviceID":  "device_id",
	"Timestamp": "timestamp",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Parse validates raw as a reading of class c. The payload is kept verbatim;
// only device_id and timestamp are required and checked.
func Parse(c models.DeviceClass, raw []byte) (*models.Reading, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, &ValidationError{Reason: "body must be a JSON object"}
	}
	if !json.Valid(raw) {
		return nil, &ValidationError{Reason: "body is not valid JSON"}
	}

	var env envelope
	if err := binding.JSON.BindBody(raw, &env); err != nil {
		return nil, bindError(err)
	}
	if strings.TrimSpace(env.DeviceID) == "" {
		return nil, &ValidationError{Field: "device_id", Reason: "is required"}
	}
	ts, ok := parseTimestamp(env.Timestamp)
	if !ok {
		return nil, &ValidationError{Field: "timestamp", Reason: fmt.Sprintf("invalid ISO-8601 timestamp %q", env.Timestamp)}
	}

	r := &models.Reading{
		Class:      c,
		DeviceID:   env.DeviceID,
		Timestamp:  ts,
		Payload:    json.RawMessage(raw),
		ReceivedAt: time.Now(),
	}
	if c == models.Controller {
		r.Alerts = models.DecodeAlerts(r.Payload)
	}
	return r, nil
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field, ok := jsonFields[fe.Field()]
		if !ok {
			field = fe.Field()
		}
		return &ValidationError{Field: field, Reason: "is " + fe.Tag(), err: err}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{Field: typeErr.Field, Reason: "must be a " + typeErr.Type.String(), err: err}
	}
	return &ValidationError{Reason: "body is not valid JSON", err: err}
}
