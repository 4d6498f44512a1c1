package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Payload field names shared by the HTTP body and the MQTT message
const (
	FieldTemperature = "temp"
	FieldHumidity    = "umid"
	FieldLatency     = "latencia_ms"
)

// DecodeReading parses a JSON sensor payload into an unpersisted Reading
// tagged with protocol. Field names must match exactly (no case folding).
// It has no side effects. Every failure matches ErrValidation.
func DecodeReading(payload []byte, protocol Protocol) (Reading, error) {
	if !protocol.Valid() {
		return Reading{}, &FieldError{Field: "protocol", Reason: "unknown protocol " + string(protocol)}
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return Reading{}, &FieldError{Reason: "empty payload"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Reading{}, &FieldError{Reason: "payload must be a JSON object"}
		}
		return Reading{}, &FieldError{Reason: "invalid JSON: " + err.Error()}
	}
	if fields == nil {
		return Reading{}, &FieldError{Reason: "payload must be a JSON object"}
	}

	temp, err := numberField(fields, FieldTemperature)
	if err != nil {
		return Reading{}, err
	}
	humidity, err := numberField(fields, FieldHumidity)
	if err != nil {
		return Reading{}, err
	}
	latency, err := numberField(fields, FieldLatency)
	if err != nil {
		return Reading{}, err
	}

	return Reading{
		Temperature: temp,
		Humidity:    humidity,
		LatencyMs:   latency,
		Protocol:    protocol,
	}, nil
}

func numberField(fields map[string]json.RawMessage, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return 0, &FieldError{Field: name, Reason: "missing"}
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &FieldError{Field: name, Reason: "must be a number"}
	}
	return v, nil
}

// EncodePayload is the inverse of DecodeReading, used by load generators
func EncodePayload(temperature, humidity, latencyMs float64) ([]byte, error) {
	return json.Marshal(map[string]float64{
		FieldTemperature: temperature,
		FieldHumidity:    humidity,
		FieldLatency:     latencyMs,
	})
}
