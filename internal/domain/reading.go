package domain

import (
	"math"
	"time"
)

// Protocol identifies the ingress path that produced a Reading
type Protocol string

const (
	ProtocolHTTP      Protocol = "HTTP"
	ProtocolMessaging Protocol = "MESSAGING"
)

// Valid reports whether p is one of the known ingress tags
func (p Protocol) Valid() bool {
	return p == ProtocolHTTP || p == ProtocolMessaging
}

// Reading is one observation. ID and Timestamp are assigned by the
// repository on Append; a persisted Reading is never modified.
type Reading struct {
	ID          int64
	Temperature float64
	Humidity    float64
	Protocol    Protocol
	LatencyMs   float64
	Timestamp   time.Time
}

// TimestampLayout matches the format the dashboard parses
const TimestampLayout = "2006-01-02 15:04:05"

// ReadingView is the wire shape of the recent-window endpoint
type ReadingView struct {
	ID          int64   `json:"id"`
	Temperatura float64 `json:"temperatura"`
	Umidade     float64 `json:"umidade"`
	Protocolo   string  `json:"protocolo"`
	LatenciaMs  float64 `json:"latencia_ms"`
	Timestamp   string  `json:"timestamp"`
}

// View normalizes r for consumers: two-decimal rounding and a non-empty
// timestamp (now is used when the stored one is missing).
func (r Reading) View(now time.Time) ReadingView {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return ReadingView{
		ID:          r.ID,
		Temperatura: Round2(r.Temperature),
		Umidade:     Round2(r.Humidity),
		Protocolo:   string(r.Protocol),
		LatenciaMs:  Round2(r.LatencyMs),
		Timestamp:   ts.Local().Format(TimestampLayout),
	}
}

// Round2 rounds half away from zero to two decimal places; NaN and Inf map to 0
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
