package simulator

import (
	"math/rand"
	"sync"

	"iot-telemetry/internal/domain"
)

// Sampling ranges, inclusive
const (
	TempMin     = 20.0
	TempMax     = 30.0
	HumidityMin = 40.0
	HumidityMax = 70.0

	HTTPLatencyMin      = 15.0
	HTTPLatencyMax      = 45.0
	MessagingLatencyMin = 5.0
	MessagingLatencyMax = 15.0
)

// Sample is one synthetic sensor observation
type Sample struct {
	Temperature float64
	Humidity    float64
	LatencyMs   float64
}

// Generator draws samples; safe for concurrent use
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Next draws a sample whose latency follows the protocol's range
func (g *Generator) Next(protocol domain.Protocol) Sample {
	g.mu.Lock()
	defer g.mu.Unlock()

	latMin, latMax := HTTPLatencyMin, HTTPLatencyMax
	if protocol == domain.ProtocolMessaging {
		latMin, latMax = MessagingLatencyMin, MessagingLatencyMax
	}

	return Sample{
		Temperature: domain.Round2(g.uniform(TempMin, TempMax)),
		Humidity:    domain.Round2(g.uniform(HumidityMin, HumidityMax)),
		LatencyMs:   domain.Round2(g.uniform(latMin, latMax)),
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// Payload encodes the sample in the ingress wire format
func (s Sample) Payload() ([]byte, error) {
	return domain.EncodePayload(s.Temperature, s.Humidity, s.LatencyMs)
}
