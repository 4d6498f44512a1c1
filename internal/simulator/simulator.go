package simulator

import (
	"context"
	"time"

	"iot-telemetry/internal/domain"

	"go.uber.org/zap"
)

// DefaultInterval is the pause after every send
const DefaultInterval = 2 * time.Second

// Stats counts sends per protocol
type Stats struct {
	Sent   map[domain.Protocol]int
	Failed map[domain.Protocol]int
}

func (s Stats) total() int {
	n := 0
	for _, v := range s.Sent {
		n += v
	}
	for _, v := range s.Failed {
		n += v
	}
	return n
}

type route struct {
	protocol domain.Protocol
	sender   Sender
}

// Simulator alternates HTTP and MQTT sends at a fixed cadence. It only talks
// to the two ingress paths and never touches the store.
type Simulator struct {
	generator *Generator
	routes    []route
	interval  time.Duration
	maxSends  int
	logger    *zap.Logger
}

// New either sender may be nil to drive a single path. maxSends 0 runs until
// the context is cancelled.
func New(gen *Generator, httpSender, mqttSender Sender, interval time.Duration, maxSends int, logger *zap.Logger) *Simulator {
	var routes []route
	if httpSender != nil {
		routes = append(routes, route{protocol: domain.ProtocolHTTP, sender: httpSender})
	}
	if mqttSender != nil {
		routes = append(routes, route{protocol: domain.ProtocolMessaging, sender: mqttSender})
	}
	return &Simulator{
		generator: gen,
		routes:    routes,
		interval:  interval,
		maxSends:  maxSends,
		logger:    logger,
	}
}

// Run blocks until ctx is done or maxSends is reached. Send failures are
// logged and counted; they never stop the loop.
func (s *Simulator) Run(ctx context.Context) Stats {
	stats := Stats{
		Sent:   map[domain.Protocol]int{},
		Failed: map[domain.Protocol]int{},
	}
	if len(s.routes) == 0 {
		s.logger.Warn("No sender configured, nothing to do")
		return stats
	}

	s.logger.Info("Simulator started",
		zap.Duration("interval", s.interval),
		zap.Int("max_sends", s.maxSends),
	)

	for i := 0; ; i++ {
		if ctx.Err() != nil || (s.maxSends > 0 && stats.total() >= s.maxSends) {
			break
		}

		r := s.routes[i%len(s.routes)]
		s.sendOnce(ctx, r, stats)

		if !s.wait(ctx) {
			break
		}
	}

	s.logger.Info("Simulator stopped",
		zap.Int("http_sent", stats.Sent[domain.ProtocolHTTP]),
		zap.Int("mqtt_sent", stats.Sent[domain.ProtocolMessaging]),
		zap.Int("http_failed", stats.Failed[domain.ProtocolHTTP]),
		zap.Int("mqtt_failed", stats.Failed[domain.ProtocolMessaging]),
	)
	return stats
}

func (s *Simulator) sendOnce(ctx context.Context, r route, stats Stats) {
	sample := s.generator.Next(r.protocol)
	payload, err := sample.Payload()
	if err == nil {
		err = r.sender.Send(ctx, payload)
	}
	if err != nil {
		stats.Failed[r.protocol]++
		s.logger.Warn("Send failed",
			zap.String("protocol", string(r.protocol)),
			zap.Error(err),
		)
		return
	}

	stats.Sent[r.protocol]++
	s.logger.Info("Reading sent",
		zap.String("protocol", string(r.protocol)),
		zap.Float64("temperature", sample.Temperature),
		zap.Float64("humidity", sample.Humidity),
		zap.Float64("latency_ms", sample.LatencyMs),
	)
}

func (s *Simulator) wait(ctx context.Context) bool {
	if s.interval <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
