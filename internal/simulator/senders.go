package simulator

import (
	"context"
	"fmt"
	"time"

	"iot-telemetry/internal/domain"

	"github.com/go-resty/resty/v2"
)

// IngestPath is the HTTP write endpoint on the telemetry server
const IngestPath = "/dados_http"

// Sender delivers one encoded payload over a single protocol
type Sender interface {
	Send(ctx context.Context, payload []byte) error
}

// HTTPSender posts payloads to the server's write endpoint. Failed sends are
// not retried; the next tick is the retry.
type HTTPSender struct {
	client *resty.Client
}

func NewHTTPSender(baseURL string, timeout time.Duration) *HTTPSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPSender{client: client}
}

func (s *HTTPSender) Send(ctx context.Context, payload []byte) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(IngestPath)
	if err != nil {
		return domain.TransportError("post reading", err)
	}
	if resp.IsError() {
		return domain.TransportError("post reading",
			fmt.Errorf("server returned %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

// Publisher is the subset of the MQTT client the simulator needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSender publishes payloads to the fixed sensor topic
type MQTTSender struct {
	publisher Publisher
	topic     string
	qos       byte
}

func NewMQTTSender(publisher Publisher, topic string, qos byte) *MQTTSender {
	return &MQTTSender{publisher: publisher, topic: topic, qos: qos}
}

func (s *MQTTSender) Send(_ context.Context, payload []byte) error {
	if err := s.publisher.Publish(s.topic, s.qos, false, payload); err != nil {
		return domain.TransportError("publish reading", err)
	}
	return nil
}
