package consumer

import (
	"context"
	"fmt"
	"time"

	mqttcommon "iot-telemetry/common/mqtt"
	"iot-telemetry/internal/domain"
	"iot-telemetry/internal/metrics"

	"go.uber.org/zap"
)

const storeTimeout = 5 * time.Second

// Subscriber is the part of the MQTT client the consumer needs
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Ingester persists a raw payload for a protocol
type Ingester interface {
	Ingest(ctx context.Context, protocol domain.Protocol, payload []byte) (domain.Reading, error)
}

// MQTTConsumer feeds one topic into the ingest path. Messages that cannot be
// decoded or stored are logged and dropped; the broker is not told and the
// subscription keeps running.
type MQTTConsumer struct {
	topic      string
	qos        byte
	subscriber Subscriber
	ingester   Ingester
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewMQTTConsumer(
	topic string,
	qos byte,
	subscriber Subscriber,
	ingester Ingester,
	m *metrics.Metrics,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		topic:      topic,
		qos:        qos,
		subscriber: subscriber,
		ingester:   ingester,
		metrics:    m,
		logger:     logger,
	}
}

// Start subscribes and returns; delivery happens on the client's goroutine
func (c *MQTTConsumer) Start(_ context.Context) error {
	if err := c.subscriber.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return domain.TransportError("subscribe", fmt.Errorf("topic %s: %w", c.topic, err))
	}

	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))
	return nil
}

// Stop unsubscribes; errors are logged only
func (c *MQTTConsumer) Stop(_ context.Context) error {
	if err := c.subscriber.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.String("topic", c.topic), zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage always returns nil: a bad message is this layer's to drop
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if _, err := c.ingester.Ingest(ctx, domain.ProtocolMessaging, payload); err != nil {
		c.metrics.ObserveDropped()
		c.logger.Warn("Dropping MQTT message",
			zap.String("topic", topic),
			zap.ByteString("payload", truncate(payload, 256)),
			zap.Error(err),
		)
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
