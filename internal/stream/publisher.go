package stream

import (
	"context"
	"fmt"
	"time"

	rediscommon "iot-telemetry/common/redis"
	"iot-telemetry/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ReadingEvent is the JSON document stored in the stream's "data" field
type ReadingEvent struct {
	EventID string             `json:"event_id"`
	Reading domain.ReadingView `json:"reading"`
}

// Publisher fans persisted readings out to a Redis stream so that other
// consumers (dashboards, exporters) can follow them live.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewPublisher(client *redis.Client, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish XADDs one reading and returns the stream entry ID
func (p *Publisher) Publish(ctx context.Context, r domain.Reading) (string, error) {
	event := ReadingEvent{
		EventID: uuid.NewString(),
		Reading: r.View(time.Now()),
	}
	id, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, event)
	if err != nil {
		return "", fmt.Errorf("failed to publish reading %d to %s: %w", r.ID, p.stream, err)
	}
	return id, nil
}

// Stream returns the configured stream key
func (p *Publisher) Stream() string {
	return p.stream
}
