package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"iot-telemetry/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestPublisher_PublishAppendsToStream(t *testing.T) {
	_, client := setupTestRedis(t)
	pub := NewPublisher(client, "telemetry:readings:stream", 0)
	ctx := context.Background()

	id, err := pub.Publish(ctx, domain.Reading{
		ID:          12,
		Temperature: 22.004,
		Humidity:    60,
		Protocol:    domain.ProtocolMessaging,
		LatencyMs:   8,
		Timestamp:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.Local),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	entries, err := client.XRange(ctx, "telemetry:readings:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, ok := entries[0].Values["data"].(string)
	require.True(t, ok)

	var event ReadingEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, int64(12), event.Reading.ID)
	assert.Equal(t, 22.0, event.Reading.Temperatura)
	assert.Equal(t, "MESSAGING", event.Reading.Protocolo)
	assert.Equal(t, "2026-05-01 12:00:00", event.Reading.Timestamp)
	assert.NotEmpty(t, entries[0].Values["timestamp"])
}

func TestPublisher_PublishFailsWhenRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	pub := NewPublisher(client, "telemetry:readings:stream", 0)
	mr.Close()

	_, err := pub.Publish(context.Background(), domain.Reading{ID: 1, Protocol: domain.ProtocolHTTP})
	assert.Error(t, err)
}
