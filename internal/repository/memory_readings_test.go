package repository

import (
	"context"
	"sync"
	"testing"

	"iot-telemetry/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_AppendAssignsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryReadingRepository()
	ctx := context.Background()

	first, err := repo.Append(ctx, domain.Reading{Temperature: 21.5, Humidity: 50, Protocol: domain.ProtocolHTTP, LatencyMs: 20})
	require.NoError(t, err)
	second, err := repo.Append(ctx, domain.Reading{Temperature: 22.5, Humidity: 51, Protocol: domain.ProtocolMessaging, LatencyMs: 8})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.False(t, second.Timestamp.IsZero())
}

func TestMemoryRepository_RecentIsOldestFirstAndBounded(t *testing.T) {
	repo := NewMemoryReadingRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.Append(ctx, domain.Reading{Temperature: float64(i), Protocol: domain.ProtocolHTTP})
		require.NoError(t, err)
	}

	recent, err := repo.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{recent[0].ID, recent[1].ID, recent[2].ID})

	all, err := repo.Recent(ctx, 30)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	none, err := repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRepository_ConcurrentAppendsNeverShareID(t *testing.T) {
	repo := NewMemoryReadingRepository()
	ctx := context.Background()

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		protocol := domain.ProtocolHTTP
		if w%2 == 1 {
			protocol = domain.ProtocolMessaging
		}
		wg.Add(1)
		go func(p domain.Protocol) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := repo.Append(ctx, domain.Reading{Protocol: p})
				assert.NoError(t, err)
			}
		}(protocol)
	}
	wg.Wait()

	all, err := repo.Recent(ctx, writers*perWriter)
	require.NoError(t, err)
	require.Len(t, all, writers*perWriter)

	seen := make(map[int64]bool, len(all))
	for i, r := range all {
		assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
		seen[r.ID] = true
		if i > 0 {
			assert.Less(t, all[i-1].ID, r.ID)
		}
	}

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), n)
}
