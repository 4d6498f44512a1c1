package repository

import (
	"context"
	"sync"
	"time"

	"iot-telemetry/internal/domain"
)

// MemoryReadingRepository keeps readings in process memory. Used when no
// database is reachable and in tests.
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings []domain.Reading
	nextID   int64
	now      func() time.Time
}

func NewMemoryReadingRepository() *MemoryReadingRepository {
	return &MemoryReadingRepository{now: time.Now}
}

var _ ReadingRepository = (*MemoryReadingRepository)(nil)

func (r *MemoryReadingRepository) Append(_ context.Context, reading domain.Reading) (domain.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	reading.ID = r.nextID
	if reading.Timestamp.IsZero() {
		reading.Timestamp = r.now()
	}
	r.readings = append(r.readings, reading)
	return reading, nil
}

func (r *MemoryReadingRepository) Recent(_ context.Context, limit int) ([]domain.Reading, error) {
	if limit <= 0 {
		return []domain.Reading{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	start := len(r.readings) - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Reading, len(r.readings)-start)
	copy(out, r.readings[start:])
	return out, nil
}

func (r *MemoryReadingRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.readings)), nil
}

func (r *MemoryReadingRepository) Close() error { return nil }
