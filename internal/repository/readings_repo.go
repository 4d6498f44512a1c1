package repository

import (
	"context"

	"iot-telemetry/internal/domain"
)

// ReadingRepository is the append-only store of readings.
//
// Append assigns ID (strictly increasing) and, when r.Timestamp is zero, the
// timestamp; it returns the stored copy. It must be safe for concurrent use.
// Recent returns up to limit of the newest readings ordered by ID ascending.
// Failures match domain.ErrStorage.
type ReadingRepository interface {
	Append(ctx context.Context, r domain.Reading) (domain.Reading, error)
	Recent(ctx context.Context, limit int) ([]domain.Reading, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Driver names accepted by STORE_DRIVER
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// reverse flips a newest-first slice in place
func reverse(readings []domain.Reading) {
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
}
