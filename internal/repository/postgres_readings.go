package repository

import (
	"context"
	"database/sql"
	"time"

	"iot-telemetry/internal/domain"
)

const createReadingsTablePostgres = `
	CREATE TABLE IF NOT EXISTS leituras (
		id          BIGSERIAL PRIMARY KEY,
		temperatura DOUBLE PRECISION,
		umidade     DOUBLE PRECISION,
		protocolo   TEXT NOT NULL,
		latencia_ms DOUBLE PRECISION,
		timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// PostgresReadingRepository stores readings in the leituras table.
// id comes from a BIGSERIAL sequence, so concurrent inserts never collide.
type PostgresReadingRepository struct {
	db *sql.DB
}

func NewPostgresReadingRepository(db *sql.DB) *PostgresReadingRepository {
	return &PostgresReadingRepository{db: db}
}

var _ ReadingRepository = (*PostgresReadingRepository)(nil)

// EnsureSchema creates the leituras table if it does not exist
func (r *PostgresReadingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createReadingsTablePostgres); err != nil {
		return domain.StorageError("create leituras table", err)
	}
	return nil
}

func (r *PostgresReadingRepository) Append(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	var ts sql.NullTime
	if !reading.Timestamp.IsZero() {
		ts = sql.NullTime{Time: reading.Timestamp, Valid: true}
	}

	query := `
		INSERT INTO leituras (temperatura, umidade, protocolo, latencia_ms, timestamp)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
		RETURNING id, timestamp
	`
	var stored time.Time
	err := r.db.QueryRowContext(ctx, query,
		reading.Temperature,
		reading.Humidity,
		string(reading.Protocol),
		reading.LatencyMs,
		ts,
	).Scan(&reading.ID, &stored)
	if err != nil {
		return domain.Reading{}, domain.StorageError("insert reading", err)
	}
	reading.Timestamp = stored
	return reading, nil
}

func (r *PostgresReadingRepository) Recent(ctx context.Context, limit int) ([]domain.Reading, error) {
	if limit <= 0 {
		return []domain.Reading{}, nil
	}

	query := `
		SELECT id, temperatura, umidade, protocolo, latencia_ms, timestamp
		FROM leituras
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, domain.StorageError("query recent readings", err)
	}
	defer rows.Close()

	out := make([]domain.Reading, 0, limit)
	for rows.Next() {
		var (
			reading                 domain.Reading
			temp, humidity, latency sql.NullFloat64
			protocol                sql.NullString
			ts                      sql.NullTime
		)
		if err := rows.Scan(&reading.ID, &temp, &humidity, &protocol, &latency, &ts); err != nil {
			return nil, domain.StorageError("scan reading", err)
		}
		// NULL columns read as zero values; View() fills the timestamp
		reading.Temperature = temp.Float64
		reading.Humidity = humidity.Float64
		reading.LatencyMs = latency.Float64
		reading.Protocol = domain.Protocol(protocol.String)
		if ts.Valid {
			reading.Timestamp = ts.Time
		}
		out = append(out, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("iterate readings", err)
	}

	reverse(out)
	return out, nil
}

func (r *PostgresReadingRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leituras`).Scan(&n); err != nil {
		return 0, domain.StorageError("count readings", err)
	}
	return n, nil
}

func (r *PostgresReadingRepository) Close() error {
	return r.db.Close()
}
