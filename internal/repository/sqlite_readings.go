package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"iot-telemetry/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// leitura is the gorm row for the leituras table. Nullable columns are
// pointers so legacy rows with NULLs still load.
type leitura struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Temperatura *float64   `gorm:"column:temperatura"`
	Umidade     *float64   `gorm:"column:umidade"`
	Protocolo   string     `gorm:"column:protocolo;not null"`
	LatenciaMs  *float64   `gorm:"column:latencia_ms"`
	Timestamp   *time.Time `gorm:"column:timestamp"`
}

func (leitura) TableName() string { return "leituras" }

// leituraRow is the read shape. The timestamp is fetched as text because the
// driver reads zone-less values (the legacy datetime('now','localtime')
// default) as UTC; parseStoredTime reads them as local time instead.
type leituraRow struct {
	ID          int64          `gorm:"column:id"`
	Temperatura *float64       `gorm:"column:temperatura"`
	Umidade     *float64       `gorm:"column:umidade"`
	Protocolo   *string        `gorm:"column:protocolo"`
	LatenciaMs  *float64       `gorm:"column:latencia_ms"`
	Timestamp   sql.NullString `gorm:"column:timestamp"`
}

const selectRowColumns = "id, temperatura, umidade, protocolo, latencia_ms, CAST(timestamp AS TEXT) AS timestamp"

// Layouts written by go-sqlite3 (zoned) and by SQLite's datetime() (naive)
var (
	zonedLayouts = []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		time.RFC3339Nano,
	}
	naiveLayouts = []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
	}
)

// parseStoredTime returns the zero time for values it cannot read
func parseStoredTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if strings.HasSuffix(s, "Z") {
		if t, err := time.ParseInLocation(naiveLayouts[0], strings.TrimSuffix(s, "Z"), time.UTC); err == nil {
			return t
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SQLiteReadingRepository is the file-backed default store.
// SQLite allows one writer; writes are serialized by mu.
type SQLiteReadingRepository struct {
	db  *gorm.DB
	mu  sync.Mutex
	now func() time.Time
}

var _ ReadingRepository = (*SQLiteReadingRepository)(nil)

// NewSQLiteReadingRepository opens (or creates) the database file at path
// and migrates the leituras table.
func NewSQLiteReadingRepository(path string) (*SQLiteReadingRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&leitura{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate leituras: %w", err)
	}

	return &SQLiteReadingRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteReadingRepository) Append(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = r.now()
	}
	ts := reading.Timestamp
	temp, humidity, latency := reading.Temperature, reading.Humidity, reading.LatencyMs
	row := leitura{
		Temperatura: &temp,
		Umidade:     &humidity,
		Protocolo:   string(reading.Protocol),
		LatenciaMs:  &latency,
		Timestamp:   &ts,
	}

	r.mu.Lock()
	err := r.db.WithContext(ctx).Create(&row).Error
	r.mu.Unlock()
	if err != nil {
		return domain.Reading{}, domain.StorageError("insert reading", err)
	}

	reading.ID = row.ID
	return reading, nil
}

func (r *SQLiteReadingRepository) Recent(ctx context.Context, limit int) ([]domain.Reading, error) {
	if limit <= 0 {
		return []domain.Reading{}, nil
	}

	var rows []leituraRow
	err := r.db.WithContext(ctx).
		Model(&leitura{}).
		Select(selectRowColumns).
		Order("id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, domain.StorageError("query recent readings", err)
	}

	out := make([]domain.Reading, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	reverse(out)
	return out, nil
}

func (r *SQLiteReadingRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&leitura{}).Count(&n).Error; err != nil {
		return 0, domain.StorageError("count readings", err)
	}
	return n, nil
}

func (r *SQLiteReadingRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l leituraRow) toDomain() domain.Reading {
	reading := domain.Reading{ID: l.ID}
	if l.Protocolo != nil {
		reading.Protocol = domain.Protocol(*l.Protocolo)
	}
	if l.Temperatura != nil {
		reading.Temperature = *l.Temperatura
	}
	if l.Umidade != nil {
		reading.Humidity = *l.Umidade
	}
	if l.LatenciaMs != nil {
		reading.LatencyMs = *l.LatenciaMs
	}
	if l.Timestamp.Valid {
		reading.Timestamp = parseStoredTime(l.Timestamp.String)
	}
	return reading
}
