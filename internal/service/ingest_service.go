package service

import (
	"context"
	"errors"

	"iot-telemetry/internal/domain"
	"iot-telemetry/internal/metrics"
	"iot-telemetry/internal/repository"

	"go.uber.org/zap"
)

// ReadingPublisher receives every persisted reading. Failures are logged
// and never fail ingestion.
type ReadingPublisher interface {
	Publish(ctx context.Context, r domain.Reading) (string, error)
}

// IngestService is the write path shared by the HTTP handler and the MQTT
// consumer: decode, append, fan out, count.
type IngestService struct {
	repo      repository.ReadingRepository
	publisher ReadingPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewIngestService publisher and m may be nil
func NewIngestService(
	repo repository.ReadingRepository,
	publisher ReadingPublisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		repo:      repo,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Ingest decodes payload, tags it with protocol and persists it. Decoding
// failures match domain.ErrValidation, persistence failures domain.ErrStorage;
// nothing is stored on either.
func (s *IngestService) Ingest(ctx context.Context, protocol domain.Protocol, payload []byte) (domain.Reading, error) {
	reading, err := domain.DecodeReading(payload, protocol)
	if err != nil {
		s.metrics.ObserveFailure(protocol, metrics.ReasonValidation)
		return domain.Reading{}, err
	}
	return s.Store(ctx, reading)
}

// Store persists an already validated reading
func (s *IngestService) Store(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	stored, err := s.repo.Append(ctx, reading)
	if err != nil {
		s.metrics.ObserveFailure(reading.Protocol, metrics.ReasonStorage)
		s.logger.Error("Failed to persist reading",
			zap.String("protocol", string(reading.Protocol)),
			zap.Error(err),
		)
		if !errors.Is(err, domain.ErrStorage) {
			err = domain.StorageError("append reading", err)
		}
		return domain.Reading{}, err
	}

	s.metrics.ObserveIngested(stored)
	s.logger.Info("Reading stored",
		zap.String("protocol", string(stored.Protocol)),
		zap.Int64("id", stored.ID),
		zap.Float64("temperature", stored.Temperature),
		zap.Float64("humidity", stored.Humidity),
		zap.Float64("latency_ms", stored.LatencyMs),
	)

	if s.publisher != nil {
		if _, err := s.publisher.Publish(ctx, stored); err != nil {
			s.logger.Warn("Failed to fan out reading",
				zap.Int64("id", stored.ID),
				zap.Error(err),
			)
		}
	}

	return stored, nil
}
