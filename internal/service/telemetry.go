package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"iot-telemetry/common/database"
	mqttcommon "iot-telemetry/common/mqtt"
	rediscommon "iot-telemetry/common/redis"
	"iot-telemetry/internal/config"
	"iot-telemetry/internal/consumer"
	"iot-telemetry/internal/domain"
	httpapi "iot-telemetry/internal/http"
	"iot-telemetry/internal/metrics"
	"iot-telemetry/internal/repository"
	"iot-telemetry/internal/stream"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TelemetryService owns every long-lived resource of the server process:
// the store, the optional Redis fan-out, the HTTP server and the MQTT
// subscription. A broker that cannot be reached leaves the service running
// with messaging ingestion disabled.
type TelemetryService struct {
	config  *config.Config
	logger  *zap.Logger
	repo    repository.ReadingRepository
	driver  string
	redis   *redis.Client
	metrics *metrics.Metrics
	ingest  *IngestService
	query   *QueryService
	handler http.Handler
	server  *Server

	serverErr chan error
	wg        sync.WaitGroup

	// mu guards the MQTT handles and stopping. A connect that completes
	// after Stop has begun is torn down instead of installed.
	mu         sync.Mutex
	stopping   bool
	mqttClient *mqttcommon.Client
	consumer   *consumer.MQTTConsumer
}

var errStopping = errors.New("service is stopping")

func NewTelemetryService(cfg *config.Config, logger *zap.Logger) (*TelemetryService, error) {
	repo, driver := openRepository(cfg, logger)

	var publisher ReadingPublisher
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		client, err := rediscommon.Connect(context.Background(), &cfg.Redis.RedisConfig)
		if err != nil {
			logger.Warn("Redis enabled but unreachable, stream fan-out disabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err),
			)
		} else {
			redisClient = client
			publisher = stream.NewPublisher(redisClient, cfg.Redis.Stream, cfg.Redis.MaxLen)
			logger.Info("Redis stream fan-out enabled", zap.String("stream", cfg.Redis.Stream))
		}
	}

	m := metrics.New()
	ingest := NewIngestService(repo, publisher, m, logger)
	query := NewQueryService(repo, cfg.Query.Window)

	s := &TelemetryService{
		config:    cfg,
		logger:    logger,
		repo:      repo,
		driver:    driver,
		redis:     redisClient,
		metrics:   m,
		ingest:    ingest,
		query:     query,
		serverErr: make(chan error, 1),
	}

	router := httpapi.NewRouter(logger)
	router.RegisterReadingRoutes(httpapi.NewReadingsHandler(ingest, query, logger))
	router.RegisterOpsRoutes(httpapi.NewHealthHandler(s.MQTTConnected, driver), m.Handler())
	s.handler = router.Handler()
	s.server = NewServer(cfg.HTTP.Addr, s.handler, logger)

	return s, nil
}

// openRepository falls back to memory when the configured store is unavailable
func openRepository(cfg *config.Config, logger *zap.Logger) (repository.ReadingRepository, string) {
	switch cfg.Store.Driver {
	case repository.DriverPostgres:
		db, err := database.NewPostgresDB(&cfg.Database)
		if err == nil {
			repo := repository.NewPostgresReadingRepository(db)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err = repo.EnsureSchema(ctx)
			cancel()
			if err == nil {
				logger.Info("Using Postgres store", zap.String("host", cfg.Database.Host))
				return repo, repository.DriverPostgres
			}
			database.Close(db)
		}
		logger.Warn("Postgres store unavailable, falling back to memory", zap.Error(err))

	case repository.DriverSQLite:
		repo, err := repository.NewSQLiteReadingRepository(cfg.Store.SQLitePath)
		if err == nil {
			logger.Info("Using SQLite store", zap.String("path", cfg.Store.SQLitePath))
			return repo, repository.DriverSQLite
		}
		logger.Warn("SQLite store unavailable, falling back to memory", zap.Error(err))
	}

	return repository.NewMemoryReadingRepository(), repository.DriverMemory
}

// Start launches the HTTP server and, if enabled, the MQTT subscription.
// It does not block.
func (s *TelemetryService) Start(ctx context.Context) error {
	s.logger.Info("Starting telemetry service components", zap.String("store", s.driver))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Start(); err != nil {
			s.logger.Error("HTTP server failed", zap.Error(err))
			s.serverErr <- err
		}
	}()

	if !s.config.MQTT.Enabled {
		s.logger.Info("MQTT ingestion disabled by configuration")
		return nil
	}

	if err := s.connectMQTT(ctx); err != nil {
		s.logger.Warn("MQTT broker unavailable, running degraded (HTTP only)",
			zap.String("broker", s.config.MQTT.Broker),
			zap.Error(err),
		)
		if s.config.MQTT.RetryInterval > 0 {
			s.wg.Add(1)
			go s.retryMQTT(ctx)
		}
	}

	return nil
}

// ServerErrors reports a failure of the HTTP listener
func (s *TelemetryService) ServerErrors() <-chan error {
	return s.serverErr
}

func (s *TelemetryService) connectMQTT(ctx context.Context) error {
	client, err := mqttcommon.NewClient(&s.config.MQTT.MQTTConfig, s.logger)
	if err != nil {
		return domain.TransportError("connect", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping || ctx.Err() != nil {
		client.Disconnect()
		return domain.TransportError("connect", errStopping)
	}

	c := consumer.NewMQTTConsumer(s.config.MQTT.Topic, s.config.MQTT.QoS, client, s.ingest, s.metrics, s.logger)
	if err := c.Start(ctx); err != nil {
		client.Disconnect()
		return err
	}

	s.mqttClient = client
	s.consumer = c

	s.logger.Info("MQTT broker connected", zap.String("broker", s.config.MQTT.Broker))
	return nil
}

func (s *TelemetryService) retryMQTT(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.MQTT.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.connectMQTT(ctx)
			if err == nil || errors.Is(err, errStopping) {
				return
			}
			s.logger.Warn("MQTT reconnect attempt failed", zap.Error(err))
		}
	}
}

// MQTTConnected reports whether messaging ingestion is live
func (s *TelemetryService) MQTTConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mqttClient != nil && s.mqttClient.IsConnected()
}

// Handler exposes the HTTP handler tree
func (s *TelemetryService) Handler() http.Handler {
	return s.handler
}

// Store returns the active store driver name
func (s *TelemetryService) Store() string {
	return s.driver
}

// Stop unsubscribes, disconnects and closes in reverse start order.
// The caller should cancel the Start context first. If ctx expires while a
// background connect is still in flight, Stop returns ctx's error; that
// connect is discarded when it completes.
func (s *TelemetryService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping telemetry service")

	s.mu.Lock()
	s.stopping = true
	c, client := s.consumer, s.mqttClient
	s.consumer, s.mqttClient = nil, nil
	s.mu.Unlock()

	if c != nil {
		if err := c.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}
	if client != nil {
		client.Disconnect()
	}

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}
	waitErr := s.waitBackground(ctx)
	if waitErr != nil {
		s.logger.Warn("Background tasks still running at shutdown", zap.Error(waitErr))
	}

	if s.redis != nil {
		rediscommon.Close(s.redis)
	}
	if err := s.repo.Close(); err != nil {
		s.logger.Error("Error closing store", zap.Error(err))
	}

	s.logger.Info("Telemetry service stopped")
	return waitErr
}

func (s *TelemetryService) waitBackground(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
