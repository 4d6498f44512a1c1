package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iot-telemetry/common/logger"
	"iot-telemetry/internal/config"
	"iot-telemetry/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "telemetry-server")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	zl.Info("Starting telemetry server",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("mqtt_topic", cfg.MQTT.Topic),
	)

	telemetryService, err := service.NewTelemetryService(cfg, zl)
	if err != nil {
		zl.Fatal("Failed to create telemetry service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := telemetryService.Start(ctx); err != nil {
		zl.Fatal("Failed to start telemetry service", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zl.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-telemetryService.ServerErrors():
		zl.Error("HTTP server exited, shutting down", zap.Error(err))
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := telemetryService.Stop(stopCtx); err != nil {
		zl.Error("Error during shutdown", zap.Error(err))
	}

	zl.Info("Service stopped")
}
