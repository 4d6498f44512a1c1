package config

import (
	"fmt"
	"time"

	commoncfg "iot-telemetry/common/config"
	"iot-telemetry/internal/repository"

	"github.com/google/uuid"
)

// DefaultTopic is the topic the sensor firmware publishes to
const DefaultTopic = "iot/monitoramento/sensor"

// Config telemetry server configuration
type Config struct {
	HTTP struct {
		Addr string
	}

	Store struct {
		Driver     string // sqlite | postgres | memory
		SQLitePath string
	}
	Database commoncfg.DatabaseConfig

	MQTT struct {
		commoncfg.MQTTConfig
		Enabled bool
		Topic   string
		// 0 means a single attempt at startup
		RetryInterval time.Duration
	}

	Redis struct {
		commoncfg.RedisConfig
		Enabled bool
		Stream  string
		MaxLen  int64
	}

	Query struct {
		Window int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the environment, applying defaults
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = commoncfg.GetEnv("HTTP_ADDR", ":5000")

	cfg.Store.Driver = commoncfg.GetEnv("STORE_DRIVER", repository.DriverSQLite)
	cfg.Store.SQLitePath = commoncfg.GetEnv("SQLITE_PATH", "banco_telemetria.db")

	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "telemetria",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.MQTT.Enabled = commoncfg.GetEnvBool("MQTT_ENABLED", true)
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "telemetry-server-" + uuid.NewString()[:8]
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	cfg.MQTT.Topic = commoncfg.GetEnv("MQTT_TOPIC", DefaultTopic)
	cfg.MQTT.RetryInterval = commoncfg.GetEnvDuration("MQTT_RETRY_INTERVAL", 0)

	cfg.Redis.Enabled = commoncfg.GetEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.RedisConfig.LoadFromEnv("REDIS")
	cfg.Redis.Stream = commoncfg.GetEnv("REDIS_STREAM", "telemetry:readings:stream")
	cfg.Redis.MaxLen = int64(commoncfg.ParseInt(commoncfg.GetEnv("REDIS_STREAM_MAXLEN", "10000"), 10000))

	cfg.Query.Window = commoncfg.ParseInt(commoncfg.GetEnv("RECENT_WINDOW", "30"), 30)

	cfg.Log.Level = commoncfg.GetEnv("LOG_LEVEL", "info")
	cfg.Log.Format = commoncfg.GetEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case repository.DriverSQLite, repository.DriverPostgres, repository.DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Query.Window <= 0 {
		return fmt.Errorf("RECENT_WINDOW must be positive, got %d", c.Query.Window)
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT_TOPIC must not be empty")
	}
	if c.MQTT.RetryInterval < 0 {
		return fmt.Errorf("MQTT_RETRY_INTERVAL must not be negative")
	}
	return nil
}
