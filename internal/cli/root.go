package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commoncfg "iot-telemetry/common/config"
	"iot-telemetry/common/logger"
	mqttcommon "iot-telemetry/common/mqtt"
	"iot-telemetry/internal/config"
	"iot-telemetry/internal/simulator"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	serverURL string
	broker    string
	topic     string
	qos       int
	interval  time.Duration
	timeout   time.Duration
	count     int
	seed      int64
	skipHTTP  bool
	skipMQTT  bool
	logLevel  string
}

// Execute runs the simulator command
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "telemetry-simulator",
		Short: "Synthetic sensor load for the telemetry server",
		Long: `Sends synthetic temperature/humidity readings alternately over HTTP and MQTT
at a fixed cadence, so both ingress paths collect comparable latency samples.

Examples:
  telemetry-simulator
  telemetry-simulator --interval 500ms --count 100
  telemetry-simulator --skip-mqtt --server-url http://10.0.0.5:5000`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.serverURL, "server-url", commoncfg.GetEnv("SIM_SERVER_URL", "http://localhost:5000"), "telemetry server base URL")
	f.StringVar(&opts.broker, "broker", commoncfg.GetEnv("MQTT_BROKER", "tcp://localhost:1883"), "MQTT broker URL")
	f.StringVar(&opts.topic, "topic", commoncfg.GetEnv("MQTT_TOPIC", config.DefaultTopic), "MQTT topic")
	f.IntVar(&opts.qos, "qos", commoncfg.ParseInt(commoncfg.GetEnv("MQTT_QOS", "0"), 0), "MQTT QoS (0-2)")
	f.DurationVar(&opts.interval, "interval", commoncfg.GetEnvDuration("SIM_INTERVAL", simulator.DefaultInterval), "pause after each send")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Second, "HTTP request timeout")
	f.IntVar(&opts.count, "count", 0, "stop after this many sends (0 runs until interrupted)")
	f.Int64Var(&opts.seed, "seed", 0, "random seed (0 uses the current time)")
	f.BoolVar(&opts.skipHTTP, "skip-http", false, "do not send over HTTP")
	f.BoolVar(&opts.skipMQTT, "skip-mqtt", false, "do not publish over MQTT")
	f.StringVar(&opts.logLevel, "log-level", commoncfg.GetEnv("LOG_LEVEL", "info"), "debug, info, warn or error")

	return cmd
}

func run(parent context.Context, opts *options) error {
	if opts.qos < 0 || opts.qos > 2 {
		return fmt.Errorf("--qos must be 0, 1 or 2, got %d", opts.qos)
	}
	if opts.count < 0 {
		return fmt.Errorf("--count must not be negative")
	}

	zl, err := logger.NewLogger(opts.logLevel, "console", "telemetry-simulator")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer zl.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var httpSender, mqttSender simulator.Sender
	if !opts.skipHTTP {
		httpSender = simulator.NewHTTPSender(opts.serverURL, opts.timeout)
	}
	if !opts.skipMQTT {
		client, err := mqttcommon.NewClient(&commoncfg.MQTTConfig{
			Broker:   opts.broker,
			ClientID: "telemetry-simulator-" + uuid.NewString()[:8],
			Username: commoncfg.GetEnv("MQTT_USERNAME", ""),
			Password: commoncfg.GetEnv("MQTT_PASSWORD", ""),
			QoS:      byte(opts.qos),
		}, zl)
		if err != nil {
			zl.Warn("MQTT broker unavailable, sending over HTTP only",
				zap.String("broker", opts.broker),
				zap.Error(err),
			)
		} else {
			defer client.Disconnect()
			mqttSender = simulator.NewMQTTSender(client, opts.topic, byte(opts.qos))
		}
	}

	if httpSender == nil && mqttSender == nil {
		return fmt.Errorf("no protocol available to send on")
	}

	seed := opts.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	sim := simulator.New(simulator.NewGenerator(seed), httpSender, mqttSender, opts.interval, opts.count, zl)
	sim.Run(ctx)
	return nil
}
