package mqtt

import (
	"fmt"
	"sync"
	"time"

	"iot-telemetry/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const tokenTimeout = 5 * time.Second

var (
	// connectTimeout bounds the initial CONNECT/CONNACK exchange
	connectTimeout = 10 * time.Second
	// abandonWait bounds how long an abandoned connect is watched for a late CONNACK
	abandonWait = time.Minute
)

// MessageHandler processes one delivered message
type MessageHandler func(topic string, payload []byte) error

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client wraps a paho client. Topics subscribed through it are
// re-subscribed after paho's automatic reconnect.
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewClient connects once; the error is returned as-is so the caller decides
// whether to run degraded.
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger,
		subs:   map[string]subscription{},
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("MQTT connection lost, ingestion degraded until reconnect",
			zap.String("broker", cfg.Broker),
			zap.Error(err),
		)
	})
	opts.SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.abandon(token)
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timeout", cfg.Broker)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	return c, nil
}

// abandon tears down a client whose connect timed out. A CONNACK arriving
// later would otherwise leave a live session holding this ClientID.
func (c *Client) abandon(token mqtt.Token) {
	c.client.Disconnect(0)
	go func() {
		if token.WaitTimeout(abandonWait) && token.Error() == nil && c.client.IsConnected() {
			c.client.Disconnect(0)
		}
	}()
}

// onConnect runs on the first connect and after every reconnect
func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, s := range c.subs {
		subs[topic] = s
	}
	c.mu.Unlock()

	for topic, s := range subs {
		token := client.Subscribe(topic, s.qos, c.wrap(s.handler))
		if token.WaitTimeout(tokenTimeout) && token.Error() != nil {
			c.logger.Error("Failed to resubscribe after reconnect",
				zap.String("topic", topic),
				zap.Error(token.Error()),
			)
			continue
		}
		c.logger.Info("Resubscribed after reconnect", zap.String("topic", topic))
	}
}

func (c *Client) wrap(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			// logged only, the broker is not told
			c.logger.Warn("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}
}

// Subscribe subscribes and remembers the topic for reconnects
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, c.wrap(handler))
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("failed to subscribe to topic %s: timeout", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Publish publishes and waits for the token
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("failed to publish to topic %s: timeout", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Unsubscribe drops the topics and forgets them
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("failed to unsubscribe: timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// Disconnect waits up to 250ms for in-flight work
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// IsConnected reports the current connection state
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
