package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/AndreOrlov/cozytime-bridge/internal/config"
	"github.com/AndreOrlov/cozytime-bridge/internal/types"
)

const publishTimeout = 5 * time.Second

var (
	ErrNotConnected  = errors.New("mqtt client not connected")
	ErrClientStopped = errors.New("client stopped")
)

type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrClientStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// With ConnectRetry(true) paho keeps retrying internally.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrClientStopped
		default:
		}
	}
}

// TelemetryTopic returns "<prefix>/<station>/telemetry".
func (c *Client) TelemetryTopic(stationID string) string {
	return fmt.Sprintf("%s/%s/telemetry", c.cfg.MQTTTopicPrefix, stationID)
}

// HealthTopic returns "<prefix>/<station>/health".
func (c *Client) HealthTopic(stationID string) string {
	return fmt.Sprintf("%s/%s/health", c.cfg.MQTTTopicPrefix, stationID)
}

// PublishTelemetry publishes telemetry to the station topic (QoS 1).
func (c *Client) PublishTelemetry(telemetry types.Telemetry) error {
	if telemetry.StationID == "" {
		return fmt.Errorf("publish telemetry: station_id is required")
	}
	if telemetry.Timestamp.IsZero() {
		telemetry.Timestamp = time.Now()
	}
	topic := c.TelemetryTopic(telemetry.StationID)
	if err := c.publishJSON(topic, false, telemetry); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	c.logger.Debug("published telemetry", "topic", topic, "station_id", telemetry.StationID)
	return nil
}

// PublishStationHealth publishes station health/last-seen state (retained).
func (c *Client) PublishStationHealth(health types.StationHealth) error {
	if health.LastSeen.IsZero() {
		health.LastSeen = time.Now()
	}
	topic := c.HealthTopic(health.StationID)
	if err := c.publishJSON(topic, true, health); err != nil {
		return fmt.Errorf("publish health: %w", err)
	}
	c.logger.Debug("published station health",
		"topic", topic,
		"station_id", health.StationID,
		"last_seen", health.LastSeen,
		"healthy", health.Healthy,
	)
	return nil
}

func (c *Client) publishJSON(topic string, retained bool, v any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	token := c.client.Publish(topic, 1, retained, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("mqtt publish failed", "topic", topic, "error", err)
		return err
	}
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent; after Disconnect, Connect() returns ErrClientStopped.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	// Paho Disconnect quiesces in-flight work for the given ms.
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
