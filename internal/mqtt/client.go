package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/Wafl97/IoT-ESP32/internal/config"
	"github.com/Wafl97/IoT-ESP32/internal/telemetry"
)

// Client manages the broker connection. It owns both protocol
// directions: inbound command lines are handed to the [Ingestor],
// outbound telemetry goes through [Client.Publish], which the
// dispatcher's sampler uses as its publisher. The underlying
// connection manager serializes access, so both goroutines may share
// the client.
type Client struct {
	cfg      config.MQTTConfig
	clientID string
	ingest   *Ingestor
	logger   *slog.Logger
	cm       *autopaho.ConnectionManager
}

// NewClient creates a Client but does not connect. Call
// [Client.Start] to establish the connection.
func NewClient(cfg config.MQTTConfig, clientID string, ingest *Ingestor, logger *slog.Logger) *Client {
	return &Client{
		cfg:      cfg,
		clientID: clientID,
		ingest:   ingest,
		logger:   logger,
	}
}

// Start connects to the broker and blocks until the initial connection
// is up or the configured connect timeout expires. A timeout here is a
// transport setup failure and is returned as a fatal error; after a
// successful start, reconnection is handled in the background.
func (c *Client) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: c.cfg.Username,
		ConnectPassword: []byte(c.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   c.cfg.AvailabilityTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("mqtt connected to broker", "broker", c.cfg.Broker)
			c.subscribeCommands(ctx, cm)
			c.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.ingest.HandlePublish,
			},
			OnClientError: func(err error) {
				c.logger.Error("mqtt client error", "error", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.logger.Warn("mqtt server disconnect", "reason_code", d.ReasonCode)
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx,
		time.Duration(c.cfg.ConnectTimeoutSec)*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		return fmt.Errorf("broker unreachable after %ds: %w",
			c.cfg.ConnectTimeoutSec, err)
	}

	return nil
}

// Stop publishes the "offline" availability message and disconnects.
// The provided context bounds how long to wait for both.
func (c *Client) Stop(ctx context.Context) error {
	if c.cm == nil {
		return nil
	}
	c.publishAvailability(ctx, c.cm, "offline")
	return c.cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires. The admin health probe uses it.
func (c *Client) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return fmt.Errorf("mqtt client not started")
	}
	return c.cm.AwaitConnection(ctx)
}

// Publish sends one telemetry record to the telemetry topic at QoS 2.
// Failures are returned to the caller; the sampler treats them as
// fatal to the in-flight command only.
func (c *Client) Publish(ctx context.Context, rec telemetry.Record) error {
	if c.cm == nil {
		return fmt.Errorf("mqtt client not started")
	}

	payload := rec.Format()
	c.logger.Log(ctx, config.LevelTrace, "mqtt telemetry publish",
		"topic", c.cfg.TelemetryTopic, "payload", payload)

	if _, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   c.cfg.TelemetryTopic,
		QoS:     2,
		Payload: []byte(payload),
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", c.cfg.TelemetryTopic, err)
	}
	return nil
}

func (c *Client) subscribeCommands(ctx context.Context, cm *autopaho.ConnectionManager) {
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: c.cfg.CommandTopic, QoS: 2},
		},
	}); err != nil {
		c.logger.Error("mqtt command subscription failed",
			"topic", c.cfg.CommandTopic, "error", err)
		return
	}
	c.logger.Info("mqtt subscribed to command topic", "topic", c.cfg.CommandTopic)
}

func (c *Client) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   c.cfg.AvailabilityTopic,
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		c.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		c.logger.Info("mqtt availability published", "status", status)
	}
}
