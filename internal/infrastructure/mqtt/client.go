package mqtt

import (
	"context"
	"fmt"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is the gateway's publisher on the MQTT bus: retained
// online/offline status plus committed audit entries. Safe for concurrent
// use.
type Client struct {
	client   pahomqtt.Client
	clientID string
	qos      byte

	up     atomic.Bool
	logger atomic.Pointer[Logger]
}

// Connect dials the broker and waits for the first CONNACK. A Last Will
// announces the gateway offline if the connection drops; paho reconnects
// on its own and every (re)connect republishes the online status.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS), //nolint:gosec // validated 0..2 by config
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	tok := c.client.Connect()
	if !tok.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no CONNACK within %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs on paho's goroutine and may not have fired yet.
	c.up.Store(true)
	return c, nil
}

func (c *Client) onConnect() {
	c.up.Store(true)
	c.client.Publish(Topics{}.SystemStatus(), statusQoS, true, buildOnlinePayload(c.clientID))
	c.log(func(l Logger) { l.Info("mqtt connected", "client_id", c.clientID) })
}

func (c *Client) onConnectionLost(err error) {
	c.up.Store(false)
	c.log(func(l Logger) { l.Warn("mqtt connection lost", "client_id", c.clientID, "error", err) })
}

func (c *Client) log(fn func(Logger)) {
	if l := c.logger.Load(); l != nil {
		fn(*l)
	}
}

// SetLogger routes connection events to l.
func (c *Client) SetLogger(l Logger) {
	c.logger.Store(&l)
}

// IsConnected reports whether the broker link is currently up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.up.Load() && c.client.IsConnected()
}

// HealthCheck fails when ctx is done or the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close announces a graceful offline status and disconnects. Safe on a
// zero Client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(Topics{}.SystemStatus(), statusQoS, true, buildOfflinePayload(c.clientID)).
			WaitTimeout(defaultPublishTimeout)
	}
	c.up.Store(false)
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
