// Package mqtt wraps the paho client. With no host configured the client is
// a no-op, so the scanner runs the same with or without a broker.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"qrscan/logging"
)

// DefaultTopicPrefix is the first topic level of everything published.
const DefaultTopicPrefix = "qrscan"

const (
	keepAlive       = 60 * time.Second
	disconnectQuiet = 250 // ms
	presenceOnline  = "online"
	presenceOffline = "offline"
)

var errBadCA = errors.New("no certificates found in CA file")

// Config holds MQTT connection settings.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	CACert      string `yaml:"ca_cert"`
	ClientCert  string `yaml:"client_cert"`
	ClientKey   string `yaml:"client_key"`
	TopicPrefix string `yaml:"topic_prefix"` // default "qrscan"
	QoS         byte   `yaml:"qos"`
}

// TLS reports whether the broker connection uses TLS.
func (c Config) TLS() bool {
	return c.CACert != "" || c.ClientCert != ""
}

// Broker returns the paho broker URL.
func (c Config) Broker() string {
	if c.TLS() {
		return fmt.Sprintf("ssl://%s:%d", c.Host, c.Port)
	}
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Handlers holds callback functions for MQTT events.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
	OnMessage    func(topic string, payload []byte)
}

// Client publishes scanner status and receives control commands. The node's
// presence is kept retained on <prefix>/status/node/<id>/presence, with the
// broker publishing "offline" through the will when the link drops.
type Client struct {
	client   paho.Client
	handlers Handlers
	qos      byte
	presence string
}

// New creates a new MQTT client. Returns a disabled no-op client if host is empty.
func New(cfg Config, clientID string, handlers Handlers) (*Client, error) {
	c := &Client{handlers: handlers, qos: cfg.QoS}
	if cfg.Host == "" {
		slog.Info("MQTT disabled (no host configured)")
		return c, nil
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid qos %d", cfg.QoS)
	}

	c.presence = NewTopics(cfg.TopicPrefix, clientID).Status("presence")
	opts, err := c.options(cfg, clientID)
	if err != nil {
		return nil, err
	}
	if !cfg.TLS() {
		slog.Warn("MQTT using non-TLS connection", "broker", cfg.Broker())
	}

	paho.ERROR = logging.Legacy("[MQTT ERROR] ", slog.LevelError)
	paho.CRITICAL = logging.Legacy("[MQTT CRIT] ", slog.LevelError)
	paho.WARN = logging.Legacy("[MQTT WARN] ", slog.LevelWarn)

	c.client = paho.NewClient(opts)
	return c, nil
}

func (c *Client) options(cfg Config, clientID string) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker()).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetKeepAlive(keepAlive).
		SetWill(c.presence, presenceOffline, c.qos, true).
		SetConnectionLostHandler(c.handleConnectionLost).
		SetOnConnectHandler(c.handleConnect).
		SetDefaultPublishHandler(c.handleMessage)

	if cfg.TLS() {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}

func buildTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CACert != "" {
		pem, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%s: %w", cfg.CACert, errBadCA)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// Connect connects to the broker. A disabled client reports connected
// straight away, so the indicator leaves the offline pattern.
func (c *Client) Connect() error {
	if !c.IsEnabled() {
		if c.handlers.OnConnect != nil {
			c.handlers.OnConnect()
		}
		return nil
	}

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect: %w", token.Error())
	}
	slog.Info("MQTT connected")
	return nil
}

// Disconnect marks the node offline and closes the connection.
func (c *Client) Disconnect() {
	if !c.IsEnabled() {
		return
	}
	if c.client.IsConnectionOpen() {
		c.client.Publish(c.presence, c.qos, true, presenceOffline).Wait()
	}
	c.client.Disconnect(disconnectQuiet)
}

// Subscribe subscribes to a topic. Messages go to Handlers.OnMessage.
func (c *Client) Subscribe(topic string) error {
	if !c.IsEnabled() {
		return nil
	}
	if token := c.client.Subscribe(topic, c.qos, nil); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// PublishJSON marshals v and publishes it to a topic. No-op if disabled.
func (c *Client) PublishJSON(topic string, v any) error {
	if !c.IsEnabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	c.client.Publish(topic, c.qos, false, b)
	return nil
}

// IsEnabled returns whether a broker is configured.
func (c *Client) IsEnabled() bool {
	return c.client != nil
}

func (c *Client) handleConnect(client paho.Client) {
	slog.Info("MQTT connection established")
	client.Publish(c.presence, c.qos, true, presenceOnline)
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}
}

func (c *Client) handleConnectionLost(client paho.Client, err error) {
	slog.Warn("MQTT connection lost", "error", err)
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect()
	}
}

func (c *Client) handleMessage(client paho.Client, msg paho.Message) {
	if c.handlers.OnMessage != nil {
		c.handlers.OnMessage(msg.Topic(), msg.Payload())
	}
}
