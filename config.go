package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"qrscan/controls"
	"qrscan/engine"
	"qrscan/eventpipe"
	"qrscan/indicator"
	"qrscan/mqtt"
	"qrscan/video"
	"qrscan/web"
)

// Config is the main configuration structure for qrscan.
type Config struct {
	// Node identity, used in MQTT topics
	ClientID string `yaml:"client_id"`

	// Verbose logging (same as -debug)
	Debug bool `yaml:"debug"`

	// Camera session settings
	Camera CameraConfig `yaml:"camera"`

	// Capture devices
	Engine engine.Config `yaml:"engine"`

	// Framebuffer display
	Video video.Config `yaml:"video"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Buttons and rotary encoder
	Controls controls.Config `yaml:"controls"`

	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	// Local command pipe
	EventPipe eventpipe.Config `yaml:"event_pipe"`

	// HTTP control page
	Web web.Config `yaml:"web"`
}

// CameraConfig holds the continuous-scan settings.
type CameraConfig struct {
	Device        string        `yaml:"device"` // device id; empty = second device, else first
	FPS           int           `yaml:"fps"`
	Region        engine.Region `yaml:"region"`
	StopTimeoutMs int           `yaml:"stop_timeout_ms"`
}

// ScanConfig returns the engine parameters for a camera session.
func (c CameraConfig) ScanConfig() engine.ScanConfig {
	return engine.ScanConfig{FPS: c.FPS, Region: c.Region}
}

// StopTimeout returns the engine stop bound.
func (c CameraConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

var errNoClientID = errors.New("client_id missing in config file")

// loadConfig reads and validates a YAML config file.
func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = engine.DefaultScanConfig.FPS
	}
	if c.Camera.Region.Width <= 0 || c.Camera.Region.Height <= 0 {
		c.Camera.Region = engine.DefaultScanConfig.Region
	}
	if c.Camera.StopTimeoutMs <= 0 {
		c.Camera.StopTimeoutMs = 3000
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = mqtt.DefaultTopicPrefix
	}
	if c.MQTT.Host != "" && c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
		if c.MQTT.CACert != "" {
			c.MQTT.Port = 8883
		}
	}
	if c.Video.Enabled && c.Video.Device == "" {
		c.Video.Device = video.DefaultDevice
	}
	if c.Web.Listen == "" {
		c.Web.Listen = web.DefaultListen
	}
}

func (c *Config) validate() error {
	if c.ClientID == "" {
		return errNoClientID
	}
	if c.Camera.FPS > 60 {
		return fmt.Errorf("camera.fps %d out of range (1-60)", c.Camera.FPS)
	}
	return nil
}
