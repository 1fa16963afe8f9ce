package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"
)

// Config selects the capture devices the station offers.
type Config struct {
	Cameras   []SnapshotConfig `yaml:"cameras"`
	Keyboards []KeyboardConfig `yaml:"keyboards"`
	Serial    []SerialConfig   `yaml:"serial"`

	// Discovery adds devices found at ListDevices time after the
	// configured ones.
	DiscoverKeyboards bool `yaml:"discover_keyboards"`
	DiscoverSerial    bool `yaml:"discover_serial"`

	SnapshotTimeoutMs int `yaml:"snapshot_timeout_ms"`
}

// source is one capture device the Hardware engine can run.
type source interface {
	Device() Device
	Start(ctx context.Context, cfg ScanConfig, onDecode DecodeFunc, onError ErrorFunc) (Handle, error)
}

// Hardware is the Engine backed by real capture devices. Still images are
// decoded in-process with the QR Decoder.
type Hardware struct {
	cfg     Config
	decoder *Decoder
	client  *http.Client

	// discover overrides device discovery in tests.
	discover func() []source
}

// New creates the hardware engine from configuration.
func New(cfg Config) (*Hardware, error) {
	timeout := 2 * time.Second
	if cfg.SnapshotTimeoutMs > 0 {
		timeout = time.Duration(cfg.SnapshotTimeoutMs) * time.Millisecond
	}

	for _, c := range cfg.Cameras {
		if c.Name == "" || c.URL == "" {
			return nil, fmt.Errorf("camera entry needs name and url: %+v", c)
		}
	}
	for _, k := range cfg.Keyboards {
		if k.Device == "" {
			return nil, fmt.Errorf("keyboard entry needs device")
		}
	}
	for _, s := range cfg.Serial {
		if s.Device == "" {
			return nil, fmt.Errorf("serial entry needs device")
		}
	}

	h := &Hardware{
		cfg:     cfg,
		decoder: NewDecoder(),
		client:  &http.Client{Timeout: timeout},
	}
	h.discover = h.sources
	return h, nil
}

// sources returns every device in configuration order, then discovered ones.
func (h *Hardware) sources() []source {
	var out []source
	seen := make(map[string]bool)
	add := func(s source) {
		id := s.Device().ID
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, s)
	}

	for _, c := range h.cfg.Cameras {
		add(NewSnapshot(c, h.client, h.decoder))
	}
	for _, k := range h.cfg.Keyboards {
		add(NewKeyboard(k))
	}
	for _, s := range h.cfg.Serial {
		add(NewSerial(s))
	}
	if h.cfg.DiscoverKeyboards {
		for _, k := range DiscoverKeyboards() {
			add(NewKeyboard(k))
		}
	}
	if h.cfg.DiscoverSerial {
		for _, s := range discoverSerial() {
			add(NewSerial(s))
		}
	}
	return out
}

// ListDevices implements Engine.
func (h *Hardware) ListDevices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var devs []Device
	for _, s := range h.discover() {
		devs = append(devs, s.Device())
	}
	if len(devs) == 0 {
		return nil, ErrNoDevice
	}
	return devs, nil
}

// Start implements Engine.
func (h *Hardware) Start(ctx context.Context, deviceID string, cfg ScanConfig, onDecode DecodeFunc, onError ErrorFunc) (Handle, error) {
	for _, s := range h.discover() {
		if s.Device().ID == deviceID {
			return s.Start(ctx, cfg, onDecode, onError)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
}

// DecodeImage implements Engine.
func (h *Hardware) DecodeImage(ctx context.Context, r io.Reader) (string, error) {
	return h.decoder.DecodeImage(ctx, r)
}

func discoverSerial() []SerialConfig {
	var out []SerialConfig
	for _, pattern := range []string{"/dev/ttyACM*", "/dev/ttyUSB*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			out = append(out, SerialConfig{Device: m})
		}
	}
	return out
}
