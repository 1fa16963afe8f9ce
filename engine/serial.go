package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// maxLineLength caps a single serial line; QR codes top out below 3KB.
const maxLineLength = 8192

// SerialConfig describes a serial (or USB CDC) QR scanner that writes each
// decoded code as a line.
type SerialConfig struct {
	Device string `yaml:"device"` // e.g. /dev/ttyACM0
	Baud   int    `yaml:"baud"`
	Label  string `yaml:"label"`
}

// Serial is a QR scanner on a serial port.
type Serial struct {
	cfg SerialConfig
}

// NewSerial creates a serial scanner source.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	return &Serial{cfg: cfg}
}

// Device returns the descriptor for this scanner.
func (s *Serial) Device() Device {
	label := s.cfg.Label
	if label == "" {
		label = s.cfg.Device
	}
	return Device{ID: "serial:" + s.cfg.Device, Label: label, Kind: "serial"}
}

// Start opens the port and reports each received line.
func (s *Serial) Start(ctx context.Context, cfg ScanConfig, onDecode DecodeFunc, onError ErrorFunc) (Handle, error) {
	c := &serial.Config{
		Name:        s.cfg.Device,
		Baud:        s.cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", s.cfg.Device, err)
	}
	slog.Info("Serial scanner opened", "device", s.cfg.Device, "baud", s.cfg.Baud)

	runCtx, cancel := context.WithCancel(context.Background())
	h := &serialHandle{port: port, cancel: cancel, done: make(chan struct{})}
	go h.run(runCtx, onDecode, onError)
	return h, nil
}

type serialHandle struct {
	port   *serial.Port
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (h *serialHandle) run(ctx context.Context, onDecode DecodeFunc, onError ErrorFunc) {
	defer close(h.done)

	var lines lineSplitter
	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := h.port.Read(buf)
		if err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() == nil && onError != nil {
				onError(fmt.Errorf("read serial: %w: %v", ErrDeviceLost, err))
			}
			return
		}
		if n == 0 {
			// Read timeout, poll again.
			continue
		}
		for _, text := range lines.write(buf[:n]) {
			if onDecode != nil {
				onDecode(text)
			}
		}
	}
}

// Stop implements Handle.
func (h *serialHandle) Stop(ctx context.Context) error {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
			h.err = fmt.Errorf("stop serial scanner: %w", ctx.Err())
		}
		if err := h.port.Close(); err != nil && h.err == nil {
			h.err = fmt.Errorf("close serial: %w", err)
		}
	})
	return h.err
}

// lineSplitter accumulates bytes and splits them on CR or LF. Empty lines
// are skipped, so CRLF terminators yield one line.
type lineSplitter struct {
	buf []byte
}

func (l *lineSplitter) write(p []byte) []string {
	var out []string
	for _, b := range p {
		if b == '\r' || b == '\n' {
			if len(l.buf) > 0 {
				out = append(out, string(l.buf))
				l.buf = l.buf[:0]
			}
			continue
		}
		if len(l.buf) >= maxLineLength {
			// Runaway input without terminator, drop it.
			l.buf = l.buf[:0]
		}
		l.buf = append(l.buf, b)
	}
	return out
}
