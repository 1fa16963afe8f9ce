package engine

import (
	"context"
	"errors"
	"image"
	"io"
)

var (
	// ErrNoDevice is returned by ListDevices when no capture device exists.
	ErrNoDevice = errors.New("no cameras found")

	// ErrUnknownDevice is returned by Start for an id ListDevices never reported.
	ErrUnknownDevice = errors.New("unknown capture device")

	// ErrDecode is returned when a still image holds no readable QR symbol.
	ErrDecode = errors.New("no QR code found in image")

	// ErrDeviceLost is reported through ErrorFunc when a running device goes
	// away (unplugged, stream closed). The handle is dead afterwards.
	ErrDeviceLost = errors.New("capture device lost")
)

// Device describes one capture device.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"` // "snapshot", "keyboard", "serial"
}

// Region is the centered sub-area of a frame that is searched for a code.
// A zero Region means the whole frame.
type Region struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// ScanConfig holds per-session continuous scan parameters.
type ScanConfig struct {
	FPS    int    `yaml:"fps" json:"fps"`
	Region Region `yaml:"region" json:"region"`
}

// DefaultScanConfig is tuned for close-range reading of a handheld code.
var DefaultScanConfig = ScanConfig{
	FPS:    20,
	Region: Region{Width: 150, Height: 150},
}

// DecodeFunc receives the text of each successful decode, in arrival order.
type DecodeFunc func(text string)

// ErrorFunc receives runtime errors of a running session.
type ErrorFunc func(err error)

// Handle is a running continuous decode session.
type Handle interface {
	// Stop ends the session and releases the device. Calling Stop more
	// than once returns nil.
	Stop(ctx context.Context) error
}

// Previewer is implemented by handles that can show the latest frame.
type Previewer interface {
	Frame() image.Image
}

// Engine is the decoding engine the capture controller drives.
type Engine interface {
	// ListDevices enumerates capture devices. Fails with ErrNoDevice if
	// there are none.
	ListDevices(ctx context.Context) ([]Device, error)

	// Start begins continuous decoding on a device. Callbacks run on
	// engine goroutines.
	Start(ctx context.Context, deviceID string, cfg ScanConfig, onDecode DecodeFunc, onError ErrorFunc) (Handle, error)

	// DecodeImage decodes a single still image. Fails with ErrDecode if
	// the image is unreadable or holds no code.
	DecodeImage(ctx context.Context, r io.Reader) (string, error)
}
