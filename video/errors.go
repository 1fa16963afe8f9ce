package video

import "errors"

// DefaultDevice is the framebuffer opened when none is configured.
const DefaultDevice = "/dev/fb0"

// Config holds framebuffer display settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Device  string `yaml:"device"` // default /dev/fb0
}

var (
	// ErrScreenNotCompiled is returned when screen support was not compiled in.
	ErrScreenNotCompiled = errors.New("screen support not compiled in (build with -tags=screen)")

	// ErrUnsupportedDepth is returned for framebuffers that are not 16bpp.
	ErrUnsupportedDepth = errors.New("unsupported framebuffer depth")
)
