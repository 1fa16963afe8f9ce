// Package controls reads the physical scanner controls: push buttons and a
// rotary encoder with a push switch.
package controls

import (
	"errors"
	"sync"

	"qrscan/video/screen"
)

// ErrNotSupported is returned when controls are configured on a platform
// without GPIO support.
var ErrNotSupported = errors.New("gpio controls not supported on this platform")

// Button backends.
const (
	BackendCdev  = "cdev"
	BackendSysfs = "sysfs"
)

// Config holds configuration for the buttons and rotary encoder.
type Config struct {
	Backend string        `yaml:"backend"` // "cdev" (default) or "sysfs"
	Chip    string        `yaml:"chip"`    // default "gpiochip0"
	Buttons ButtonsConfig `yaml:"buttons"`
	Rotary  RotaryConfig  `yaml:"rotary"`
}

// ButtonsConfig maps buttons to GPIO lines (nil = not fitted). Buttons are
// wired to ground with the internal pull-up enabled.
type ButtonsConfig struct {
	Primary *int `yaml:"primary"`
	Camera  *int `yaml:"camera"`
	Stop    *int `yaml:"stop"`
	Again   *int `yaml:"again"`
}

// RotaryConfig holds the rotary encoder lines.
type RotaryConfig struct {
	CLKPin    int `yaml:"clk_pin"`
	DTPin     int `yaml:"dt_pin"`
	ButtonPin int `yaml:"button_pin"`
}

// Enabled reports whether the encoder is fitted.
func (r RotaryConfig) Enabled() bool {
	return r.CLKPin != 0 || r.DTPin != 0
}

// pins returns the fitted buttons.
func (b ButtonsConfig) pins() map[screen.PinID]int {
	m := make(map[screen.PinID]int)
	for id, p := range map[screen.PinID]*int{
		screen.PinPrimary: b.Primary,
		screen.PinCamera:  b.Camera,
		screen.PinStop:    b.Stop,
		screen.PinAgain:   b.Again,
	} {
		if p != nil {
			m[id] = *p
		}
	}
	return m
}

// Handlers holds callback functions for control events.
type Handlers struct {
	OnPin   func(id screen.PinID, pressed bool)
	OnTurn  func(delta int) // Called with +1 (CW) or -1 (CCW)
	OnPress func()          // Called when the encoder button is pressed
}

// Controls owns the requested GPIO lines.
type Controls struct {
	mu       sync.Mutex
	releases []func() error
}

func (c *Controls) onRelease(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases = append(c.releases, fn)
}

// Release releases GPIO resources in reverse order of acquisition.
func (c *Controls) Release() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	releases := c.releases
	c.releases = nil
	c.mu.Unlock()

	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := releases[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// quadrature decodes a rotary encoder from CLK and DT edges. Direction is
// taken from DT on each CLK rising edge.
type quadrature struct {
	mu      sync.Mutex
	lastCLK bool
	lastDT  bool
}

// clk records a CLK level and returns +1, -1 or 0 steps.
func (q *quadrature) clk(high bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	rising := high && !q.lastCLK
	q.lastCLK = high
	if !rising {
		return 0
	}
	if q.lastDT {
		return -1
	}
	return 1
}

// dt records a DT level.
func (q *quadrature) dt(high bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lastDT = high
}
