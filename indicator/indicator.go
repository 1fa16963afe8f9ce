// Package indicator drives the status outputs of the scanner: LEDs,
// neopixels, a beeper and the camera illumination lamp.
package indicator

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// Indicator is the interface for status indicator implementations (LEDs, neopixels, etc).
type Indicator interface {
	// Idle sets the indicator to idle/ready state.
	Idle()

	// Scanning sets the indicator to camera active state.
	Scanning()

	// Result signals a decoded record.
	Result()

	// Failed signals a camera or decode failure.
	Failed()

	// Connected is called when the broker connection comes up.
	Connected()

	// ConnectionLost sets the indicator to connection lost state.
	ConnectionLost()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// Config holds configuration for indicator implementations.
type Config struct {
	// GPIO LED pins (nil = not configured)
	GreenPin  *uint8 `yaml:"green_pin"`
	YellowPin *uint8 `yaml:"yellow_pin"`
	RedPin    *uint8 `yaml:"red_pin"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe"`

	// Piezo beeper on a hardware PWM pin (nil = not configured)
	BeeperPin *uint8 `yaml:"beeper_pin"`

	// Illumination lamp, lit while the camera runs (nil = not configured)
	LampPin       *uint8 `yaml:"lamp_pin"`
	LampActiveLow bool   `yaml:"lamp_active_low"`
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if more than one output is configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator
	fail := func(err error) (Indicator, error) {
		NewMulti(indicators...).Release()
		return nil, err
	}

	// Add GPIO indicator if any pins configured
	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		gpio, err := NewGPIO(cfg.GreenPin, cfg.YellowPin, cfg.RedPin)
		if err != nil {
			return fail(err)
		}
		indicators = append(indicators, gpio)
	}

	// Add Neopixel indicator if pipe configured
	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			return fail(err)
		}
		indicators = append(indicators, neo)
	}

	if cfg.BeeperPin != nil {
		hw, err := govattu.Open()
		if err != nil {
			return fail(fmt.Errorf("open gpio: %w", err))
		}
		indicators = append(indicators, NewBeeper(hw, *cfg.BeeperPin))
	}

	if cfg.LampPin != nil {
		hw, err := govattu.Open()
		if err != nil {
			return fail(fmt.Errorf("open gpio: %w", err))
		}
		indicators = append(indicators, NewLamp(hw, *cfg.LampPin, !cfg.LampActiveLow))
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return NewMulti(indicators...), nil
}
