//go:build linux

package controls

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"qrscan/video/screen"
)

const (
	debounceRotary = 250 * time.Microsecond
	debounceButton = 2 * time.Millisecond
)

// New requests the configured lines and starts delivering events to
// handlers. Returns nil if nothing is configured.
func New(cfg Config, handlers Handlers) (*Controls, error) {
	buttons := cfg.Buttons.pins()
	if len(buttons) == 0 && !cfg.Rotary.Enabled() {
		return nil, nil
	}
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}

	c := &Controls{}
	var err error
	switch cfg.Backend {
	case "", BackendCdev:
		err = c.cdevButtons(cfg.Chip, buttons, handlers)
	case BackendSysfs:
		err = c.sysfsButtons(buttons, handlers)
	default:
		err = fmt.Errorf("unknown controls backend %q", cfg.Backend)
	}
	if err == nil && cfg.Rotary.Enabled() {
		err = c.rotary(cfg.Chip, cfg.Rotary, handlers)
	}
	if err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

func (c *Controls) request(chip string, offset int, opts ...gpiocdev.LineReqOption) error {
	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return fmt.Errorf("request %s line %d: %w", chip, offset, err)
	}
	c.onRelease(line.Close)
	return nil
}

func (c *Controls) cdevButtons(chip string, buttons map[screen.PinID]int, handlers Handlers) error {
	for id, offset := range buttons {
		id := id
		err := c.request(chip, offset,
			gpiocdev.WithPullUp,
			gpiocdev.WithBothEdges,
			gpiocdev.WithDebounce(debounceButton),
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				// Active low
				pressed := evt.Type == gpiocdev.LineEventFallingEdge
				slog.Debug("Button", "pin", id, "pressed", pressed)
				if handlers.OnPin != nil {
					handlers.OnPin(id, pressed)
				}
			}))
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Controls) rotary(chip string, cfg RotaryConfig, handlers Handlers) error {
	q := &quadrature{}
	err := c.request(chip, cfg.DTPin,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(debounceRotary),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			q.dt(evt.Type == gpiocdev.LineEventRisingEdge)
		}))
	if err != nil {
		return err
	}

	err = c.request(chip, cfg.CLKPin,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(debounceRotary),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			delta := q.clk(evt.Type == gpiocdev.LineEventRisingEdge)
			if delta != 0 && handlers.OnTurn != nil {
				handlers.OnTurn(delta)
			}
		}))
	if err != nil {
		return err
	}

	if cfg.ButtonPin > 0 {
		return c.request(chip, cfg.ButtonPin,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithDebounce(debounceButton),
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) {
				slog.Debug("Rotary button pressed")
				if handlers.OnPress != nil {
					handlers.OnPress()
				}
			}))
	}
	return nil
}
