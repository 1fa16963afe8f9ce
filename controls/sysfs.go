//go:build linux

package controls

import (
	"fmt"
	"log/slog"

	"github.com/warthog618/gpio"

	"qrscan/video/screen"
)

// sysfsButtons watches the buttons through /dev/gpiomem, for kernels or
// images without the GPIO character device. Buttons are active low.
func (c *Controls) sysfsButtons(buttons map[screen.PinID]int, handlers Handlers) error {
	if len(buttons) == 0 {
		return nil
	}
	if err := gpio.Open(); err != nil {
		return fmt.Errorf("open gpio: %w", err)
	}
	c.onRelease(gpio.Close)

	for id, offset := range buttons {
		id := id
		pin := gpio.NewPin(offset)
		pin.Input()
		pin.PullUp()
		err := pin.Watch(gpio.EdgeBoth, func(p *gpio.Pin) {
			pressed := p.Read() == gpio.Low
			slog.Debug("Button", "pin", id, "pressed", pressed)
			if handlers.OnPin != nil {
				handlers.OnPin(id, pressed)
			}
		})
		if err != nil {
			return fmt.Errorf("watch pin %d: %w", offset, err)
		}
		c.onRelease(func() error {
			pin.Unwatch()
			return nil
		})
	}
	return nil
}
