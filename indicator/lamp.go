package indicator

import (
	"github.com/hjkoskel/govattu"
)

// Lamp implements Indicator with an illumination output that is lit while
// the camera runs.
type Lamp struct {
	hw     govattu.Vattu
	pin    uint8
	onHigh bool // true = set pin high to light, false = set pin low to light
	set    func(on bool)
}

// NewLamp configures pin as an output and returns an unlit lamp.
func NewLamp(hw govattu.Vattu, pin uint8, onHigh bool) *Lamp {
	hw.PinMode(pin, govattu.ALToutput)

	l := &Lamp{hw: hw, pin: pin, onHigh: onHigh}
	l.set = func(on bool) {
		if on == l.onHigh {
			l.hw.PinSet(l.pin)
		} else {
			l.hw.PinClear(l.pin)
		}
	}
	l.set(false)
	return l
}

// Scanning implements Indicator.Scanning.
func (l *Lamp) Scanning() {
	l.set(true)
}

func (l *Lamp) Idle()           { l.set(false) }
func (l *Lamp) Result()         { l.set(false) }
func (l *Lamp) Failed()         { l.set(false) }
func (l *Lamp) Shutdown()       { l.set(false) }
func (l *Lamp) Connected()      {}
func (l *Lamp) ConnectionLost() {}

// Release implements Indicator.Release.
func (l *Lamp) Release() error {
	l.set(false)
	return l.hw.Close()
}
