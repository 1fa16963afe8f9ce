package indicator

import (
	"fmt"
	"sync"
	"time"

	"github.com/hjkoskel/govattu"
)

const (
	scanBlinkPeriod = 250 * time.Millisecond
	failFlashes     = 3
	failFlashPeriod = 150 * time.Millisecond
)

// pinWriter drives the LED outputs.
type pinWriter interface {
	PinSet(pin uint8)
	PinClear(pin uint8)
}

// GPIO implements Indicator on a three-lamp LED stack:
//
//	green   lit when ready for a scan and while a result is shown
//	yellow  blinks while the camera is live
//	red     flashes on a failed scan, steady while the broker is unreachable
type GPIO struct {
	out    pinWriter
	close  func() error
	green  *uint8
	yellow *uint8
	red    *uint8
	sleep  func(time.Duration)

	mu        sync.Mutex // protects offline, stopBlink and pin writes
	offline   bool
	stopBlink chan struct{}
	wg        sync.WaitGroup
}

// NewGPIO opens the GPIO block and sets the configured pins up as outputs,
// all off.
func NewGPIO(greenPin, yellowPin, redPin *uint8) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	for _, pin := range []*uint8{greenPin, yellowPin, redPin} {
		if pin != nil {
			hw.PinMode(*pin, govattu.ALToutput)
		}
	}
	return newGPIO(vattuPins{hw}, hw.Close, greenPin, yellowPin, redPin), nil
}

type vattuPins struct {
	hw govattu.Vattu
}

func (v vattuPins) PinSet(pin uint8)   { v.hw.PinSet(pin) }
func (v vattuPins) PinClear(pin uint8) { v.hw.PinClear(pin) }

func newGPIO(out pinWriter, closeFn func() error, green, yellow, red *uint8) *GPIO {
	g := &GPIO{out: out, close: closeFn, green: green, yellow: yellow, red: red, sleep: time.Sleep}
	g.write(g.green, false)
	g.write(g.yellow, false)
	g.write(g.red, false)
	return g
}

// Idle implements Indicator.Idle.
func (g *GPIO) Idle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopBlinkLocked()
	g.write(g.green, true)
}

// Scanning implements Indicator.Scanning.
func (g *GPIO) Scanning() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopBlinkLocked()
	g.write(g.green, false)
	if g.yellow == nil {
		return
	}
	g.write(g.yellow, true)
	stop := make(chan struct{})
	g.stopBlink = stop
	g.wg.Add(1)
	go g.blink(stop)
}

// Result implements Indicator.Result.
func (g *GPIO) Result() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopBlinkLocked()
	g.write(g.green, true)
}

// Failed implements Indicator.Failed. The flash runs in the background and
// leaves red as the connection state requires.
func (g *GPIO) Failed() {
	if g.red == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for i := 0; i < failFlashes; i++ {
			g.setRed(true)
			g.sleep(failFlashPeriod)
			g.setRed(false)
			g.sleep(failFlashPeriod)
		}
		g.mu.Lock()
		g.write(g.red, g.offline)
		g.mu.Unlock()
	}()
}

// Connected implements Indicator.Connected.
func (g *GPIO) Connected() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = false
	g.write(g.red, false)
}

// ConnectionLost implements Indicator.ConnectionLost.
func (g *GPIO) ConnectionLost() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = true
	g.write(g.red, true)
}

// Shutdown implements Indicator.Shutdown.
func (g *GPIO) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopBlinkLocked()
	g.write(g.green, false)
	g.write(g.red, false)
}

// Release implements Indicator.Release. It waits for a flash in progress.
func (g *GPIO) Release() error {
	g.Shutdown()
	g.wg.Wait()
	g.mu.Lock()
	g.write(g.red, false)
	g.mu.Unlock()
	return g.close()
}

func (g *GPIO) blink(stop <-chan struct{}) {
	defer g.wg.Done()
	ticker := time.NewTicker(scanBlinkPeriod)
	defer ticker.Stop()

	on := true
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		g.mu.Lock()
		select {
		case <-stop:
		default:
			on = !on
			g.write(g.yellow, on)
		}
		g.mu.Unlock()
	}
}

// stopBlinkLocked ends the scanning blink and turns yellow off.
func (g *GPIO) stopBlinkLocked() {
	if g.stopBlink != nil {
		close(g.stopBlink)
		g.stopBlink = nil
	}
	g.write(g.yellow, false)
}

func (g *GPIO) setRed(on bool) {
	g.mu.Lock()
	g.write(g.red, on)
	g.mu.Unlock()
}

func (g *GPIO) write(pin *uint8, on bool) {
	if pin == nil {
		return
	}
	if on {
		g.out.PinSet(*pin)
	} else {
		g.out.PinClear(*pin)
	}
}
