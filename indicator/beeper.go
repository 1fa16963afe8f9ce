package indicator

import (
	"sync"
	"time"

	"github.com/hjkoskel/govattu"
)

const (
	beepRange = 20000
	beepOn    = 60 * time.Millisecond
	beepGap   = 80 * time.Millisecond
)

// Beeper implements Indicator with a piezo on the hardware PWM0 pin. A
// result gives one chirp, a failure two.
type Beeper struct {
	hw govattu.Vattu

	mu    sync.Mutex // serializes chirps
	tone  func(on bool)
	sleep func(time.Duration)
	wg    sync.WaitGroup
}

// NewBeeper sets pin up for PWM0 and returns a silent beeper.
func NewBeeper(hw govattu.Vattu, pin uint8) *Beeper {
	hw.PinMode(pin, govattu.ALT5) // ALT5 for PWM0
	hw.PwmSetMode(true, true, false, false)
	hw.PwmSetClock(19)
	hw.Pwm0SetRange(beepRange)

	b := &Beeper{hw: hw, sleep: time.Sleep}
	b.tone = func(on bool) {
		if on {
			hw.Pwm0Set(beepRange / 2)
		} else {
			hw.Pwm0Set(0)
		}
	}
	b.tone(false)
	return b
}

// Result implements Indicator.Result.
func (b *Beeper) Result() {
	b.chirpAsync(1)
}

// Failed implements Indicator.Failed.
func (b *Beeper) Failed() {
	b.chirpAsync(2)
}

func (b *Beeper) Idle()           {}
func (b *Beeper) Scanning()       {}
func (b *Beeper) Connected()      {}
func (b *Beeper) ConnectionLost() {}
func (b *Beeper) Shutdown()       {}

// Release implements Indicator.Release. It waits for a chirp in progress.
func (b *Beeper) Release() error {
	b.wg.Wait()
	b.tone(false)
	return b.hw.Close()
}

func (b *Beeper) chirpAsync(n int) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.chirp(n)
	}()
}

func (b *Beeper) chirp(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		if i > 0 {
			b.sleep(beepGap)
		}
		b.tone(true)
		b.sleep(beepOn)
		b.tone(false)
	}
}
