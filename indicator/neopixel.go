package indicator

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoConnectionLost = "@2 !150000 001010"
	neoNormalIdle     = "@3 !150000 400000"
	neoScanning       = "@3 !40000 404040"
	neoResult         = "@1 !50000 8000"
	neoFailed         = "@2 !10000 ff"
	neoTerminated     = "@0 010101"
)

// Neopixel implements Indicator using an external neopixel tool via named pipe.
type Neopixel struct {
	mu         sync.Mutex // protects idleString, pipe writes
	pipe       *os.File
	idleString string
}

// NewNeopixel creates a new Neopixel indicator.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}

	n := &Neopixel{
		pipe:       f,
		idleString: neoConnectionLost, // Start with connection lost until connected
	}
	return n, nil
}

// Idle implements Indicator.Idle.
func (n *Neopixel) Idle() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.write(n.idleString)
}

// Scanning implements Indicator.Scanning.
func (n *Neopixel) Scanning() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.write(neoScanning)
}

// Result implements Indicator.Result.
func (n *Neopixel) Result() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.write(neoResult)
}

// Failed implements Indicator.Failed.
func (n *Neopixel) Failed() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.write(neoFailed)
}

// Connected implements Indicator.Connected. The idle pattern becomes the
// normal one; the current pattern is left alone.
func (n *Neopixel) Connected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.idleString = neoNormalIdle
}

// ConnectionLost implements Indicator.ConnectionLost.
func (n *Neopixel) ConnectionLost() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.idleString = neoConnectionLost
	n.write(neoConnectionLost)
}

// Shutdown implements Indicator.Shutdown.
func (n *Neopixel) Shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.write(neoTerminated)
}

// Release implements Indicator.Release.
func (n *Neopixel) Release() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pipe == nil {
		return nil
	}
	err := n.pipe.Close()
	n.pipe = nil
	return err
}

func (n *Neopixel) write(s string) {
	if n.pipe == nil {
		return
	}
	if _, err := n.pipe.Write([]byte(s)); err != nil {
		slog.Warn("Neopixel write failed", "error", err)
	}
}
