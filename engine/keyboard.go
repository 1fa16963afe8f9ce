package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/kenshaw/evdev"
)

// Linux input key codes used by keyboard-wedge scanners.
const (
	keyBackspace  = 14
	keyEnter      = 28
	keyLeftShift  = 42
	keyRightShift = 54
	keyCapsLock   = 58
	keyKPEnter    = 96
)

// keymap maps a key code to its unshifted and shifted character on a US
// layout, which is what wedge scanners emulate.
var keymap = map[uint16][2]byte{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'}, 15: {'\t', '\t'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
	55: {'*', '*'}, 57: {' ', ' '},
	71: {'7', '7'}, 72: {'8', '8'}, 73: {'9', '9'}, 74: {'-', '-'},
	75: {'4', '4'}, 76: {'5', '5'}, 77: {'6', '6'}, 78: {'+', '+'},
	79: {'1', '1'}, 80: {'2', '2'}, 81: {'3', '3'}, 82: {'0', '0'}, 83: {'.', '.'},
}

// KeyboardConfig describes a USB keyboard-wedge QR scanner.
type KeyboardConfig struct {
	Device string `yaml:"device"` // e.g. /dev/input/by-id/usb-...-event-kbd
	Label  string `yaml:"label"`
}

// Keyboard is a QR scanner that types the decoded text followed by Enter.
// The scanner hardware does the decoding; frames and regions do not apply.
type Keyboard struct {
	cfg KeyboardConfig
}

// NewKeyboard creates a keyboard-wedge source for the given input device.
func NewKeyboard(cfg KeyboardConfig) *Keyboard {
	return &Keyboard{cfg: cfg}
}

// DiscoverKeyboards lists keyboard input devices by id.
func DiscoverKeyboards() []KeyboardConfig {
	matches, err := filepath.Glob("/dev/input/by-id/*-event-kbd")
	if err != nil {
		return nil
	}
	var out []KeyboardConfig
	for _, m := range matches {
		out = append(out, KeyboardConfig{Device: m, Label: filepath.Base(m)})
	}
	return out
}

// Device returns the descriptor for this scanner.
func (k *Keyboard) Device() Device {
	label := k.cfg.Label
	if label == "" {
		label = k.cfg.Device
	}
	return Device{ID: "keyboard:" + k.cfg.Device, Label: label, Kind: "keyboard"}
}

// Start opens the input device and reports each typed line.
func (k *Keyboard) Start(ctx context.Context, cfg ScanConfig, onDecode DecodeFunc, onError ErrorFunc) (Handle, error) {
	dev, err := evdev.OpenFile(k.cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open evdev %s: %w", k.cfg.Device, err)
	}

	slog.Info("Keyboard scanner opened", "device", k.cfg.Device, "name", dev.Name())

	runCtx, cancel := context.WithCancel(context.Background())
	h := &keyboardHandle{dev: dev, cancel: cancel, done: make(chan struct{})}
	go h.run(runCtx, onDecode, onError)
	return h, nil
}

type keyboardHandle struct {
	dev    *evdev.Evdev
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (h *keyboardHandle) run(ctx context.Context, onDecode DecodeFunc, onError ErrorFunc) {
	defer close(h.done)

	ch := h.dev.Poll(ctx)
	var line keyLine

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if event == nil {
				if ctx.Err() == nil && onError != nil {
					onError(fmt.Errorf("keyboard device closed: %w", ErrDeviceLost))
				}
				return
			}

			switch event.Type.(type) {
			case evdev.KeyType:
				if text, ok := line.feed(uint16(event.Code), int32(event.Value)); ok && onDecode != nil {
					onDecode(text)
				}
			}
		}
	}
}

// Stop implements Handle.
func (h *keyboardHandle) Stop(ctx context.Context) error {
	h.once.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
			h.err = fmt.Errorf("stop keyboard scanner: %w", ctx.Err())
		}
		if err := h.dev.Close(); err != nil && h.err == nil {
			h.err = fmt.Errorf("close evdev: %w", err)
		}
	})
	return h.err
}

// keyLine assembles key events into a line of text.
type keyLine struct {
	buf   []byte
	shift bool
	caps  bool
}

// feed consumes one key event. It returns the completed line when Enter is
// pressed on a non-empty buffer.
func (l *keyLine) feed(code uint16, value int32) (string, bool) {
	switch code {
	case keyLeftShift, keyRightShift:
		l.shift = value != 0
		return "", false
	}

	// Only presses and auto-repeats produce characters.
	if value == 0 {
		return "", false
	}

	switch code {
	case keyEnter, keyKPEnter:
		if len(l.buf) == 0 {
			return "", false
		}
		text := string(l.buf)
		l.buf = l.buf[:0]
		return text, true
	case keyBackspace:
		if len(l.buf) > 0 {
			l.buf = l.buf[:len(l.buf)-1]
		}
		return "", false
	case keyCapsLock:
		if value == 1 {
			l.caps = !l.caps
		}
		return "", false
	}

	chars, ok := keymap[code]
	if !ok {
		return "", false
	}
	shifted := l.shift
	if l.caps && chars[0] >= 'a' && chars[0] <= 'z' {
		shifted = !shifted
	}
	if shifted {
		l.buf = append(l.buf, chars[1])
	} else {
		l.buf = append(l.buf, chars[0])
	}
	return "", false
}
