// Package eventpipe accepts scanner commands written to a named pipe, so
// scripts and kiosk tooling can drive the scanner without hardware.
package eventpipe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"qrscan/video/screen"
)

const closeTimeout = time.Second

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/qrscan-events")
}

// EventHandler is called when an event is received from the pipe.
type EventHandler func(screen.Event)

// EventPipe listens for events on a named pipe.
type EventPipe struct {
	path    string
	handler EventHandler
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a new EventPipe. Returns nil if path is empty.
func New(cfg Config, handler EventHandler) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	// Remove existing pipe if it exists
	if err := os.Remove(cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale pipe %s: %w", cfg.Path, err)
	}

	if err := syscall.Mkfifo(cfg.Path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPipe{
		path:    cfg.Path,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	return ep, nil
}

// Start begins listening for events on the pipe.
// This should be called as a goroutine.
func (ep *EventPipe) Start() {
	defer close(ep.done)
	slog.Info("Event pipe listening", "path", ep.path)

	for {
		if ep.ctx.Err() != nil {
			return
		}

		// Blocks until a writer connects. Close unblocks it by connecting
		// a writer of its own.
		file, err := os.OpenFile(ep.path, os.O_RDONLY, 0)
		if err != nil {
			if ep.ctx.Err() != nil {
				return
			}
			slog.Error("Event pipe open error", "error", err)
			return
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if ep.ctx.Err() != nil {
				file.Close()
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			event, err := parseLine(line)
			if err != nil {
				slog.Warn("Event pipe parse error", "line", line, "error", err)
				continue
			}

			slog.Debug("Event pipe command", "event", event.Type)
			if ep.handler != nil {
				ep.handler(event)
			}
		}

		file.Close()
		// Writer closed the pipe, loop back to wait for next writer
	}
}

// Close stops the event pipe listener and removes the pipe.
func (ep *EventPipe) Close() error {
	ep.cancel()

	// Wake a reader blocked in open.
	if f, err := os.OpenFile(ep.path, os.O_WRONLY|syscall.O_NONBLOCK, 0); err == nil {
		f.Close()
	}
	select {
	case <-ep.done:
	case <-time.After(closeTimeout):
		// A writer still holds the pipe open; the reader exits on its next line.
		slog.Warn("Event pipe reader still busy at close", "path", ep.path)
	}
	return os.Remove(ep.path)
}

// parseLine parses a command line into an Event.
// Command format:
//
//	camera                          - Start the camera
//	stop                            - Stop the camera
//	again                           - Clear the result and return to idle
//	image <path>                    - Scan a still image file
//	press                           - Primary action for the current phase
//	rotary <delta>                  - Rotary turn (+1 or -1)
//	rotary press                    - Rotary button press
//	pin <name> <0|1>                - Button state change (0=released, 1=pressed)
func parseLine(line string) (screen.Event, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return screen.Event{}, fmt.Errorf("empty command")
	}

	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "camera", "start":
		return screen.Event{Type: screen.EventCamera}, nil

	case "stop":
		return screen.Event{Type: screen.EventStop}, nil

	case "again", "reset":
		return screen.Event{Type: screen.EventAgain}, nil

	case "press":
		return screen.Event{Type: screen.EventPress}, nil

	case "image", "file":
		// The path is everything after the command so names may contain spaces.
		path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), parts[0]))
		if path == "" {
			return screen.Event{}, fmt.Errorf("image requires a path")
		}
		return screen.Event{
			Type: screen.EventImage,
			Data: screen.ImageData{Path: path},
		}, nil

	case "rotary":
		if len(parts) < 2 {
			return screen.Event{}, fmt.Errorf("rotary requires delta or 'press'")
		}
		if strings.ToLower(parts[1]) == "press" {
			return screen.Event{
				Type: screen.EventRotaryPress,
				Data: screen.RotaryData{ID: screen.RotaryMain},
			}, nil
		}
		delta, err := strconv.Atoi(parts[1])
		if err != nil {
			return screen.Event{}, fmt.Errorf("invalid rotary delta: %s", parts[1])
		}
		return screen.Event{
			Type: screen.EventRotaryTurn,
			Data: screen.RotaryData{ID: screen.RotaryMain, Delta: delta},
		}, nil

	case "pin":
		if len(parts) < 3 {
			return screen.Event{}, fmt.Errorf("pin requires <name> <0|1>")
		}
		pinID, err := ParsePinID(parts[1])
		if err != nil {
			return screen.Event{}, err
		}
		pressed := parts[2] == "1" || strings.ToLower(parts[2]) == "true"
		return screen.Event{
			Type: screen.EventPin,
			Data: screen.PinData{ID: pinID, Pressed: pressed},
		}, nil

	default:
		return screen.Event{}, fmt.Errorf("unknown command: %s", cmd)
	}
}

// ParsePinID converts a button name to PinID.
func ParsePinID(name string) (screen.PinID, error) {
	switch strings.ToLower(name) {
	case "primary", "button1", "btn1":
		return screen.PinPrimary, nil
	case "camera", "scan":
		return screen.PinCamera, nil
	case "stop":
		return screen.PinStop, nil
	case "again", "reset":
		return screen.PinAgain, nil
	default:
		// Try parsing as number
		id, err := strconv.Atoi(name)
		if err != nil || id < int(screen.PinPrimary) || id > int(screen.PinAgain) {
			return 0, fmt.Errorf("unknown pin: %s", name)
		}
		return screen.PinID(id), nil
	}
}
