//go:build screen

package screens

import "qrscan/video/screen"

// ShutdownScreen blanks the display.
type ShutdownScreen struct {
	mgr *screen.Manager
}

// NewShutdownScreen creates a new shutdown screen.
func NewShutdownScreen() *ShutdownScreen {
	return &ShutdownScreen{}
}

func (s *ShutdownScreen) Init(mgr *screen.Manager) {
	s.mgr = mgr
}

func (s *ShutdownScreen) Update() {
	s.mgr.Draw(func() {
		s.mgr.FillBackground(0, 0, 0) // Black
		s.mgr.Flush()
	})
}

func (s *ShutdownScreen) HandleEvent(event screen.Event) bool {
	// Swallow everything so no input reaches the scanner while shutting down.
	return true
}

func (s *ShutdownScreen) Exit() {
}

func (s *ShutdownScreen) Name() string {
	return "Shutdown"
}
