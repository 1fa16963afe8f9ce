//go:build screen

package screens

import (
	"github.com/fogleman/gg"

	"qrscan/video/screen"
	"qrscan/view"
)

// IdleScreen shows the capture entry point and any camera error.
type IdleScreen struct {
	mgr    *screen.Manager
	layout view.Layout

	// Status line area for partial updates
	statusY      int
	statusHeight int
}

// NewIdleScreen creates a new idle screen.
func NewIdleScreen() *IdleScreen {
	return &IdleScreen{}
}

func (s *IdleScreen) Init(mgr *screen.Manager) {
	s.mgr = mgr
	s.layout = mgr.Layout()

	s.statusHeight = 40
	s.statusY = mgr.Height() - s.statusHeight
}

func (s *IdleScreen) Update() {
	s.mgr.Draw(func() {
		w, h := float64(s.mgr.Width()), float64(s.mgr.Height())
		s.mgr.FillBackground(0.07, 0.07, 0.09)

		s.mgr.SetFontSize(44)
		s.mgr.DrawCentered(view.Heading, h*0.22, 1, 1, 1)

		s.mgr.SetFontSize(22)
		dc := s.mgr.DC()
		dc.SetRGB(0.8, 0.8, 0.8)
		dc.DrawStringWrapped(view.Subtext, w/2, h*0.34, 0.5, 0, w*0.8, 1.4, gg.AlignCenter)

		if s.layout.ShowCameraButton {
			s.mgr.FillRect(int(w/2)-180, int(h*0.55), 360, 70, 0.15, 0.39, 0.92)
			s.mgr.SetFontSize(30)
			s.mgr.DrawCentered("Press to scan", h*0.55+35, 1, 1, 1)
		} else {
			s.mgr.SetFontSize(30)
			s.mgr.DrawCentered("Starting camera...", h*0.55+35, 0.9, 0.9, 0.9)
		}

		if s.layout.Error != "" {
			s.mgr.SetFontSize(22)
			dc.SetRGB(0.97, 0.44, 0.44)
			dc.DrawStringWrapped(s.layout.Error, w/2, h*0.72, 0.5, 0, w*0.85, 1.4, gg.AlignCenter)
		}

		s.drawStatus()
		s.mgr.Flush()
	})
}

func (s *IdleScreen) drawStatus() {
	s.mgr.FillRect(0, s.statusY, s.mgr.Width(), s.statusHeight, 0.07, 0.07, 0.09)
	if !s.mgr.IsMQTTConnected() {
		s.mgr.SetFontSize(18)
		s.mgr.DrawCentered("Offline", float64(s.statusY+s.statusHeight/2), 1, 0.6, 0)
	}
}

// updateStatus does a partial update of just the status line
func (s *IdleScreen) updateStatus() {
	s.mgr.Draw(func() {
		s.drawStatus()
		s.mgr.FlushRect(0, s.statusY, s.mgr.Width(), s.statusHeight)
	})
}

func (s *IdleScreen) HandleEvent(event screen.Event) bool {
	switch event.Type {
	case screen.EventSession:
		if data := event.Session(); data != nil {
			s.layout = data.Layout
		}
		return true
	case screen.EventMQTTConnected, screen.EventMQTTDisconnected:
		s.updateStatus()
		return true
	}
	return false
}

func (s *IdleScreen) Exit() {
	s.layout = view.Layout{}
}

func (s *IdleScreen) Name() string {
	return "Idle"
}
