//go:build screen

package screens

import (
	"image"
	"time"

	"qrscan/engine"
	"qrscan/video/screen"
	"qrscan/view"
)

const (
	previewInterval = 200 * time.Millisecond
	maxZoom         = 4
)

// ScanningScreen shows the live camera preview with the detection region
// outlined. Turning the rotary encoder zooms into the center of the frame.
type ScanningScreen struct {
	mgr     *screen.Manager
	layout  view.Layout
	region  engine.Region
	zoom    int
	timerID screen.TimerID

	// Preview area
	areaX, areaY int
	areaW, areaH int
}

// NewScanningScreen creates a new scanning screen. region is the detection
// region the engine decodes, in frame pixels.
func NewScanningScreen(region engine.Region) *ScanningScreen {
	return &ScanningScreen{region: region}
}

func (s *ScanningScreen) Init(mgr *screen.Manager) {
	s.mgr = mgr
	s.layout = mgr.Layout()
	s.zoom = 1

	s.areaX = 20
	s.areaY = 20
	s.areaW = mgr.Width() - 40
	s.areaH = mgr.Height() - 120

	s.startRefresh()
}

func (s *ScanningScreen) startRefresh() {
	s.timerID = s.mgr.SetTimeout(previewInterval, func(scr screen.Screen) {
		if s.timerID == 0 {
			return
		}
		s.updatePreview()
		s.startRefresh()
	})
}

func (s *ScanningScreen) Update() {
	s.mgr.Draw(func() {
		s.mgr.FillBackground(0, 0, 0)
		s.drawPreview()

		s.mgr.SetFontSize(28)
		y := float64(s.mgr.Height() - 70)
		if s.layout.Error != "" {
			s.mgr.DrawCentered(s.layout.Error, y, 0.97, 0.44, 0.44)
		} else {
			s.mgr.DrawCentered("Hold the QR code inside the box", y, 1, 1, 1)
		}
		s.mgr.SetFontSize(20)
		s.mgr.DrawCentered("Press to stop", y+40, 0.7, 0.7, 0.7)
		s.mgr.Flush()
	})
}

// updatePreview does a partial update of just the preview area
func (s *ScanningScreen) updatePreview() {
	s.mgr.Draw(func() {
		s.drawPreview()
		s.mgr.FlushRect(s.areaX, s.areaY, s.areaW, s.areaH)
	})
}

func (s *ScanningScreen) drawPreview() {
	s.mgr.FillRect(s.areaX, s.areaY, s.areaW, s.areaH, 0, 0, 0)

	frame := s.mgr.Preview()
	if frame == nil {
		s.mgr.SetFontSize(24)
		s.mgr.DrawCentered("Scanning...", float64(s.areaY+s.areaH/2), 0.8, 0.8, 0.8)
		return
	}

	src := zoomed(frame, s.zoom)
	fit := fitRect(src.Bounds(), s.areaW, s.areaH)
	if fit.Dx() == 0 || fit.Dy() == 0 {
		return
	}
	scaled := screen.ScaleImage(src, fit.Dx(), fit.Dy())
	x := s.areaX + (s.areaW-fit.Dx())/2
	y := s.areaY + (s.areaH-fit.Dy())/2
	dc := s.mgr.DC()
	dc.DrawImage(scaled, x, y)

	// Outline the detection region, which is centered in the frame.
	scale := float64(fit.Dx()) / float64(src.Bounds().Dx())
	bw := float64(s.region.Width) * scale
	bh := float64(s.region.Height) * scale
	cx := float64(x) + float64(fit.Dx())/2
	cy := float64(y) + float64(fit.Dy())/2
	dc.SetRGB(0.2, 0.9, 0.3)
	dc.SetLineWidth(3)
	dc.DrawRectangle(cx-bw/2, cy-bh/2, bw, bh)
	dc.Stroke()
}

// zoomed returns the center 1/zoom of img.
func zoomed(img image.Image, zoom int) image.Image {
	if zoom <= 1 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx()/zoom, b.Dy()/zoom
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(image.Rect(x0, y0, x0+w, y0+h))
	}
	return img
}

// fitRect returns the largest rectangle with src's aspect ratio that fits in
// w x h.
func fitRect(src image.Rectangle, w, h int) image.Rectangle {
	if src.Dx() == 0 || src.Dy() == 0 {
		return image.Rectangle{}
	}
	fw := w
	fh := src.Dy() * w / src.Dx()
	if fh > h {
		fh = h
		fw = src.Dx() * h / src.Dy()
	}
	return image.Rect(0, 0, fw, fh)
}

func (s *ScanningScreen) HandleEvent(event screen.Event) bool {
	switch event.Type {
	case screen.EventSession:
		if data := event.Session(); data != nil {
			s.layout = data.Layout
		}
		return true
	case screen.EventRotaryTurn:
		if rotary := event.Rotary(); rotary != nil {
			s.zoom += rotary.Delta
			if s.zoom < 1 {
				s.zoom = 1
			}
			if s.zoom > maxZoom {
				s.zoom = maxZoom
			}
			s.updatePreview()
			return true
		}
	}
	return false
}

func (s *ScanningScreen) Exit() {
	s.timerID = 0
	s.zoom = 1
}

func (s *ScanningScreen) Name() string {
	return "Scanning"
}
