//go:build screen

package screens

import (
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fogleman/gg"

	"qrscan/engine"
	"qrscan/payload"
	"qrscan/scanner"
	"qrscan/video/screen"
	"qrscan/view"
)

func TestFitRect(t *testing.T) {
	tests := []struct {
		src  image.Rectangle
		w, h int
		want image.Rectangle
	}{
		{image.Rect(0, 0, 640, 480), 320, 480, image.Rect(0, 0, 320, 240)},
		{image.Rect(0, 0, 640, 480), 800, 300, image.Rect(0, 0, 400, 300)},
		{image.Rect(0, 0, 0, 480), 800, 300, image.Rectangle{}},
	}
	for _, tt := range tests {
		if got := fitRect(tt.src, tt.w, tt.h); got != tt.want {
			t.Errorf("fitRect(%v, %d, %d) = %v, want %v", tt.src, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestZoomed(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	if got := zoomed(img, 1).Bounds(); got != img.Bounds() {
		t.Errorf("zoom 1 bounds = %v", got)
	}
	if got := zoomed(img, 2).Bounds(); got != image.Rect(100, 50, 300, 150) {
		t.Errorf("zoom 2 bounds = %v", got)
	}
}

func newManager(t *testing.T) (*screen.Manager, *atomic.Int32) {
	t.Helper()
	var flushes atomic.Int32
	dc := gg.NewContext(320, 240)
	mgr := screen.NewManager(dc, 320, 240, func() { flushes.Add(1) })
	mgr.Register(screen.ScreenIdle, NewIdleScreen())
	mgr.Register(screen.ScreenScanning, NewScanningScreen(engine.DefaultScanConfig.Region))
	mgr.Register(screen.ScreenResult, NewResultScreen(nil))
	mgr.Register(screen.ScreenShutdown, NewShutdownScreen())
	t.Cleanup(func() { mgr.SwitchTo(screen.ScreenShutdown) })
	return mgr, &flushes
}

func TestLayoutSelectsScreen(t *testing.T) {
	mgr, flushes := newManager(t)

	mgr.SetLayout(view.Build(scanner.Snapshot{Phase: scanner.PhaseIdle}))
	if got := mgr.Current().Name(); got != "Idle" {
		t.Fatalf("screen = %s, want Idle", got)
	}

	mgr.SetPreview(func() image.Image { return image.NewRGBA(image.Rect(0, 0, 640, 480)) })
	mgr.SetLayout(view.Build(scanner.Snapshot{Phase: scanner.PhaseCameraActive, DeviceID: "cam"}))
	if got := mgr.Current().Name(); got != "Scanning" {
		t.Fatalf("screen = %s, want Scanning", got)
	}

	rec, _ := payload.Interpret(`{"name":"Jane Doe","contact":"jane@x.com"}`)
	mgr.SetLayout(view.Build(scanner.Snapshot{Phase: scanner.PhaseResultShown, Record: rec}))
	if got := mgr.Current().Name(); got != "Result" {
		t.Fatalf("screen = %s, want Result", got)
	}
	if mgr.Layout().Card.Name != "Jane Doe" {
		t.Errorf("layout card = %+v", mgr.Layout().Card)
	}
	if n := flushes.Load(); n < 3 {
		t.Errorf("flushes = %d, want at least one per screen", n)
	}
}

func TestScanningRefreshStopsOnExit(t *testing.T) {
	mgr, _ := newManager(t)
	mgr.SetLayout(view.Build(scanner.Snapshot{Phase: scanner.PhaseCameraActive, DeviceID: "cam"}))
	mgr.SwitchTo(screen.ScreenIdle)

	calls := make(chan struct{}, 10)
	mgr.SetPreview(func() image.Image {
		calls <- struct{}{}
		return nil
	})
	time.Sleep(3 * previewInterval)
	if len(calls) != 0 {
		t.Errorf("preview polled %d times after leaving the scanning screen", len(calls))
	}
}
