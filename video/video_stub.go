//go:build !screen

package video

import (
	"image"

	"qrscan/engine"
	"qrscan/video/screen"
	"qrscan/view"
)

// ScreenSupported returns whether screen support is compiled in.
func ScreenSupported() bool {
	return false
}

// Display is a stub when screen support is not compiled in.
type Display struct{}

// New returns an error when screen support is not compiled in.
func New(cfg Config, region engine.Region) (*Display, error) {
	return nil, ErrScreenNotCompiled
}

func (d *Display) Show(l view.Layout)                {}
func (d *Display) SetPreview(fn func() image.Image)  {}
func (d *Display) SendEvent(event screen.Event) bool { return false }
func (d *Display) SetMQTTConnected(connected bool)   {}
func (d *Display) Manager() *screen.Manager          { return nil }
func (d *Display) Shutdown()                         {}
func (d *Display) Release() error                    { return nil }
func (d *Display) Width() int                        { return 0 }
func (d *Display) Height() int                       { return 0 }
