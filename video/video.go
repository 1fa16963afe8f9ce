//go:build screen

package video

import (
	"encoding/binary"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/d21d3q/framebuffer"
	"github.com/fogleman/gg"

	"qrscan/engine"
	"qrscan/video/screen"
	"qrscan/video/screen/screens"
	"qrscan/view"
)

// ScreenSupported returns whether screen support is compiled in.
func ScreenSupported() bool {
	return true
}

// Display drives a 16bpp framebuffer through the screen manager.
type Display struct {
	mgr             *screen.Manager
	dc              *gg.Context
	pixBuffer       []byte
	backBuffer      []byte
	rgbaImage       *image.RGBA
	width           int
	height          int
	lineLengthBytes int
	initialized     bool
}

// New opens the framebuffer and registers the scanner screens. region is the
// detection region outlined on the live preview.
func New(cfg Config, region engine.Region) (*Display, error) {
	if cfg.Device == "" {
		cfg.Device = DefaultDevice
	}
	d := &Display{}
	if err := d.init(cfg.Device); err != nil {
		return nil, err
	}

	d.mgr = screen.NewManager(d.dc, d.width, d.height, d.update)
	d.mgr.SetUpdateRectFn(d.updateRect)
	d.mgr.Register(screen.ScreenIdle, screens.NewIdleScreen())
	d.mgr.Register(screen.ScreenScanning, screens.NewScanningScreen(region))
	d.mgr.Register(screen.ScreenResult, screens.NewResultScreen(&http.Client{Timeout: 10 * time.Second}))
	d.mgr.Register(screen.ScreenShutdown, screens.NewShutdownScreen())
	return d, nil
}

func (d *Display) init(device string) error {
	fbLowLevel, err := framebuffer.OpenFrameBuffer(device, os.O_RDWR)
	if err != nil {
		return fmt.Errorf("open framebuffer: %w", err)
	}

	varInfo, err := fbLowLevel.VarScreenInfo()
	if err != nil {
		return fmt.Errorf("get variable screen info: %w", err)
	}
	fixedInfo, err := fbLowLevel.FixScreenInfo()
	if err != nil {
		return fmt.Errorf("get fixed screen info: %w", err)
	}
	if varInfo.BitsPerPixel != 16 {
		return fmt.Errorf("%w: %d bpp", ErrUnsupportedDepth, varInfo.BitsPerPixel)
	}

	d.pixBuffer, err = fbLowLevel.Pixels()
	if err != nil {
		return fmt.Errorf("get pixel data: %w", err)
	}

	d.width = int(varInfo.XRes)
	d.height = int(varInfo.YRes)
	d.lineLengthBytes = int(fixedInfo.LineLength)
	d.backBuffer = make([]byte, d.height*d.lineLengthBytes)

	slog.Info("Framebuffer opened", "device", device, "width", d.width, "height", d.height,
		"bpp", varInfo.BitsPerPixel, "stride", d.lineLengthBytes)

	d.rgbaImage = image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	d.dc = gg.NewContextForRGBA(d.rgbaImage)
	d.initialized = true

	d.clear()
	return nil
}

func (d *Display) clear() {
	for i := range d.pixBuffer {
		d.pixBuffer[i] = 0
	}
}

func (d *Display) update() {
	d.updateRect(0, 0, d.width, d.height)
}

// updateRect converts a rectangle of the RGBA canvas to RGB565 and copies it
// to the framebuffer.
func (d *Display) updateRect(x0, y0, w, h int) {
	if !d.initialized {
		return
	}
	r := image.Rect(x0, y0, x0+w, y0+h).Intersect(d.rgbaImage.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := y * d.lineLengthBytes
		for x := r.Min.X; x < r.Max.X; x++ {
			fbIdx := row + x*2
			if fbIdx+1 >= len(d.backBuffer) {
				break
			}
			binary.LittleEndian.PutUint16(d.backBuffer[fbIdx:], rgb565(d.rgbaImage, x, y))
		}
		start := row + r.Min.X*2
		end := row + r.Max.X*2
		if end > len(d.pixBuffer) {
			end = len(d.pixBuffer)
		}
		if start < end {
			copy(d.pixBuffer[start:end], d.backBuffer[start:end])
		}
	}
}

func rgb565(img *image.RGBA, x, y int) uint16 {
	c := img.RGBAAt(x, y)
	return uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
}

// Show switches to the screen for a layout.
func (d *Display) Show(l view.Layout) {
	d.mgr.SetLayout(l)
}

// SetPreview sets the source of live camera frames.
func (d *Display) SetPreview(fn func() image.Image) {
	d.mgr.SetPreview(fn)
}

// SendEvent offers an input event to the current screen. It returns true if
// the screen consumed it.
func (d *Display) SendEvent(event screen.Event) bool {
	return d.mgr.SendEvent(event)
}

// SetMQTTConnected updates the connection status shown on screen.
func (d *Display) SetMQTTConnected(connected bool) {
	d.mgr.SetMQTTConnected(connected)
}

// Manager returns the screen manager.
func (d *Display) Manager() *screen.Manager {
	return d.mgr
}

// Shutdown blanks the screen and stops accepting input.
func (d *Display) Shutdown() {
	d.mgr.SwitchTo(screen.ScreenShutdown)
}

// Release releases the framebuffer.
func (d *Display) Release() error {
	d.clear()
	d.initialized = false
	return nil
}

// Width returns the display width.
func (d *Display) Width() int {
	return d.width
}

// Height returns the display height.
func (d *Display) Height() int {
	return d.height
}
