package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxDecodeSide bounds the longest side of an image handed to the reader.
// Phone photos are downscaled to this before binarization.
const maxDecodeSide = 1600

// MaxDecodePixels bounds the pixel count of any encoded image the station
// decodes. Headers are checked first, since a few hundred KiB of PNG can
// declare a frame that takes gigabytes to allocate.
const MaxDecodePixels = 24_000_000

// Decoder extracts QR text from still images and frames.
type Decoder struct {
	hints map[gozxing.DecodeHintType]interface{}
}

// NewDecoder creates a QR decoder.
func NewDecoder() *Decoder {
	hints := make(map[gozxing.DecodeHintType]interface{})
	hints[gozxing.DecodeHintType_POSSIBLE_FORMATS] = []gozxing.BarcodeFormat{
		gozxing.BarcodeFormat_QR_CODE,
	}
	hints[gozxing.DecodeHintType_TRY_HARDER] = true
	return &Decoder{hints: hints}
}

// Decode searches img for a QR code inside the centered region. A zero region
// searches the whole image.
func (d *Decoder) Decode(img image.Image, region Region) (string, error) {
	if img == nil {
		return "", ErrDecode
	}
	src := cropCenter(img, region)
	src = downscale(src, maxDecodeSide)

	bmp, err := gozxing.NewBinaryBitmapFromImage(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// QRCodeReader keeps per-decode state, so a fresh one per call keeps
	// Decode safe for concurrent sessions.
	result, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return result.GetText(), nil
}

// DecodeReader decodes an encoded image (png, jpeg, gif, bmp, webp). The
// whole image is searched.
func (d *Decoder) DecodeReader(r io.Reader) (string, error) {
	img, err := DecodeLimited(r, MaxDecodePixels)
	if err != nil {
		return "", err
	}
	return d.Decode(img, Region{})
}

// DecodeLimited decodes an encoded image after checking from its header that
// it holds at most maxPixels pixels. Failures wrap ErrDecode.
func DecodeLimited(r io.Reader, maxPixels int) (image.Image, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %dx%d image exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}
	img, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// DecodeImage implements the still-image half of Engine.
func (d *Decoder) DecodeImage(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.DecodeReader(r)
}

// cropCenter returns the centered region of img. The region is clamped to the
// image bounds.
func cropCenter(img image.Image, region Region) image.Image {
	b := img.Bounds()
	if region.Width <= 0 || region.Height <= 0 {
		return img
	}
	w, h := region.Width, region.Height
	if w >= b.Dx() && h >= b.Dy() {
		return img
	}
	if w > b.Dx() {
		w = b.Dx()
	}
	if h > b.Dy() {
		h = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	rect := image.Rect(x0, y0, x0+w, y0+h)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// downscale shrinks img so its longest side is at most maxSide.
func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}
	if longest <= maxSide {
		return img
	}
	w := b.Dx() * maxSide / longest
	h := b.Dy() * maxSide / longest
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
