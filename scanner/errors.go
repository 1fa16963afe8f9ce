package scanner

import "errors"

var (
	// ErrBusy is returned by StartCamera when a camera is already active,
	// starting, or a result is on screen.
	ErrBusy = errors.New("scanner busy")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("scanner closed")

	// ErrCameraAccess wraps a failure to open the selected device
	// (permission denied, device busy, unreachable).
	ErrCameraAccess = errors.New("camera access failed")

	// ErrInvalidImage wraps a still-image decode failure.
	ErrInvalidImage = errors.New("invalid QR code in image")

	// ErrStartCanceled is returned by StartCamera when StopCamera,
	// ScanAgain or an image result overtook the start.
	ErrStartCanceled = errors.New("camera start canceled")

	// ErrStopFailed wraps an engine stop failure. It is only logged and
	// reported to Hooks.OnFailure.
	ErrStopFailed = errors.New("camera stop failed")
)
