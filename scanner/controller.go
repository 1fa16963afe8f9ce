package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"qrscan/engine"
	"qrscan/payload"
)

// Options configures a Controller.
type Options struct {
	// Scan holds the continuous decode parameters passed to the engine.
	Scan engine.ScanConfig

	// DeviceID pins the capture device. Empty selects with SelectDevice.
	DeviceID string

	// StopTimeout bounds an engine stop when the caller's context has no
	// deadline.
	StopTimeout time.Duration
}

// Hooks receives events that do not change session state.
type Hooks struct {
	// OnFailure is called for every scan failure, including ones that are
	// only logged (unparseable payloads, stop failures).
	OnFailure func(err error)
}

// Controller is the capture controller. It is the only owner of the engine
// handle and the only writer of the session.
//
// Listeners registered with Subscribe are called in transition order and never
// concurrently, with no controller lock held, so they may read Snapshot and
// Preview. They must not call back into StartCamera, StopCamera, ScanImage,
// ScanAgain or Close synchronously.
type Controller struct {
	eng   engine.Engine
	opts  Options
	hooks Hooks
	newID func() string

	mu        sync.Mutex // protects sess, handle, gen, closed, pending, notifying
	sess      session
	handle    engine.Handle
	gen       uint64 // bumped whenever the current camera session ends
	closed    bool
	pending   []Snapshot // transitions not yet delivered to listeners
	notifying bool       // a goroutine is draining pending

	subsMu sync.Mutex // protects subs
	subs   []func(Snapshot)

	// releases tracks handles stopped off the engine's callback goroutine.
	releases sync.WaitGroup
}

// NewController creates a controller in the Idle phase.
func NewController(eng engine.Engine, opts Options, hooks Hooks) *Controller {
	if opts.Scan.FPS <= 0 {
		opts.Scan.FPS = engine.DefaultScanConfig.FPS
	}
	if opts.Scan.Region.Width <= 0 || opts.Scan.Region.Height <= 0 {
		opts.Scan.Region = engine.DefaultScanConfig.Region
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 3 * time.Second
	}
	return &Controller{
		eng:   eng,
		opts:  opts,
		hooks: hooks,
		newID: uuid.NewString,
	}
}

// Subscribe registers fn to receive a snapshot after every transition.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subs = append(c.subs, fn)
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.snapshot()
}

// Preview returns the latest camera frame, or nil when no camera is active or
// the engine cannot preview.
func (c *Controller) Preview() image.Image {
	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()

	if p, ok := h.(engine.Previewer); ok {
		return p.Frame()
	}
	return nil
}

// SelectDevice picks the device to scan with. A preferred id that is present
// wins; otherwise the second enumerated device is used when there is one,
// else the first. Device order is platform dependent, so the second-device
// rule is a best-effort guess at a rear-facing camera.
func SelectDevice(devs []engine.Device, preferred string) (engine.Device, bool) {
	if len(devs) == 0 {
		return engine.Device{}, false
	}
	if preferred != "" {
		for _, d := range devs {
			if d.ID == preferred {
				return d, true
			}
		}
		slog.Warn("Configured camera not present, falling back", "device", preferred)
	}
	if len(devs) > 1 {
		return devs[1], true
	}
	return devs[0], true
}

// StartCamera enumerates devices, selects one and starts continuous decoding.
// It is only valid from the Idle phase with no camera running. Failures are
// also shown to the user through the session's camera error.
func (c *Controller) StartCamera(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.handle != nil || c.sess.starting || c.sess.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.gen++
	gen := c.gen
	c.sess.starting = true
	c.sess.bump()
	c.unlockAndNotify()

	dev, h, err := c.open(ctx, gen)

	c.mu.Lock()
	c.sess.starting = false
	if err != nil {
		msg := MsgCameraAccess
		if errors.Is(err, engine.ErrNoDevice) {
			msg = MsgNoDevice
			err = fmt.Errorf("start camera: %w", err)
		} else {
			err = fmt.Errorf("%w: %w", ErrCameraAccess, err)
		}
		c.sess.showError(msg)
		c.unlockAndNotify()

		slog.Error("Camera access error", "error", err)
		c.fail(err)
		return err
	}

	if gen != c.gen || c.closed || c.sess.phase != PhaseIdle {
		// StopCamera, ScanAgain, Close or a decode overtook the start.
		c.sess.bump()
		c.unlockAndNotify()
		c.release(ctx, h)
		return ErrStartCanceled
	}

	c.handle = h
	c.sess.cameraActive(dev.ID)
	c.unlockAndNotify()

	slog.Info("Camera started", "device", dev.ID, "label", dev.Label)
	return nil
}

func (c *Controller) open(ctx context.Context, gen uint64) (engine.Device, engine.Handle, error) {
	devs, err := c.eng.ListDevices(ctx)
	if err != nil {
		return engine.Device{}, nil, err
	}
	dev, ok := SelectDevice(devs, c.opts.DeviceID)
	if !ok {
		return engine.Device{}, nil, engine.ErrNoDevice
	}

	h, err := c.eng.Start(ctx, dev.ID, c.opts.Scan,
		func(text string) { c.handleDecode(gen, text) },
		func(err error) { c.handleEngineError(gen, err) })
	if err != nil {
		return dev, nil, err
	}
	return dev, h, nil
}

// liveLocked reports whether events from camera session gen should still be
// acted on. A start in flight counts as live so that a decode arriving before
// Start returns is not lost.
func (c *Controller) liveLocked(gen uint64) bool {
	if c.closed || gen != c.gen {
		return false
	}
	switch c.sess.phase {
	case PhaseCameraActive:
		return c.handle != nil
	case PhaseIdle:
		return c.sess.starting
	default:
		return false
	}
}

func (c *Controller) handleDecode(gen uint64, text string) {
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		slog.Debug("Ignoring decode from finished camera session")
		return
	}

	rec, err := payload.Interpret(text)
	if err != nil {
		c.mu.Unlock()
		slog.Warn("Error parsing QR code data", "error", err)
		c.fail(err)
		return
	}

	h := c.handle
	c.handle = nil
	c.gen++
	c.sess.showResult(rec, c.newID(), SourceCamera)
	c.unlockAndNotify()

	slog.Info("QR code scanned", "source", SourceCamera, "fields", len(rec))
	if h != nil {
		c.releaseDetached(h)
	}
}

func (c *Controller) handleEngineError(gen uint64, err error) {
	if !errors.Is(err, engine.ErrDeviceLost) {
		slog.Debug("Scan failed", "error", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.handle == nil {
		c.mu.Unlock()
		return
	}
	h := c.handle
	c.handle = nil
	c.gen++
	c.sess.cameraStopped()
	c.sess.showError(MsgCameraAccess)
	c.unlockAndNotify()

	err = fmt.Errorf("%w: %w", ErrCameraAccess, err)
	slog.Error("Camera lost", "error", err)
	c.fail(err)
	c.releaseDetached(h)
}

// StopCamera stops the active camera. With no camera it does nothing, so it is
// safe to call from any phase and any number of times. A start in flight is
// canceled. Engine stop failures are logged, and the handle is considered
// released regardless.
func (c *Controller) StopCamera(ctx context.Context) {
	c.mu.Lock()
	h := c.handle
	if h == nil && !c.sess.starting {
		c.mu.Unlock()
		return
	}
	c.handle = nil
	c.gen++
	c.sess.cameraStopped()
	c.unlockAndNotify()

	if h != nil {
		c.release(ctx, h)
	}
}

// ScanImage decodes a single still image with a one-shot decode that does not
// touch the camera. On success the result is shown and any running camera is
// released. Decode failures surface ErrInvalidImage to the user; unparseable
// payloads are logged and leave the phase unchanged.
func (c *Controller) ScanImage(ctx context.Context, r io.Reader) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	text, err := c.eng.DecodeImage(ctx, r)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.mu.Lock()
		c.sess.showError(MsgInvalidImage)
		c.unlockAndNotify()

		err = fmt.Errorf("%w: %w", ErrInvalidImage, err)
		slog.Warn("Image scan failed", "error", err)
		c.fail(err)
		return err
	}

	rec, err := payload.Interpret(text)
	if err != nil {
		slog.Warn("Error parsing QR code data", "error", err)
		c.fail(err)
		return fmt.Errorf("scan image: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	h := c.handle
	c.handle = nil
	c.gen++
	c.sess.showResult(rec, c.newID(), SourceImage)
	c.unlockAndNotify()

	slog.Info("QR code scanned", "source", SourceImage, "fields", len(rec))
	if h != nil {
		c.release(ctx, h)
	}
	return nil
}

// ScanAgain clears the result and returns to Idle. Any camera still running is
// stopped as well.
func (c *Controller) ScanAgain(ctx context.Context) {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.gen++
	c.sess.deviceID = ""
	c.sess.reset()
	c.unlockAndNotify()

	if h != nil {
		c.release(ctx, h)
	}
}

// Primary performs the single-button action for the current phase: start the
// camera when idle, stop it when scanning, scan again when a result is shown.
func (c *Controller) Primary(ctx context.Context) error {
	switch c.Snapshot().Phase {
	case PhaseIdle:
		return c.StartCamera(ctx)
	case PhaseCameraActive:
		c.StopCamera(ctx)
	case PhaseResultShown:
		c.ScanAgain(ctx)
	}
	return nil
}

// Close stops the camera and rejects further work.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	h := c.handle
	c.handle = nil
	c.gen++
	c.sess.cameraStopped()
	c.unlockAndNotify()

	if h != nil {
		c.release(ctx, h)
	}

	done := make(chan struct{})
	go func() {
		c.releases.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Camera release still pending at close", "error", ctx.Err())
	}
}

// releaseDetached stops h on its own goroutine. Decode and error callbacks run
// on the engine's worker, and a handle's Stop waits for that worker to exit.
func (c *Controller) releaseDetached(h engine.Handle) {
	c.releases.Add(1)
	go func() {
		defer c.releases.Done()
		c.release(context.Background(), h)
	}()
}

// release stops a detached handle. Failures are logged, never returned.
func (c *Controller) release(ctx context.Context, h engine.Handle) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.StopTimeout)
		defer cancel()
	}
	if err := h.Stop(ctx); err != nil {
		err = fmt.Errorf("%w: %w", ErrStopFailed, err)
		slog.Error("Failed to stop camera", "error", err)
		c.fail(err)
		return
	}
	slog.Info("Camera stopped")
}

func (c *Controller) fail(err error) {
	if c.hooks.OnFailure != nil {
		c.hooks.OnFailure(err)
	}
}

// unlockAndNotify queues the current state for listeners. It must be called
// with c.mu held and releases it. Snapshots are queued under mu, so queue
// order is transition order; whichever goroutine finds no drain in progress
// delivers the queue with mu released.
func (c *Controller) unlockAndNotify() {
	c.pending = append(c.pending, c.sess.snapshot())
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()

		c.subsMu.Lock()
		subs := c.subs
		c.subsMu.Unlock()
		for _, snap := range batch {
			for _, fn := range subs {
				fn(snap)
			}
		}

		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}
