package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"qrscan/engine"
	"qrscan/payload"
)

type fakeHandle struct {
	stops   atomic.Int32
	stopErr error
}

func (h *fakeHandle) Stop(ctx context.Context) error {
	h.stops.Add(1)
	return h.stopErr
}

type fakeEngine struct {
	mu       sync.Mutex
	devices  []engine.Device
	listErr  error
	startErr error
	stopErr  error
	started  []string
	handles  []*fakeHandle
	onDecode engine.DecodeFunc
	onError  engine.ErrorFunc
	scanCfg  engine.ScanConfig

	// decodeOnStart is delivered from inside Start, before it returns.
	decodeOnStart string

	imageText string
	imageErr  error
}

func (f *fakeEngine) ListDevices(ctx context.Context) ([]engine.Device, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.devices) == 0 {
		return nil, engine.ErrNoDevice
	}
	return f.devices, nil
}

func (f *fakeEngine) Start(ctx context.Context, id string, cfg engine.ScanConfig, onDecode engine.DecodeFunc, onError engine.ErrorFunc) (engine.Handle, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	h := &fakeHandle{stopErr: f.stopErr}
	f.mu.Lock()
	f.started = append(f.started, id)
	f.handles = append(f.handles, h)
	f.onDecode = onDecode
	f.onError = onError
	f.scanCfg = cfg
	f.mu.Unlock()

	if f.decodeOnStart != "" {
		onDecode(f.decodeOnStart)
	}
	return h, nil
}

func (f *fakeEngine) DecodeImage(ctx context.Context, r io.Reader) (string, error) {
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return f.imageText, nil
}

func (f *fakeEngine) decode(text string) {
	f.mu.Lock()
	fn := f.onDecode
	f.mu.Unlock()
	fn(text)
}

func (f *fakeEngine) lastHandle() *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[len(f.handles)-1]
}

func twoCameras() []engine.Device {
	return []engine.Device{
		{ID: "cam1", Label: "Front", Kind: "snapshot"},
		{ID: "cam2", Label: "Back", Kind: "snapshot"},
	}
}

type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) record(err error) {
	f.mu.Lock()
	f.errs = append(f.errs, err)
	f.mu.Unlock()
}

func (f *failures) has(target error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, err := range f.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func newTestController(eng *fakeEngine) (*Controller, *failures) {
	var fails failures
	c := NewController(eng, Options{}, Hooks{OnFailure: fails.record})
	n := 0
	c.newID = func() string {
		n++
		return fmt.Sprintf("scan-%d", n)
	}
	return c, &fails
}

func mustStart(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
}

func TestSelectDevice(t *testing.T) {
	one := []engine.Device{{ID: "only"}}
	tests := []struct {
		name      string
		devs      []engine.Device
		preferred string
		want      string
		ok        bool
	}{
		{"two devices picks second", twoCameras(), "", "cam2", true},
		{"single device", one, "", "only", true},
		{"preferred present", twoCameras(), "cam1", "cam1", true},
		{"preferred missing falls back", twoCameras(), "cam9", "cam2", true},
		{"empty", nil, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectDevice(tt.devs, tt.preferred)
			if ok != tt.ok || got.ID != tt.want {
				t.Errorf("SelectDevice = %q, %v; want %q, %v", got.ID, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestStartCameraSelectsSecondDevice(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	mustStart(t, c)

	if len(eng.started) != 1 || eng.started[0] != "cam2" {
		t.Fatalf("started devices = %v, want [cam2]", eng.started)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseCameraActive || snap.DeviceID != "cam2" {
		t.Errorf("snapshot = %+v, want camera active on cam2", snap)
	}
	if !snap.Consistent() {
		t.Error("snapshot inconsistent")
	}
	if eng.scanCfg != engine.DefaultScanConfig {
		t.Errorf("scan config = %+v, want %+v", eng.scanCfg, engine.DefaultScanConfig)
	}
}

func TestStartCameraNoDevice(t *testing.T) {
	c, fails := newTestController(&fakeEngine{})

	err := c.StartCamera(context.Background())
	if !errors.Is(err, engine.ErrNoDevice) {
		t.Fatalf("error = %v, want ErrNoDevice", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.CameraError != MsgNoDevice || snap.Starting {
		t.Errorf("snapshot = %+v, want idle with no-device message", snap)
	}
	if !fails.has(engine.ErrNoDevice) {
		t.Error("failure hook not called")
	}
}

func TestStartCameraAccessError(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras(), startErr: errors.New("permission denied")}
	c, _ := newTestController(eng)

	err := c.StartCamera(context.Background())
	if !errors.Is(err, ErrCameraAccess) {
		t.Fatalf("error = %v, want ErrCameraAccess", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.CameraError != MsgCameraAccess {
		t.Errorf("snapshot = %+v, want idle with access message", snap)
	}

	// The error clears once a camera starts.
	eng.startErr = nil
	mustStart(t, c)
	if got := c.Snapshot().CameraError; got != "" {
		t.Errorf("camera error after successful start = %q", got)
	}
}

func TestStartCameraBusy(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	mustStart(t, c)

	if err := c.StartCamera(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second start error = %v, want ErrBusy", err)
	}
	if len(eng.handles) != 1 {
		t.Errorf("handles created = %d, want 1", len(eng.handles))
	}
}

func TestCameraScanShowsResultAndReleasesOnce(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	mustStart(t, c)
	h := eng.lastHandle()

	eng.decode(`{"name":"Jane Doe","contact":"jane@x.com"}`)

	snap := c.Snapshot()
	if snap.Phase != PhaseResultShown {
		t.Fatalf("phase = %v, want result shown", snap.Phase)
	}
	if snap.Record.Name() != "Jane Doe" || snap.Record.Contact() != "jane@x.com" {
		t.Errorf("record = %v", snap.Record)
	}
	if snap.Source != SourceCamera || snap.ScanID != "scan-1" {
		t.Errorf("source/scan id = %q/%q", snap.Source, snap.ScanID)
	}
	if !snap.Consistent() {
		t.Error("snapshot inconsistent")
	}

	// A late event from the same session must not replace the result.
	eng.decode(`{"name":"Someone Else"}`)
	if got := c.Snapshot().Record.Name(); got != "Jane Doe" {
		t.Errorf("late decode replaced result: %q", got)
	}
	c.releases.Wait()
	if got := h.stops.Load(); got != 1 {
		t.Errorf("handle stopped %d times, want 1", got)
	}
}

func TestParseErrorKeepsCameraRunning(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, fails := newTestController(eng)
	mustStart(t, c)

	before := c.Snapshot()
	eng.decode("WIFI:S:home;T:WPA;;")

	after := c.Snapshot()
	if after.Phase != PhaseCameraActive || after.Record != nil {
		t.Errorf("snapshot after parse error = %+v", after)
	}
	if after.Version != before.Version {
		t.Errorf("parse error changed state: version %d -> %d", before.Version, after.Version)
	}
	if eng.lastHandle().stops.Load() != 0 {
		t.Error("camera stopped on parse error")
	}
	if !fails.has(payload.ErrParse) {
		t.Error("parse error not reported to hooks")
	}

	// The user can keep scanning.
	eng.decode(`{"dept":"EE"}`)
	if got := c.Snapshot(); got.Phase != PhaseResultShown || got.Record.Dept() != "EE" {
		t.Errorf("snapshot after retry = %+v", got)
	}
}

func TestStopCameraIdempotent(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)

	c.StopCamera(context.Background())
	if v := c.Snapshot().Version; v != 0 {
		t.Errorf("stop with no camera changed state, version %d", v)
	}

	mustStart(t, c)
	c.StopCamera(context.Background())
	once := c.Snapshot()
	c.StopCamera(context.Background())
	twice := c.Snapshot()

	if once.Phase != PhaseIdle || twice.Phase != PhaseIdle {
		t.Errorf("phases = %v, %v; want idle", once.Phase, twice.Phase)
	}
	if once.Version != twice.Version || once.CameraError != twice.CameraError {
		t.Errorf("second stop changed state: %+v -> %+v", once, twice)
	}
	if got := eng.lastHandle().stops.Load(); got != 1 {
		t.Errorf("handle stopped %d times, want 1", got)
	}
}

func TestStopFailureStillReleases(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras(), stopErr: errors.New("stuck")}
	c, fails := newTestController(eng)
	mustStart(t, c)

	c.StopCamera(context.Background())
	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.CameraError != "" {
		t.Errorf("snapshot = %+v, want idle without user-visible error", snap)
	}
	if !fails.has(ErrStopFailed) {
		t.Error("stop failure not reported to hooks")
	}

	// A new camera can be started after a failed stop.
	mustStart(t, c)
}

func TestScanImageInvalid(t *testing.T) {
	eng := &fakeEngine{imageErr: engine.ErrDecode}
	c, _ := newTestController(eng)

	err := c.ScanImage(context.Background(), strings.NewReader("junk"))
	if !errors.Is(err, ErrInvalidImage) || !errors.Is(err, engine.ErrDecode) {
		t.Fatalf("error = %v, want ErrInvalidImage wrapping ErrDecode", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.Record != nil || snap.CameraError != MsgInvalidImage {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestScanImageFromIdle(t *testing.T) {
	eng := &fakeEngine{imageText: `{"contact":"03001234567"}`}
	c, _ := newTestController(eng)

	if err := c.ScanImage(context.Background(), strings.NewReader("png")); err != nil {
		t.Fatalf("ScanImage: %v", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseResultShown || snap.Source != SourceImage || snap.Record.ContactHref() != "tel:03001234567" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestScanImageWhileCameraActive(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras(), imageText: `{"name":"Ali"}`}
	c, _ := newTestController(eng)
	mustStart(t, c)

	if err := c.ScanImage(context.Background(), strings.NewReader("png")); err != nil {
		t.Fatalf("ScanImage: %v", err)
	}
	if got := c.Snapshot(); got.Phase != PhaseResultShown || got.Record.Name() != "Ali" {
		t.Errorf("snapshot = %+v", got)
	}
	if got := eng.lastHandle().stops.Load(); got != 1 {
		t.Errorf("camera stopped %d times, want 1", got)
	}

	// Events from the released camera are ignored.
	eng.decode(`{"name":"Late"}`)
	if got := c.Snapshot().Record.Name(); got != "Ali" {
		t.Errorf("record = %q after late camera event", got)
	}
}

func TestScanImageParseErrorKeepsPhase(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras(), imageText: "plain text"}
	c, _ := newTestController(eng)
	mustStart(t, c)
	before := c.Snapshot()

	err := c.ScanImage(context.Background(), strings.NewReader("png"))
	if !errors.Is(err, payload.ErrParse) {
		t.Fatalf("error = %v, want ErrParse", err)
	}
	after := c.Snapshot()
	if after.Phase != PhaseCameraActive || after.Version != before.Version {
		t.Errorf("snapshot changed: %+v -> %+v", before, after)
	}
}

func TestScanAgain(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	mustStart(t, c)
	eng.decode(`{"name":"Jane"}`)

	c.ScanAgain(context.Background())
	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.Record != nil || snap.ScanID != "" || snap.CameraError != "" {
		t.Errorf("snapshot = %+v, want clean idle", snap)
	}
	if got := eng.lastHandle().stops.Load(); got != 1 {
		t.Errorf("handle stopped %d times, want 1", got)
	}

	// The cycle repeats.
	mustStart(t, c)
	if len(eng.handles) != 2 {
		t.Errorf("handles = %d, want 2", len(eng.handles))
	}
}

func TestScanAgainWhileCameraActive(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	mustStart(t, c)

	c.ScanAgain(context.Background())
	if got := c.Snapshot(); got.Phase != PhaseIdle || got.DeviceID != "" {
		t.Errorf("snapshot = %+v", got)
	}
	if got := eng.lastHandle().stops.Load(); got != 1 {
		t.Errorf("handle stopped %d times, want 1", got)
	}
}

func TestDeviceLost(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, fails := newTestController(eng)
	mustStart(t, c)

	eng.onError(fmt.Errorf("unplugged: %w", engine.ErrDeviceLost))

	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.CameraError != MsgCameraAccess {
		t.Errorf("snapshot = %+v", snap)
	}
	if !fails.has(ErrCameraAccess) {
		t.Error("device loss not reported")
	}
	c.releases.Wait()
	if got := eng.lastHandle().stops.Load(); got != 1 {
		t.Errorf("handle stopped %d times, want 1", got)
	}

	// Transient frame errors are ignored.
	mustStart(t, c)
	eng.onError(errors.New("timeout fetching frame"))
	if got := c.Snapshot().Phase; got != PhaseCameraActive {
		t.Errorf("phase = %v after transient error", got)
	}
}

func TestStaleDecodeAfterRestart(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	mustStart(t, c)
	stale := eng.onDecode

	c.StopCamera(context.Background())
	mustStart(t, c)

	stale(`{"name":"Old"}`)
	if got := c.Snapshot(); got.Phase != PhaseCameraActive || got.Record != nil {
		t.Errorf("stale decode acted on: %+v", got)
	}
}

func TestDecodeDuringStart(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras(), decodeOnStart: `{"name":"Quick"}`}
	c, _ := newTestController(eng)

	err := c.StartCamera(context.Background())
	if !errors.Is(err, ErrStartCanceled) {
		t.Fatalf("error = %v, want ErrStartCanceled", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseResultShown || snap.Record.Name() != "Quick" || snap.Starting {
		t.Errorf("snapshot = %+v", snap)
	}
	if got := eng.lastHandle().stops.Load(); got != 1 {
		t.Errorf("handle stopped %d times, want 1", got)
	}
}

func TestListenersSeeOrderedConsistentSnapshots(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras(), imageErr: engine.ErrDecode}
	c, _ := newTestController(eng)

	var seen []Snapshot
	c.Subscribe(func(s Snapshot) { seen = append(seen, s) })

	mustStart(t, c)
	c.ScanImage(context.Background(), strings.NewReader("x"))
	eng.decode("not json")
	eng.decode(`{"name":"Jane"}`)
	c.ScanAgain(context.Background())

	if len(seen) == 0 {
		t.Fatal("no snapshots delivered")
	}
	for i, s := range seen {
		if !s.Consistent() {
			t.Errorf("snapshot %d inconsistent: %+v", i, s)
		}
		if i > 0 && s.Version <= seen[i-1].Version {
			t.Errorf("snapshot %d version %d not after %d", i, s.Version, seen[i-1].Version)
		}
	}
	last := seen[len(seen)-1]
	if last.Phase != PhaseIdle {
		t.Errorf("last phase = %v", last.Phase)
	}
}

func TestPrimaryCycles(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	ctx := context.Background()

	if err := c.Primary(ctx); err != nil {
		t.Fatalf("Primary from idle: %v", err)
	}
	if got := c.Snapshot().Phase; got != PhaseCameraActive {
		t.Fatalf("phase = %v", got)
	}
	c.Primary(ctx)
	if got := c.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("phase after stop = %v", got)
	}

	c.Primary(ctx)
	eng.decode(`{"name":"X"}`)
	c.Primary(ctx)
	if got := c.Snapshot(); got.Phase != PhaseIdle || got.Record != nil {
		t.Errorf("snapshot after scan again = %+v", got)
	}
}

func TestClose(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)
	mustStart(t, c)

	c.Close(context.Background())
	c.Close(context.Background())
	if got := eng.lastHandle().stops.Load(); got != 1 {
		t.Errorf("handle stopped %d times, want 1", got)
	}
	if err := c.StartCamera(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("start after close = %v, want ErrClosed", err)
	}
	if err := c.ScanImage(context.Background(), strings.NewReader("")); !errors.Is(err, ErrClosed) {
		t.Errorf("image after close = %v, want ErrClosed", err)
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{
		PhaseIdle:         "idle",
		PhaseCameraActive: "camera_active",
		PhaseResultShown:  "result_shown",
		Phase(9):          "unknown",
	} {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", p, got, want)
		}
	}
}
