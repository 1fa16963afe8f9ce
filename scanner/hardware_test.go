package scanner

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"qrscan/engine"
)

func qrServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	bm, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 150, 150, nil)
	if err != nil {
		t.Fatalf("encode QR: %v", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, bm); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	frame := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(frame)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSnapshotCameraScanReleasesCleanly(t *testing.T) {
	srv := qrServer(t, `{"name":"Jane Doe"}`)
	eng, err := engine.New(engine.Config{
		Cameras: []engine.SnapshotConfig{{Name: "door", URL: srv.URL}},
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	var fails failures
	c := NewController(eng, Options{StopTimeout: 2 * time.Second}, Hooks{OnFailure: fails.record})
	shown := make(chan Snapshot, 1)
	c.Subscribe(func(s Snapshot) {
		if s.Phase == PhaseResultShown {
			select {
			case shown <- s:
			default:
			}
		}
	})

	mustStart(t, c)

	select {
	case s := <-shown:
		if s.Record.Name() != "Jane Doe" || s.Source != SourceCamera {
			t.Errorf("result = %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no result from snapshot camera")
	}

	released := make(chan struct{})
	go func() {
		c.releases.Wait()
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("camera not released within a second of the result")
	}

	if fails.has(ErrStopFailed) {
		t.Errorf("clean scan reported a stop failure: %v", fails.errs)
	}
	if c.Preview() != nil {
		t.Error("preview still live after result")
	}
	c.Close(context.Background())
}

func TestListenerMayReadPreviewWhileDecodeArrives(t *testing.T) {
	eng := &fakeEngine{devices: twoCameras()}
	c, _ := newTestController(eng)

	decoded := make(chan struct{})
	var phases []Phase
	c.Subscribe(func(s Snapshot) {
		phases = append(phases, s.Phase)
		if s.Phase != PhaseCameraActive {
			return
		}
		// A frame decodes on the engine's goroutine while the listener is
		// still drawing the scanning screen.
		go func() {
			eng.decode(`{"name":"Jane"}`)
			close(decoded)
		}()
		select {
		case <-decoded:
		case <-time.After(2 * time.Second):
			t.Error("decode blocked behind a running listener")
			return
		}
		c.Preview()
		c.Snapshot()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.StartCamera(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StartCamera did not return")
	}

	if got := c.Snapshot().Phase; got != PhaseResultShown {
		t.Errorf("phase = %v, want result shown", got)
	}
	want := []Phase{PhaseIdle, PhaseCameraActive, PhaseResultShown}
	if len(phases) != len(want) {
		t.Fatalf("listener saw %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("listener saw %v, want %v", phases, want)
			break
		}
	}
}
