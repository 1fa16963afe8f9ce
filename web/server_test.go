package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"qrscan/engine"
	"qrscan/payload"
	"qrscan/scanner"
)

type fakeScanner struct {
	mu       sync.Mutex
	snap     scanner.Snapshot
	frame    image.Image
	startErr error
	imageErr error
	calls    []string
	uploaded []byte
}

func (f *fakeScanner) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeScanner) Snapshot() scanner.Snapshot { return f.snap }
func (f *fakeScanner) Preview() image.Image       { return f.frame }

func (f *fakeScanner) StartCamera(ctx context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakeScanner) StopCamera(ctx context.Context) { f.record("stop") }
func (f *fakeScanner) ScanAgain(ctx context.Context)  { f.record("again") }

func (f *fakeScanner) ScanImage(ctx context.Context, r io.Reader) error {
	f.record("image")
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.uploaded = b
	return f.imageErr
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="code.png"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(body)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestFormActionsRedirect(t *testing.T) {
	tests := []struct {
		path     string
		startErr error
		want     string
	}{
		{"/camera", nil, "start"},
		{"/camera", fmt.Errorf("start camera: %w", engine.ErrNoDevice), "start"},
		{"/camera", scanner.ErrBusy, "start"},
		{"/stop", nil, "stop"},
		{"/again", nil, "again"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			fs := &fakeScanner{startErr: tt.startErr}
			rr := serve(NewServer(Config{}, fs, nil), httptest.NewRequest(http.MethodPost, tt.path, nil))
			if rr.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", rr.Code)
			}
			if loc := rr.Header().Get("Location"); loc != "/" {
				t.Errorf("Location = %q", loc)
			}
			if len(fs.calls) != 1 || fs.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", fs.calls, tt.want)
			}
		})
	}
}

func TestCameraClosed(t *testing.T) {
	fs := &fakeScanner{startErr: scanner.ErrClosed}
	rr := serve(NewServer(Config{}, fs, nil), httptest.NewRequest(http.MethodPost, "/camera", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestUpload(t *testing.T) {
	data := pngBytes(t)
	fs := &fakeScanner{}
	rr := serve(NewServer(Config{}, fs, nil), uploadRequest(t, "image/png", data))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if !bytes.Equal(fs.uploaded, data) {
		t.Errorf("scanner got %d bytes, want %d", len(fs.uploaded), len(data))
	}
}

func TestUploadSurfacedErrorsRedirect(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("%w: %w", scanner.ErrInvalidImage, engine.ErrDecode),
		fmt.Errorf("scan image: %w", payload.ErrParse),
	} {
		fs := &fakeScanner{imageErr: err}
		rr := serve(NewServer(Config{}, fs, nil), uploadRequest(t, "image/png", pngBytes(t)))
		if rr.Code != http.StatusSeeOther {
			t.Errorf("%v: status = %d, want 303", err, rr.Code)
		}
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	fs := &fakeScanner{}
	s := NewServer(Config{}, fs, nil)

	rr := serve(s, uploadRequest(t, "text/plain", []byte("hello")))
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("text/plain: status = %d, want 415", rr.Code)
	}
	// Claimed image type with non-image content.
	rr = serve(s, uploadRequest(t, "image/png", []byte("<html>not a png</html>")))
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("fake png: status = %d, want 415", rr.Code)
	}
	if len(fs.calls) != 0 {
		t.Errorf("scanner called: %v", fs.calls)
	}
}

func TestUploadMissingFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rr := serve(NewServer(Config{}, &fakeScanner{}, nil), req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	big := append(pngBytes(t), make([]byte, maxUploadBytes)...)
	rr := serve(NewServer(Config{}, &fakeScanner{}, nil), uploadRequest(t, "image/png", big))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
}

func TestPageIdle(t *testing.T) {
	fs := &fakeScanner{snap: scanner.Snapshot{Phase: scanner.PhaseIdle, CameraError: scanner.MsgNoDevice}}
	rr := serve(NewServer(Config{}, fs, nil), httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Vehicle Owner QR Scanner", "Scan with Camera", "No cameras found"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "http-equiv=\"refresh\"") {
		t.Error("idle page refreshes")
	}
}

func TestPageCameraActiveRefreshes(t *testing.T) {
	fs := &fakeScanner{snap: scanner.Snapshot{Version: 7, Phase: scanner.PhaseCameraActive, DeviceID: "cam"}}
	rr := serve(NewServer(Config{}, fs, nil), httptest.NewRequest(http.MethodGet, "/", nil))
	body := rr.Body.String()
	if !strings.Contains(body, "http-equiv=\"refresh\"") {
		t.Error("camera page does not refresh")
	}
	if !strings.Contains(body, "/preview.jpg?v=7") {
		t.Error("camera page has no preview image")
	}
}

func TestPreview(t *testing.T) {
	fs := &fakeScanner{}
	s := NewServer(Config{}, fs, nil)
	if rr := serve(s, httptest.NewRequest(http.MethodGet, "/preview.jpg", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("no frame: status = %d, want 404", rr.Code)
	}

	fs.frame = image.NewRGBA(image.Rect(0, 0, 8, 8))
	rr := serve(s, httptest.NewRequest(http.MethodGet, "/preview.jpg", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("status = %d, type = %q", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestState(t *testing.T) {
	fs := &fakeScanner{snap: scanner.Snapshot{
		Version: 3,
		Phase:   scanner.PhaseResultShown,
		Record:  payload.Record{"name": "Jane", "contact": "jane@example.com"},
		ScanID:  "scan-1",
		Source:  scanner.SourceImage,
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Origin", "http://kiosk.local")
	rr := serve(NewServer(Config{}, fs, nil), req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	var resp struct {
		Phase  string            `json:"phase"`
		ScanID string            `json:"scan_id"`
		Record map[string]string `json:"record"`
		Layout struct {
			Phase string `json:"phase"`
			Card  struct {
				Name    string `json:"name"`
				IsEmail bool   `json:"is_email"`
			} `json:"card"`
		} `json:"layout"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Phase != "result_shown" || resp.Layout.Phase != "result_shown" || resp.ScanID != "scan-1" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Layout.Card.Name != "Jane" || !resp.Layout.Card.IsEmail {
		t.Errorf("card = %+v", resp.Layout.Card)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("qrscan_up 1\n"))
	})
	s := NewServer(Config{}, &fakeScanner{}, metrics)
	if rr := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil)); rr.Body.String() != "ok" {
		t.Errorf("health = %q", rr.Body.String())
	}
	if rr := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil)); !strings.Contains(rr.Body.String(), "qrscan_up") {
		t.Errorf("metrics = %q", rr.Body.String())
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() || (Config{Listen: "off"}).Enabled() {
		t.Error("empty or off listen is enabled")
	}
	if !(Config{Listen: ":8080"}).Enabled() {
		t.Error(":8080 is disabled")
	}
}
