package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"qrscan/engine"
	"qrscan/payload"
	"qrscan/scanner"
	"qrscan/view"
)

const (
	maxUploadBytes = 10 << 20
	sniffLen       = 512
	refreshSeconds = 1
)

var (
	errNoFile    = errors.New("no image uploaded")
	errNotImage  = errors.New("uploaded file is not an image")
	errNoPreview = errors.New("no preview available")
)

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps handler errors to HTTP status codes.
func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, errNoFile):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, errNotImage):
			http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		case errors.Is(err, errNoPreview):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, scanner.ErrBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, scanner.ErrClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			slog.Error("HTTP handler error", "path", req.URL.Path, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// commandContext detaches a command from the request so a closed browser
// tab does not abort a camera start half way.
func commandContext(req *http.Request) context.Context {
	return context.WithoutCancel(req.Context())
}

// surfaced reports whether the session already shows err to the user, so a
// form action can simply return to the page.
func surfaced(err error) bool {
	return errors.Is(err, engine.ErrNoDevice) ||
		errors.Is(err, scanner.ErrCameraAccess) ||
		errors.Is(err, scanner.ErrInvalidImage) ||
		errors.Is(err, scanner.ErrStartCanceled) ||
		errors.Is(err, scanner.ErrBusy)
}

func seeOther(w http.ResponseWriter, req *http.Request) error {
	http.Redirect(w, req, "/", http.StatusSeeOther)
	return nil
}

// GET /
func (s *Server) handlePage(w http.ResponseWriter, req *http.Request) error {
	snap := s.scn.Snapshot()
	page := view.NewPage(view.Build(snap))
	page.Background = s.cfg.Background
	if page.LivePreview {
		page.PreviewURL = fmt.Sprintf("/preview.jpg?v=%d", snap.Version)
	}
	if page.LivePreview || snap.Starting {
		page.RefreshSeconds = refreshSeconds
	}

	var buf bytes.Buffer
	if err := view.RenderHTML(&buf, page); err != nil {
		return fmt.Errorf("render page: %w", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, err := buf.WriteTo(w)
	return err
}

// POST /camera
func (s *Server) handleCamera(w http.ResponseWriter, req *http.Request) error {
	if err := s.scn.StartCamera(commandContext(req)); err != nil && !surfaced(err) {
		return err
	}
	return seeOther(w, req)
}

// POST /stop
func (s *Server) handleStop(w http.ResponseWriter, req *http.Request) error {
	s.scn.StopCamera(commandContext(req))
	return seeOther(w, req)
}

// POST /again
func (s *Server) handleAgain(w http.ResponseWriter, req *http.Request) error {
	s.scn.ScanAgain(commandContext(req))
	return seeOther(w, req)
}

// POST /upload, multipart field "image"
func (s *Server) handleUpload(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return fmt.Errorf("%w: %v", errNoFile, err)
	}
	defer req.MultipartForm.RemoveAll()

	f, hdr, err := req.FormFile("image")
	if err != nil {
		return fmt.Errorf("%w: %v", errNoFile, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if !strings.HasPrefix(hdr.Header.Get("Content-Type"), "image/") ||
		!strings.HasPrefix(http.DetectContentType(head), "image/") {
		return fmt.Errorf("%w: %s", errNotImage, hdr.Filename)
	}

	err = s.scn.ScanImage(commandContext(req), io.MultiReader(bytes.NewReader(head), f))
	if err != nil && !surfaced(err) && !errors.Is(err, payload.ErrParse) {
		return err
	}
	return seeOther(w, req)
}

// GET /preview.jpg
func (s *Server) handlePreview(w http.ResponseWriter, req *http.Request) error {
	frame := s.scn.Preview()
	if frame == nil {
		return errNoPreview
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 80}); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, err := buf.WriteTo(w)
	return err
}

// stateResponse is the body of GET /api/state.
type stateResponse struct {
	Version     uint64            `json:"version"`
	Phase       string            `json:"phase"`
	Starting    bool              `json:"starting"`
	CameraError string            `json:"camera_error,omitempty"`
	DeviceID    string            `json:"device_id,omitempty"`
	ScanID      string            `json:"scan_id,omitempty"`
	Source      string            `json:"source,omitempty"`
	Record      map[string]string `json:"record,omitempty"`
	Layout      view.Layout       `json:"layout"`
}

// GET /api/state
func (s *Server) handleState(w http.ResponseWriter, req *http.Request) error {
	snap := s.scn.Snapshot()
	resp := stateResponse{
		Version:     snap.Version,
		Phase:       snap.Phase.String(),
		Starting:    snap.Starting,
		CameraError: snap.CameraError,
		DeviceID:    snap.DeviceID,
		ScanID:      snap.ScanID,
		Source:      string(snap.Source),
		Record:      snap.Record,
		Layout:      view.Build(snap),
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}
