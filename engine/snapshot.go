package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// maxSnapshotFailures is how many consecutive failed frame fetches end a
// session with ErrDeviceLost.
const maxSnapshotFailures = 50

// SnapshotConfig describes a network camera that serves single JPEG/PNG
// frames at a URL (most IP cameras expose one, as does a mjpg-streamer
// "?action=snapshot" endpoint).
type SnapshotConfig struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	URL   string `yaml:"url"`
}

// Snapshot polls a snapshot URL and decodes each frame.
type Snapshot struct {
	cfg     SnapshotConfig
	client  *http.Client
	decoder *Decoder
}

// NewSnapshot creates a snapshot camera source.
func NewSnapshot(cfg SnapshotConfig, client *http.Client, decoder *Decoder) *Snapshot {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	if decoder == nil {
		decoder = NewDecoder()
	}
	return &Snapshot{cfg: cfg, client: client, decoder: decoder}
}

// Device returns the descriptor for this camera.
func (s *Snapshot) Device() Device {
	label := s.cfg.Label
	if label == "" {
		label = s.cfg.Name
	}
	return Device{ID: "snapshot:" + s.cfg.Name, Label: label, Kind: "snapshot"}
}

// Start fetches one frame to prove the camera is reachable, then decodes
// frames at cfg.FPS until stopped.
func (s *Snapshot) Start(ctx context.Context, cfg ScanConfig, onDecode DecodeFunc, onError ErrorFunc) (Handle, error) {
	first, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", s.cfg.Name, err)
	}

	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultScanConfig.FPS
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h := &snapshotHandle{
		cancel: cancel,
		done:   make(chan struct{}),
		frame:  first,
	}
	go s.run(runCtx, h, time.Second/time.Duration(fps), cfg.Region, onDecode, onError)

	slog.Info("Snapshot camera started", "camera", s.cfg.Name, "fps", fps,
		"region", fmt.Sprintf("%dx%d", cfg.Region.Width, cfg.Region.Height))
	return h, nil
}

func (s *Snapshot) run(ctx context.Context, h *snapshotHandle, interval time.Duration, region Region, onDecode DecodeFunc, onError ErrorFunc) {
	defer close(h.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dedupe := newDedupe(1500 * time.Millisecond)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		img, err := s.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures >= maxSnapshotFailures {
				if onError != nil {
					onError(fmt.Errorf("camera %s: %w: %v", s.cfg.Name, ErrDeviceLost, err))
				}
				return
			}
			if onError != nil {
				onError(err)
			}
			continue
		}
		failures = 0
		h.setFrame(img)

		text, err := s.decoder.Decode(img, region)
		if err != nil {
			continue
		}
		if dedupe.seen(text, time.Now()) {
			continue
		}
		if onDecode != nil {
			onDecode(text)
		}
	}
}

func (s *Snapshot) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot %s: status %d", s.cfg.URL, resp.StatusCode)
	}
	img, err := DecodeLimited(resp.Body, MaxDecodePixels)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: frame: %w", s.cfg.URL, err)
	}
	return img, nil
}

type snapshotHandle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	frame image.Image
}

func (h *snapshotHandle) setFrame(img image.Image) {
	h.mu.Lock()
	h.frame = img
	h.mu.Unlock()
}

// Frame implements Previewer.
func (h *snapshotHandle) Frame() image.Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

// Stop implements Handle.
func (h *snapshotHandle) Stop(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop snapshot camera: %w", ctx.Err())
	}
}

// dedupe suppresses repeats of the same text inside a cooldown window, so a
// code held in front of the camera is reported once rather than every frame.
type dedupe struct {
	cooldown time.Duration
	last     string
	at       time.Time
}

func newDedupe(cooldown time.Duration) *dedupe {
	return &dedupe{cooldown: cooldown}
}

func (d *dedupe) seen(text string, now time.Time) bool {
	if text == d.last && now.Sub(d.at) < d.cooldown {
		return true
	}
	d.last = text
	d.at = now
	return false
}
