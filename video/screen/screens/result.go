//go:build screen

package screens

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp"

	"qrscan/engine"
	"qrscan/video/screen"
	"qrscan/view"
)

const (
	avatarSize      = 160
	maxAvatarBytes  = 5 << 20
	maxAvatarPixels = 4_000_000
)

// ResultScreen shows the decoded record as a card.
type ResultScreen struct {
	mgr    *screen.Manager
	client *http.Client
	layout view.Layout

	mu      sync.Mutex // protects avatar, version
	avatar  image.Image
	version uint64
	cancel  context.CancelFunc
}

// NewResultScreen creates a new result screen. client fetches profile images.
func NewResultScreen(client *http.Client) *ResultScreen {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ResultScreen{client: client}
}

func (s *ResultScreen) Init(mgr *screen.Manager) {
	s.mgr = mgr
	s.show(mgr.Layout())
}

func (s *ResultScreen) show(l view.Layout) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.layout = l
	s.version = l.Version
	s.avatar = nil
	s.mu.Unlock()

	if l.Card == nil || !fetchable(l.Card.ImageURL) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	go s.loadAvatar(ctx, l.Version, l.Card.ImageURL)
}

func fetchable(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func (s *ResultScreen) loadAvatar(ctx context.Context, version uint64, url string) {
	img, err := fetchImage(ctx, s.client, url)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("Failed to load profile image", "url", url, "error", err)
		}
		return
	}

	s.mu.Lock()
	if s.version != version || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.avatar = screen.ScaleImage(img, avatarSize, avatarSize)
	s.mu.Unlock()
	s.Update()
}

func fetchImage(ctx context.Context, client *http.Client, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	img, err := engine.DecodeLimited(io.LimitReader(resp.Body, maxAvatarBytes), maxAvatarPixels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return img, nil
}

func (s *ResultScreen) Update() {
	s.mu.Lock()
	card := s.layout.Card
	avatar := s.avatar
	s.mu.Unlock()

	s.mgr.Draw(func() {
		w, h := float64(s.mgr.Width()), float64(s.mgr.Height())
		s.mgr.FillBackground(0.07, 0.07, 0.09)

		// Card
		cw, ch := w*0.7, h*0.72
		cx, cy := (w-cw)/2, h*0.06
		dc := s.mgr.DC()
		dc.SetRGB(0.16, 0.16, 0.2)
		dc.DrawRoundedRectangle(cx, cy, cw, ch, 16)
		dc.Fill()

		y := cy + 30
		if avatar != nil {
			ax, ay := w/2-avatarSize/2, y
			dc.DrawCircle(w/2, ay+avatarSize/2, avatarSize/2)
			dc.Clip()
			dc.DrawImage(avatar, int(ax), int(ay))
			dc.ResetClip()
			dc.SetRGB(1, 1, 1)
			dc.SetLineWidth(4)
			dc.DrawCircle(w/2, ay+avatarSize/2, avatarSize/2)
			dc.Stroke()
			y += avatarSize + 20
		}

		if card != nil {
			if card.Name != "" {
				s.mgr.SetFontSize(40)
				s.mgr.DrawCentered(card.Name, y+30, 1, 1, 1)
				y += 70
			}
			if card.Contact != "" {
				label := "Tel: " + card.Contact
				if card.IsEmail {
					label = "Email: " + card.Contact
				}
				s.mgr.SetFontSize(24)
				s.mgr.DrawCentered(label, y+20, 0.8, 0.8, 0.8)
				y += 40
			}
			if card.Dept != "" {
				s.mgr.SetFontSize(24)
				s.mgr.DrawCentered(card.Dept, y+20, 0.8, 0.8, 0.8)
			}
			if card.Empty() {
				s.mgr.SetFontSize(24)
				s.mgr.DrawCentered("No details in this code", cy+ch/2, 0.8, 0.8, 0.8)
			}
		}

		s.mgr.FillRect(int(w/2)-150, int(h*0.84), 300, 60, 0.15, 0.39, 0.92)
		s.mgr.SetFontSize(26)
		s.mgr.DrawCentered(view.ScanAgainLabel, h*0.84+30, 1, 1, 1)
		s.mgr.Flush()
	})
}

func (s *ResultScreen) HandleEvent(event screen.Event) bool {
	if event.Type == screen.EventSession {
		if data := event.Session(); data != nil {
			s.show(data.Layout)
		}
		return true
	}
	return false
}

func (s *ResultScreen) Exit() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.avatar = nil
	s.layout = view.Layout{}
	s.mu.Unlock()
}

func (s *ResultScreen) Name() string {
	return "Result"
}
