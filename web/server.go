// Package web serves the scanner page, its form actions and a small JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"qrscan/scanner"
)

// DefaultListen is the listen address used when none is configured.
const DefaultListen = ":8080"

// Config holds configuration for the HTTP server.
type Config struct {
	Listen         string   `yaml:"listen"`          // e.g. ":8080"; "off" disables the server
	Background     string   `yaml:"background"`      // card background image URL
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS origins for /api (default "*")
}

// Enabled reports whether the server should run.
func (c Config) Enabled() bool {
	return c.Listen != "" && c.Listen != "off"
}

// Scanner is the part of scanner.Controller the server drives.
type Scanner interface {
	Snapshot() scanner.Snapshot
	Preview() image.Image
	StartCamera(ctx context.Context) error
	StopCamera(ctx context.Context)
	ScanAgain(ctx context.Context)
	ScanImage(ctx context.Context, r io.Reader) error
}

// Server is the scanner's HTTP front end.
type Server struct {
	cfg     Config
	scn     Scanner
	metrics http.Handler
	router  chi.Router
	srv     *http.Server
}

// NewServer builds the router. metrics may be nil.
func NewServer(cfg Config, scn Scanner, metrics http.Handler) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, scn: scn, metrics: metrics}
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger)
	mux.Use(middleware.Recoverer)

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	mux.Get("/", s.wrap(s.handlePage))
	mux.Post("/camera", s.wrap(s.handleCamera))
	mux.Post("/stop", s.wrap(s.handleStop))
	mux.Post("/again", s.wrap(s.handleAgain))
	mux.Post("/upload", s.wrap(s.handleUpload))
	mux.Get("/preview.jpg", s.wrap(s.handlePreview))

	mux.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/api/state", s.wrap(s.handleState))
	})

	return mux
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until Shutdown. It never returns http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	slog.Info("HTTP server listening", "addr", s.cfg.Listen)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
