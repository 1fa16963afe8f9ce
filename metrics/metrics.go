// Package metrics exports scanner counters in the Prometheus format.
package metrics

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrscan/engine"
	"qrscan/payload"
	"qrscan/scanner"
)

const namespace = "qrscan"

// Metrics holds the scanner collectors on a private registry.
type Metrics struct {
	registry     *prometheus.Registry
	scans        *prometheus.CounterVec
	failures     *prometheus.CounterVec
	sessions     prometheus.Counter
	stopFailures prometheus.Counter
	phase        *prometheus.GaugeVec

	mu       sync.Mutex // protects last
	last     scanner.Snapshot
	observed bool
}

// New creates and registers the scanner collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Records decoded, by source.",
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Scan failures, by kind.",
		}, []string{"kind"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_sessions_total",
			Help:      "Camera sessions started.",
		}),
		stopFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_stop_failures_total",
			Help:      "Camera stops the engine reported as failed.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "1 for the current session phase, 0 otherwise.",
		}, []string{"phase"}),
	}
	m.registry.MustRegister(
		m.scans, m.failures, m.sessions, m.stopFailures, m.phase,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, p := range []scanner.Phase{scanner.PhaseIdle, scanner.PhaseCameraActive, scanner.PhaseResultShown} {
		m.phase.WithLabelValues(p.String())
	}
	m.phase.WithLabelValues(scanner.PhaseIdle.String()).Set(1)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe updates counters from a session transition. Snapshots must arrive
// in transition order, as Controller.Subscribe delivers them.
func (m *Metrics) Observe(s scanner.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.last
	if !m.observed {
		prev = scanner.Snapshot{}
	}
	m.last, m.observed = s, true

	if s.Phase != prev.Phase {
		m.phase.WithLabelValues(prev.Phase.String()).Set(0)
		m.phase.WithLabelValues(s.Phase.String()).Set(1)
	}
	if s.Phase == scanner.PhaseCameraActive && (prev.Phase != scanner.PhaseCameraActive || s.DeviceID != prev.DeviceID) {
		m.sessions.Inc()
	}
	if s.Phase == scanner.PhaseResultShown && s.ScanID != prev.ScanID {
		m.scans.WithLabelValues(string(s.Source)).Inc()
	}
}

// Failure counts a failure reported by the controller.
func (m *Metrics) Failure(err error) {
	kind := FailureKind(err)
	m.failures.WithLabelValues(kind).Inc()
	if kind == "stop" {
		m.stopFailures.Inc()
	}
}

// FailureKind names the class of a scanner failure for labels and logs.
func FailureKind(err error) string {
	switch {
	case errors.Is(err, scanner.ErrStopFailed):
		return "stop"
	case errors.Is(err, engine.ErrNoDevice):
		return "no_device"
	case errors.Is(err, engine.ErrDeviceLost):
		return "device_lost"
	case errors.Is(err, scanner.ErrCameraAccess):
		return "camera_access"
	case errors.Is(err, scanner.ErrInvalidImage), errors.Is(err, engine.ErrDecode):
		return "invalid_image"
	case errors.Is(err, payload.ErrParse):
		return "parse"
	default:
		return "other"
	}
}
