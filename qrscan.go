package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrscan/controls"
	"qrscan/engine"
	"qrscan/eventpipe"
	"qrscan/indicator"
	"qrscan/logging"
	"qrscan/metrics"
	"qrscan/mqtt"
	"qrscan/scanner"
	"qrscan/video"
	"qrscan/video/screen"
	"qrscan/view"
	"qrscan/web"
)

var myBuild string

const (
	pingInterval    = 120 * time.Second
	shutdownTimeout = 5 * time.Second
	eventQueueLen   = 16
)

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	ctrl      *scanner.Controller
	mqtt      *mqtt.Client
	topics    mqtt.Topics
	reporter  *mqtt.Reporter
	indicator indicator.Indicator
	display   *video.Display
	controls  *controls.Controls
	pipe      *eventpipe.EventPipe
	web       *web.Server
	metrics   *metrics.Metrics
	events    chan screen.Event
	ctx       context.Context
	cancel    context.CancelFunc

	// last is the previous snapshot seen by onState. Only onState touches it.
	last scanner.Snapshot
}

func main() {
	cfgfile := flag.String("cfg", "qrscan.cfg", "Config file")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	logging.Setup(*debug)
	slog.Info("qrscan starting", "build", myBuild)

	cfg, err := loadConfig(*cfgfile)
	if err != nil {
		fatal("Load config", err)
	}
	if cfg.Debug && !*debug {
		logging.Setup(true)
	}

	app := newApp(cfg)

	// Initialize indicator (LEDs, neopixels, beeper, lamp)
	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		fatal("Init indicator", err)
	}
	app.indicator.ConnectionLost() // Start with connection lost state

	// Initialize capture devices
	hw, err := engine.New(cfg.Engine)
	if err != nil {
		fatal("Init engine", err)
	}
	app.ctrl = scanner.NewController(hw, scanner.Options{
		Scan:        cfg.Camera.ScanConfig(),
		DeviceID:    cfg.Camera.Device,
		StopTimeout: cfg.Camera.StopTimeout(),
	}, scanner.Hooks{OnFailure: app.onFailure})
	app.ctrl.Subscribe(app.onState)

	// Initialize display if enabled
	if cfg.Video.Enabled {
		if !video.ScreenSupported() {
			fatal("Init display", video.ErrScreenNotCompiled)
		}
		app.display, err = video.New(cfg.Video, cfg.Camera.Region)
		if err != nil {
			fatal("Init display", err)
		}
		app.display.SetPreview(app.ctrl.Preview)
		app.display.Show(view.Build(app.ctrl.Snapshot()))
	}

	// Initialize buttons and rotary encoder if configured
	app.controls, err = controls.New(cfg.Controls, controls.Handlers{
		OnPin:   app.SendPinEvent,
		OnTurn:  app.SendRotaryEvent,
		OnPress: app.SendRotaryPressEvent,
	})
	if err != nil {
		fatal("Init controls", err)
	}

	app.pipe, err = eventpipe.New(cfg.EventPipe, app.Enqueue)
	if err != nil {
		fatal("Init event pipe", err)
	}

	// Initialize MQTT
	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
		OnMessage:    app.onMQTTMessage,
	})
	if err != nil {
		fatal("Init MQTT", err)
	}
	app.reporter = mqtt.NewReporter(app.mqtt, app.topics)

	if cfg.Web.Enabled() {
		app.web = web.NewServer(cfg.Web, app.ctrl, app.metrics.Handler())
	}

	// Start background goroutines
	go app.eventLoop()
	go func() {
		if err := app.mqtt.Connect(); err != nil {
			slog.Error("MQTT connect", "error", err)
		}
	}()
	go app.pingSender()
	if app.pipe != nil {
		go app.pipe.Start()
	}
	if app.web != nil {
		go func() {
			if err := app.web.ListenAndServe(); err != nil {
				slog.Error("HTTP server stopped", "error", err)
			}
		}()
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("Shutting down")
	app.shutdown()
	slog.Info("Shutdown complete")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func newApp(cfg *Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		cfg:       cfg,
		topics:    mqtt.NewTopics(cfg.MQTT.TopicPrefix, cfg.ClientID),
		indicator: &indicator.Noop{},
		metrics:   metrics.New(),
		events:    make(chan screen.Event, eventQueueLen),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (app *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if app.web != nil {
		if err := app.web.Shutdown(ctx); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
	}
	if app.pipe != nil {
		if err := app.pipe.Close(); err != nil {
			slog.Warn("Event pipe close", "error", err)
		}
	}
	app.cancel()
	app.ctrl.Close(ctx)

	app.mqtt.Disconnect()
	app.indicator.Shutdown()
	if err := app.indicator.Release(); err != nil {
		slog.Warn("Indicator release", "error", err)
	}
	if app.display != nil {
		app.display.Shutdown()
		app.display.Release()
	}
	if err := app.controls.Release(); err != nil {
		slog.Warn("Controls release", "error", err)
	}
}

// Enqueue queues an input event for the event loop. Events are dropped
// rather than blocking a GPIO or MQTT callback.
func (app *App) Enqueue(e screen.Event) {
	select {
	case app.events <- e:
	default:
		slog.Warn("Event queue full, dropping event", "event", e.Type)
	}
}

func (app *App) eventLoop() {
	for {
		select {
		case <-app.ctx.Done():
			return
		case e := <-app.events:
			app.dispatch(e)
		}
	}
}

// dispatch offers an event to the current screen first, then applies the
// default scanner action.
func (app *App) dispatch(e screen.Event) {
	if app.display != nil && app.display.SendEvent(e) {
		return
	}

	ctx := app.ctx
	var err error
	switch e.Type {
	case screen.EventCamera:
		err = app.ctrl.StartCamera(ctx)
	case screen.EventStop:
		app.ctrl.StopCamera(ctx)
	case screen.EventAgain:
		app.ctrl.ScanAgain(ctx)
	case screen.EventImage:
		if data := e.Image(); data != nil {
			err = app.scanFile(ctx, data.Path)
		}
	case screen.EventPress, screen.EventRotaryPress:
		err = app.ctrl.Primary(ctx)
	case screen.EventPin:
		if data := e.Pin(); data != nil && data.Pressed {
			err = app.pinAction(ctx, data.ID)
		}
	default:
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, scanner.ErrBusy), errors.Is(err, scanner.ErrStartCanceled):
		slog.Debug("Event ignored", "event", e.Type, "reason", err)
	default:
		// Failures the user should see are already on the session.
		slog.Debug("Event failed", "event", e.Type, "error", err)
	}
}

func (app *App) pinAction(ctx context.Context, id screen.PinID) error {
	switch id {
	case screen.PinPrimary:
		return app.ctrl.Primary(ctx)
	case screen.PinCamera:
		return app.ctrl.StartCamera(ctx)
	case screen.PinStop:
		app.ctrl.StopCamera(ctx)
	case screen.PinAgain:
		app.ctrl.ScanAgain(ctx)
	}
	return nil
}

func (app *App) scanFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("Open image", "path", path, "error", err)
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return app.ctrl.ScanImage(ctx, f)
}

// onState fans a session transition out to the outputs. It runs on the
// controller's notification path and must not call back into the controller.
func (app *App) onState(s scanner.Snapshot) {
	prev := app.last
	app.last = s

	if app.display != nil {
		app.display.Show(view.Build(s))
	}
	app.metrics.Observe(s)

	if s.Phase != prev.Phase {
		switch s.Phase {
		case scanner.PhaseIdle:
			app.indicator.Idle()
		case scanner.PhaseCameraActive:
			app.indicator.Scanning()
		case scanner.PhaseResultShown:
			app.indicator.Result()
		}
	}
	if s.CameraError != "" && s.CameraError != prev.CameraError {
		app.indicator.Failed()
	}

	if app.reporter == nil {
		return
	}
	if s.Phase != prev.Phase || s.CameraError != prev.CameraError {
		if err := app.reporter.Phase(s.Phase.String(), s.CameraError); err != nil {
			slog.Warn("Publish phase", "error", err)
		}
	}
	if s.Phase == scanner.PhaseResultShown && s.ScanID != prev.ScanID {
		if err := app.reporter.Scan(s.ScanID, string(s.Source), s.Record); err != nil {
			slog.Warn("Publish scan", "error", err)
		}
	}
}

func (app *App) onFailure(err error) {
	app.metrics.Failure(err)
	slog.Debug("Scan failure", "kind", metrics.FailureKind(err), "error", err)
}

func (app *App) onMQTTConnect() {
	for _, cmd := range mqtt.Commands {
		if err := app.mqtt.Subscribe(app.topics.Control(cmd)); err != nil {
			slog.Error("Subscribe error", "error", err)
		}
	}

	app.indicator.Connected()
	if app.ctrl.Snapshot().Phase == scanner.PhaseIdle {
		app.indicator.Idle()
	}
	if app.display != nil {
		app.display.SetMQTTConnected(true)
	}
}

func (app *App) onMQTTDisconnect() {
	app.indicator.ConnectionLost()
	if app.display != nil {
		app.display.SetMQTTConnected(false)
	}
}

func (app *App) onMQTTMessage(topic string, payload []byte) {
	cmd, ok := app.topics.ParseControl(topic)
	if !ok {
		slog.Debug("Ignoring MQTT message", "topic", topic)
		return
	}
	slog.Info("Remote command", "command", cmd)
	switch cmd {
	case mqtt.CommandCamera:
		app.Enqueue(screen.Event{Type: screen.EventCamera})
	case mqtt.CommandStop:
		app.Enqueue(screen.Event{Type: screen.EventStop})
	case mqtt.CommandAgain:
		app.Enqueue(screen.Event{Type: screen.EventAgain})
	}
}

func (app *App) pingSender() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			if err := app.reporter.Ping(); err != nil {
				slog.Warn("Publish ping", "error", err)
			}
		}
	}
}

// SendPinEvent queues a button state change.
func (app *App) SendPinEvent(id screen.PinID, pressed bool) {
	app.Enqueue(screen.Event{
		Type: screen.EventPin,
		Data: screen.PinData{ID: id, Pressed: pressed},
	})
}

// SendRotaryEvent queues a rotary turn.
func (app *App) SendRotaryEvent(delta int) {
	app.Enqueue(screen.Event{
		Type: screen.EventRotaryTurn,
		Data: screen.RotaryData{ID: screen.RotaryMain, Delta: delta},
	})
}

// SendRotaryPressEvent queues a rotary button press.
func (app *App) SendRotaryPressEvent() {
	app.Enqueue(screen.Event{
		Type: screen.EventRotaryPress,
		Data: screen.RotaryData{ID: screen.RotaryMain},
	})
}
