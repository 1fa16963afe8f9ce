//go:build !screen

package screens

import (
	"net/http"

	"qrscan/engine"
	"qrscan/video/screen"
)

// IdleScreen stub
type IdleScreen struct{}

func NewIdleScreen() *IdleScreen                          { return &IdleScreen{} }
func (s *IdleScreen) Init(mgr *screen.Manager)            {}
func (s *IdleScreen) Update()                             {}
func (s *IdleScreen) HandleEvent(event screen.Event) bool { return false }
func (s *IdleScreen) Exit()                               {}
func (s *IdleScreen) Name() string                        { return "Idle" }

// ScanningScreen stub
type ScanningScreen struct{}

func NewScanningScreen(region engine.Region) *ScanningScreen  { return &ScanningScreen{} }
func (s *ScanningScreen) Init(mgr *screen.Manager)            {}
func (s *ScanningScreen) Update()                             {}
func (s *ScanningScreen) HandleEvent(event screen.Event) bool { return false }
func (s *ScanningScreen) Exit()                               {}
func (s *ScanningScreen) Name() string                        { return "Scanning" }

// ResultScreen stub
type ResultScreen struct{}

func NewResultScreen(client *http.Client) *ResultScreen     { return &ResultScreen{} }
func (s *ResultScreen) Init(mgr *screen.Manager)            {}
func (s *ResultScreen) Update()                             {}
func (s *ResultScreen) HandleEvent(event screen.Event) bool { return false }
func (s *ResultScreen) Exit()                               {}
func (s *ResultScreen) Name() string                        { return "Result" }

// ShutdownScreen stub
type ShutdownScreen struct{}

func NewShutdownScreen() *ShutdownScreen                      { return &ShutdownScreen{} }
func (s *ShutdownScreen) Init(mgr *screen.Manager)            {}
func (s *ShutdownScreen) Update()                             {}
func (s *ShutdownScreen) HandleEvent(event screen.Event) bool { return false }
func (s *ShutdownScreen) Exit()                               {}
func (s *ShutdownScreen) Name() string                        { return "Shutdown" }
