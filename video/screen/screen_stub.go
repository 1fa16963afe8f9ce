//go:build !screen

package screen

import (
	"image"
	"time"

	"qrscan/view"
)

// TimerID uniquely identifies a timer.
type TimerID uint64

// TimerCallback is called when a timer fires.
type TimerCallback func(screen Screen)

// Manager is a stub when screen support is not compiled in.
type Manager struct{}

func NewManager() *Manager                                              { return nil }
func (m *Manager) Register(id ScreenID, s Screen)                       {}
func (m *Manager) SwitchTo(id ScreenID)                                 {}
func (m *Manager) Current() Screen                                      { return nil }
func (m *Manager) SendEvent(event Event) bool                           { return false }
func (m *Manager) Update()                                              {}
func (m *Manager) Flush()                                               {}
func (m *Manager) Draw(fn func())                                       {}
func (m *Manager) SetLayout(l view.Layout)                              {}
func (m *Manager) Layout() view.Layout                                  { return view.Layout{} }
func (m *Manager) SetPreview(fn func() image.Image)                     {}
func (m *Manager) Preview() image.Image                                 { return nil }
func (m *Manager) SetMQTTConnected(connected bool)                      {}
func (m *Manager) IsMQTTConnected() bool                                { return false }
func (m *Manager) SetTimeout(d time.Duration, cb TimerCallback) TimerID { return 0 }
func (m *Manager) ClearTimeout(id TimerID) bool                         { return false }
func (m *Manager) ClearAllTimeouts()                                    {}
