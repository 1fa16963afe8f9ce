package screen

import "qrscan/view"

// Event types that screens and the app dispatcher can receive
type EventType int

const (
	EventSession          EventType = iota // Scan session changed; carries SessionData
	EventCamera                            // Request to start the camera
	EventStop                              // Request to stop the camera
	EventAgain                             // Request to clear the result
	EventImage                             // Request to scan a still image; carries ImageData
	EventPress                             // Primary action for the current phase
	EventRotaryTurn                        // Rotary encoder turned; carries RotaryData
	EventRotaryPress                       // Rotary button pressed
	EventPin                               // GPIO button event; carries PinData
	EventMQTTConnected                     // MQTT broker connected/reconnected
	EventMQTTDisconnected                  // MQTT broker disconnected
)

func (t EventType) String() string {
	switch t {
	case EventSession:
		return "session"
	case EventCamera:
		return "camera"
	case EventStop:
		return "stop"
	case EventAgain:
		return "again"
	case EventImage:
		return "image"
	case EventPress:
		return "press"
	case EventRotaryTurn:
		return "rotary_turn"
	case EventRotaryPress:
		return "rotary_press"
	case EventPin:
		return "pin"
	case EventMQTTConnected:
		return "mqtt_connected"
	case EventMQTTDisconnected:
		return "mqtt_disconnected"
	default:
		return "unknown"
	}
}

// RotaryID identifies a specific rotary encoder
type RotaryID int

const (
	RotaryMain RotaryID = iota // Main/default rotary encoder
	RotaryAux                  // Auxiliary rotary encoder
)

// PinID identifies a specific GPIO button
type PinID int

const (
	PinPrimary PinID = iota // Does whatever the current phase offers
	PinCamera               // Start camera
	PinStop                 // Stop camera
	PinAgain                // Scan again
)

func (p PinID) String() string {
	switch p {
	case PinPrimary:
		return "primary"
	case PinCamera:
		return "camera"
	case PinStop:
		return "stop"
	case PinAgain:
		return "again"
	default:
		return "unknown"
	}
}

// Event is the base event structure. Type-specific data is in the Data field.
type Event struct {
	Type EventType
	Data any // Type-specific event data (SessionData, ImageData, RotaryData, PinData)
}

// SessionData carries the layout for an EventSession.
type SessionData struct {
	Layout view.Layout
}

// ImageData names a still image to scan.
type ImageData struct {
	Path string
}

// RotaryData contains data for rotary encoder events.
type RotaryData struct {
	ID    RotaryID // Which rotary encoder
	Delta int      // +1 for CW, -1 for CCW (for turn events)
}

// PinData contains data for GPIO button events.
type PinData struct {
	ID      PinID // Which button
	Pressed bool  // true for press, false for release
}

// Session returns the SessionData from the event, or nil if not a session event.
func (e Event) Session() *SessionData {
	if data, ok := e.Data.(SessionData); ok {
		return &data
	}
	return nil
}

// Image returns the ImageData from the event, or nil if not an image event.
func (e Event) Image() *ImageData {
	if data, ok := e.Data.(ImageData); ok {
		return &data
	}
	return nil
}

// Rotary returns the RotaryData from the event, or nil if not a rotary event.
func (e Event) Rotary() *RotaryData {
	if data, ok := e.Data.(RotaryData); ok {
		return &data
	}
	return nil
}

// Pin returns the PinData from the event, or nil if not a pin event.
func (e Event) Pin() *PinData {
	if data, ok := e.Data.(PinData); ok {
		return &data
	}
	return nil
}

// Screen is the interface that all screens must implement.
type Screen interface {
	// Init is called when entering this screen.
	// The manager is provided so screens can switch to other screens.
	Init(mgr *Manager)

	// Update redraws the screen. Called after Init and whenever
	// the screen needs to refresh its display.
	Update()

	// HandleEvent processes an input event.
	// Returns true if the event was handled.
	HandleEvent(event Event) bool

	// Exit is called when leaving this screen.
	Exit()

	// Name returns the screen name for debugging/logging.
	Name() string
}

// ScreenID identifies a screen type.
type ScreenID int

const (
	ScreenIdle ScreenID = iota
	ScreenScanning
	ScreenResult
	ScreenShutdown
)

// ScreenFor returns the screen that shows a layout.
func ScreenFor(l view.Layout) ScreenID {
	switch {
	case l.Card != nil:
		return ScreenResult
	case l.LivePreview:
		return ScreenScanning
	default:
		return ScreenIdle
	}
}
