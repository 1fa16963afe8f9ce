// Package scanner owns the scan lifecycle: the capture controller that drives
// the decoding engine and the session state machine it updates.
package scanner

import (
	"qrscan/payload"
)

// Phase is the screen state of a scan session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCameraActive
	PhaseResultShown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCameraActive:
		return "camera_active"
	case PhaseResultShown:
		return "result_shown"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Source says where a result came from.
type Source string

const (
	SourceCamera Source = "camera"
	SourceImage  Source = "image"
)

// User-facing messages for surfaced errors.
const (
	MsgNoDevice     = "No cameras found"
	MsgCameraAccess = "Failed to initialize camera. Please ensure camera access is allowed."
	MsgInvalidImage = "Invalid QR code in image"
)

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	Version     uint64
	Phase       Phase
	CameraError string
	Record      payload.Record
	ScanID      string
	Source      Source
	DeviceID    string
	Starting    bool
}

// Consistent reports whether the snapshot satisfies the session invariants.
func (s Snapshot) Consistent() bool {
	if (s.Phase == PhaseResultShown) != (s.Record != nil) {
		return false
	}
	if s.Phase == PhaseCameraActive && s.DeviceID == "" {
		return false
	}
	return true
}

// session is the state machine. All methods require the controller mutex.
type session struct {
	version     uint64
	phase       Phase
	cameraError string
	record      payload.Record
	scanID      string
	source      Source
	deviceID    string
	starting    bool
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		Version:     s.version,
		Phase:       s.phase,
		CameraError: s.cameraError,
		Record:      s.record.Clone(),
		ScanID:      s.scanID,
		Source:      s.source,
		DeviceID:    s.deviceID,
		Starting:    s.starting,
	}
}

func (s *session) bump() {
	s.version++
}

func (s *session) cameraActive(deviceID string) {
	s.phase = PhaseCameraActive
	s.deviceID = deviceID
	s.cameraError = ""
	s.bump()
}

func (s *session) cameraStopped() {
	if s.phase == PhaseCameraActive {
		s.phase = PhaseIdle
	}
	s.deviceID = ""
	s.bump()
}

func (s *session) showResult(rec payload.Record, scanID string, src Source) {
	s.phase = PhaseResultShown
	s.record = rec
	s.scanID = scanID
	s.source = src
	s.deviceID = ""
	s.cameraError = ""
	s.bump()
}

func (s *session) showError(msg string) {
	s.cameraError = msg
	s.bump()
}

func (s *session) reset() {
	s.phase = PhaseIdle
	s.record = nil
	s.scanID = ""
	s.source = ""
	s.cameraError = ""
	s.bump()
}
