// Package view turns a scan session snapshot into what the screen shows. The
// same Layout drives the HTML page and the framebuffer screens.
package view

import (
	"qrscan/scanner"
)

const (
	Heading        = "Vehicle Owner QR Scanner"
	Subtext        = "Scan the code to get owner details. Use your camera to scan instantly or upload an image."
	CameraLabel    = "Scan with Camera"
	UploadLabel    = "Upload QR Image"
	StopLabel      = "Stop Camera"
	ScanAgainLabel = "Scan Again"
)

// Card is the decoded record as rendered. Empty fields are not shown.
type Card struct {
	Name        string `json:"name,omitempty"`
	Contact     string `json:"contact,omitempty"`
	ContactHref string `json:"contact_href,omitempty"`
	IsEmail     bool   `json:"is_email"`
	Dept        string `json:"dept,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Layout is the visible state of the scanner screen.
type Layout struct {
	Phase   scanner.Phase `json:"phase"`
	Version uint64        `json:"version"`

	ShowHeading      bool `json:"show_heading"`
	ShowCameraButton bool `json:"show_camera_button"`
	ShowUpload       bool `json:"show_upload"`
	ShowStop         bool `json:"show_stop"`
	ShowPreview      bool `json:"show_preview"`
	LivePreview      bool `json:"live_preview"`
	ShowScanAgain    bool `json:"show_scan_again"`

	// Error is the user-facing camera or image error, if any.
	Error string `json:"error,omitempty"`

	// Card is set only in the result phase.
	Card *Card `json:"card,omitempty"`
}

// Build computes the layout for a snapshot.
func Build(s scanner.Snapshot) Layout {
	l := Layout{
		Phase:   s.Phase,
		Version: s.Version,
	}

	switch s.Phase {
	case scanner.PhaseIdle:
		l.ShowHeading = true
		l.ShowCameraButton = !s.Starting
		l.ShowUpload = true
		l.ShowPreview = true
		l.Error = s.CameraError
	case scanner.PhaseCameraActive:
		l.ShowUpload = true
		l.ShowStop = true
		l.ShowPreview = true
		l.LivePreview = true
		l.Error = s.CameraError
	case scanner.PhaseResultShown:
		l.ShowScanAgain = true
		l.Card = cardFor(s)
	}
	return l
}

func cardFor(s scanner.Snapshot) *Card {
	rec := s.Record
	return &Card{
		Name:        rec.Name(),
		Contact:     rec.Contact(),
		ContactHref: rec.ContactHref(),
		IsEmail:     rec.IsEmail(),
		Dept:        rec.Dept(),
		ImageURL:    rec.ImageURL(),
	}
}

// Empty reports whether the card has nothing to show.
func (c *Card) Empty() bool {
	return c == nil || (c.Name == "" && c.Contact == "" && c.Dept == "" && c.ImageURL == "")
}
