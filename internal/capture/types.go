// Package capture drives the OS screen-capture source, owns pixel-format
// and dimension state, and detects and recovers from stalls, per spec §4.4.
package capture

import (
	"time"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// Mode selects what the source captures.
type Mode int

const (
	ModeWindow Mode = iota
	ModeDisplay
)

// LatencyMode is a preset over encoder frame-delay, queue depth, and pool
// size, per the glossary.
type LatencyMode int

const (
	LowestLatency LatencyMode = iota
	Balanced
	Smoothest
)

// Resolution is an explicit pixel size, used verbatim for display capture
// when supplied.
type Resolution struct {
	Width, Height int
}

// SessionConfig is the capture session configuration from spec §3. It is
// created by Start and mutated only by the engine or reconfiguration calls.
type SessionConfig struct {
	Mode              Mode
	WindowID          *uint32
	ApplicationPID    *int32
	DisplayID         uint32
	KnownScaleFactor  *float64
	OutputScale       float64 // [0.1, 1.0]
	Resolution        *Resolution
	ShowsCursor       bool
	PixelFormat       pixfmt.Format
	ColorSpace        pixfmt.ColorSpace
	TargetFrameRate   float64
	LatencyMode       LatencyMode
}

// FrameInfo carries the source's classification of a delivered frame.
type FrameInfo struct {
	ContentRect      Rect
	DirtyPercentage  int // 0-100
	IsIdle           bool
}

// Rect is a pixel-coordinate sub-rectangle within a captured buffer.
type Rect struct {
	X, Y, Width, Height int
}

// FrameStatus is how the OS source classified a delivered sample.
type FrameStatus int

const (
	StatusComplete FrameStatus = iota
	StatusIdle
	StatusBlank
	StatusSuspended
)

// CapturedFrame is a pixel buffer borrowed from the OS source for the
// duration of the capture callback, plus the metadata spec §3 requires.
type CapturedFrame struct {
	Buffer             FrameSource
	PresentationTime   time.Duration
	Duration           time.Duration
	HostCaptureTime    time.Time
	Info               FrameInfo
	Status             FrameStatus
}
