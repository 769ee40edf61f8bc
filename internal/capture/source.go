package capture

import "github.com/nullbound/hevcstream/internal/pixfmt"

// FrameSource is the externally-owned pixel buffer for one delivered
// sample. Its method set intentionally matches copier.Source so a
// CapturedFrame.Buffer can be handed directly to the frame copier.
type FrameSource interface {
	Width() int
	Height() int
	Format() pixfmt.Format
	LockRead() (planes [][]byte, rowBytes []int)
	Unlock()
	GPUBlittable() (handle any, ok bool)
}

// Target identifies what a running capture source is bound to: a
// display, or a window/application pair.
type Target struct {
	DisplayID      uint32
	WindowID       *uint32
	ApplicationPID *int32
}

// FrameCallback is invoked by the OS source on its own delivery thread
// for every sample, complete or not. Implementations must treat this as
// a foreign-thread callback: touch only atomics/channels, never block.
type FrameCallback func(CapturedFrame)

// Source is the external collaborator that performs real OS screen
// capture. This package ships no OS-backed implementation — the engine
// only depends on this interface, matching spec §1's framing of the
// capture backend as a platform-specific external collaborator.
// SyntheticSource is the package's deterministic, non-OS implementation.
type Source interface {
	// Start begins delivering frames matching cfg to cb until Stop is
	// called. Start must not block past initial setup.
	Start(cfg SessionConfig, cb FrameCallback) error
	Stop() error

	// Reconfigure adjusts a running source in place after a significant
	// dimension change, without a full stop/start cycle. Any error it
	// returns makes the engine fall back to a full restart.
	Reconfigure(cfg SessionConfig) error

	// ResolveTargets re-queries the OS for the display and, in window
	// mode, window/application identified by cfg. It returns an error if
	// any required target is currently unresolvable.
	ResolveTargets(cfg SessionConfig) (Target, error)
}
