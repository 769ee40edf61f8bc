// Package encoder manages a hardware HEVC compression session: session
// versioning, QP/bitrate control, keyframe policy, and Annex-B framing
// with inline parameter sets on keyframes, per spec §4.6.
package encoder

import (
	"sync"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// Profile is the HEVC profile the session negotiates with the backend.
type Profile int

const (
	ProfileMain Profile = iota
	ProfileMain10
)

// Config is passed to a Backend factory when a session is (re)created.
type Config struct {
	Width, Height int
	PixelFormat   pixfmt.Format
	Profile       Profile
	TargetFPS     float64
	MaxFrameDelay int
	RealTime      bool
	PrioritizeSpeed bool
}

// QualitySettings is the QP/quality target applied to a session, per the
// quality mapping in spec §4.6.
type QualitySettings struct {
	Quality     float64
	QualityOnly bool
	MinQP       int
	MaxQP       int
}

// BitrateCap bounds the session's average bitrate over a data-rate-limit
// window, per spec §4.6.
type BitrateCap struct {
	AverageBitrate int
	MaxBitrate     int
	WindowSeconds  float64
}

// Backend is the hardware (or software-fallback) HEVC compressor a
// Session drives. Implementations are platform-specific external
// collaborators — VideoToolbox, Media Foundation, NVENC — this package
// ships only the deterministic software fallback used when no hardware
// backend registers itself, or under test.
type Backend interface {
	SetDimensions(width, height int) error
	SetPixelFormat(pf pixfmt.Format) error
	SetQuality(q QualitySettings) error
	SetBitrate(cap BitrateCap) error
	SetFrameRate(fps float64) error
	SetMaxFrameDelay(n int) error

	// Encode compresses one frame of raw pixel bytes (plane-concatenated,
	// matching the session's current pixel format and dimensions) and
	// returns the Annex-B slice payload, without parameter sets.
	Encode(frame []byte, forceKeyframe bool) ([]byte, error)

	// ParameterSets returns the current VPS/SPS/PPS block, each NAL
	// prefixed with an Annex-B start code, valid once a session exists.
	ParameterSets() []byte

	Flush() error
	Close() error

	Name() string
	IsHardware() bool
}

// Factory constructs a Backend for cfg, or returns an error if this
// backend cannot serve cfg (e.g. platform mismatch, unsupported format).
type Factory func(cfg Config) (Backend, error)

var (
	registryMu sync.Mutex
	factories  []Factory
)

// RegisterBackendFactory adds f to the list tried by NewBackend, most
// recently registered first. Platform build-tagged files call this from
// an init() the way the MFT/VideoToolbox backends in the wild do.
func RegisterBackendFactory(f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories = append([]Factory{f}, factories...)
}

// NewBackend tries every registered factory, most recently registered
// first, and
// returns the first one that accepts cfg. The software backend always
// registers itself and accepts every config, so this never fails unless
// a caller clears the registry.
func NewBackend(cfg Config) (Backend, error) {
	registryMu.Lock()
	fs := make([]Factory, len(factories))
	copy(fs, factories)
	registryMu.Unlock()

	var lastErr error
	for _, f := range fs {
		backend, err := f(cfg)
		if err == nil {
			return backend, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errNoBackend
	}
	return nil, lastErr
}

var errNoBackend = &noBackendError{}

type noBackendError struct{}

func (*noBackendError) Error() string { return "encoder: no backend factory accepted the config" }

func init() {
	RegisterBackendFactory(newSoftwareBackend)
}
