package encoder

import (
	"sync"
	"sync/atomic"

	"github.com/cybergarage/go-logger/log"

	"github.com/nullbound/hevcstream/internal/errs"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// Result is the outcome of EncodeFrame.
type Result int

const (
	Scheduled Result = iota
	InFlightLimit
	UpdatingDimensions
)

func (r Result) String() string {
	switch r {
	case Scheduled:
		return "scheduled"
	case InFlightLimit:
		return "in_flight_limit"
	case UpdatingDimensions:
		return "updating_dimensions"
	default:
		return "unknown"
	}
}

// EncodedUnit is one Annex-B framed output delivered to the caller.
type EncodedUnit struct {
	Payload     []byte
	Keyframe    bool
	FrameNumber uint64
}

// OnEncoded delivers a successfully encoded unit. It must not re-enter
// the Session — it runs on the session's own completion path.
type OnEncoded func(EncodedUnit)

// OnComplete is invoked for every scheduled submission that succeeds or
// fails to encode, after OnEncoded (if any). ok is false when the encode
// failed. A completion discarded as stale (its session version no longer
// current) invokes neither OnEncoded nor OnComplete.
type OnComplete func(frameNumber uint64, ok bool)

const preheatFrameCount = 10

// Session manages a versioned hardware HEVC compression session per
// spec §4.6: QP/bitrate mapping, keyframe policy, Annex-B framing with
// inline parameter sets, and a bounded in-flight queue.
type Session struct {
	mu      sync.Mutex
	encMu   sync.Mutex // serializes backend.Encode, mirroring a single encode thread
	wg      sync.WaitGroup

	backend     Backend
	cfg         Config
	latencyMode int // 0=lowestLatency, 1=balanced, 2=smoothest

	sessionVersion atomic.Uint64
	frameNumber    uint64
	framesSinceKey int
	keyframeIntervalFrames int
	justRecreated  bool

	forceNextKeyframe atomic.Bool
	isUpdatingDims    atomic.Bool

	inFlightCount atomic.Int32
	inFlightLimit atomic.Int32

	maxBitrate, minBitrate int

	onEncoded  OnEncoded
	onComplete OnComplete
}

// NewSession builds a Session; CreateSession must be called before any
// EncodeFrame.
func NewSession() *Session {
	s := &Session{}
	s.inFlightLimit.Store(1)
	return s
}

// CreateSession configures a backend at (width, height) per spec §4.6:
// real-time mode, no B-frames, profile by bit depth, prioritize speed.
// If creation fails for P010 it degrades to NV12 and retries once.
func (s *Session) CreateSession(width, height int, format pixfmt.Format, latencyMode int, fps float64, keyframeIntervalFrames int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latencyMode = latencyMode
	s.keyframeIntervalFrames = keyframeIntervalFrames
	cfg := Config{
		Width: width, Height: height,
		PixelFormat:     format,
		Profile:         ProfileFor(format.BitDepth10()),
		TargetFPS:       fps,
		MaxFrameDelay:   MaxFrameDelayCount(latencyMode),
		RealTime:        true,
		PrioritizeSpeed: true,
	}

	backend, err := NewBackend(cfg)
	if err != nil && format == pixfmt.P010 {
		log.Warnf("encoder: P010 session creation failed (%s), falling back to NV12", err.Error())
		cfg.PixelFormat = pixfmt.NV12
		cfg.Profile = ProfileFor(false)
		backend, err = NewBackend(cfg)
	}
	if err != nil {
		return errs.Wrap(errs.Encoding, err, "encoder: create_session failed")
	}

	if fps >= 120 {
		s.inFlightLimit.Store(2)
	} else {
		s.inFlightLimit.Store(1)
	}

	s.backend = backend
	s.cfg = cfg
	s.frameNumber = 0
	s.framesSinceKey = 0
	s.justRecreated = true
	return nil
}

// Start registers the callbacks that future EncodeFrame completions are
// delivered through.
func (s *Session) Start(onEncoded OnEncoded, onComplete OnComplete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEncoded = onEncoded
	s.onComplete = onComplete
}

// Preheat encodes preheatFrameCount synthetic gray frames at the current
// session dimensions and discards the output, then flushes and resets
// frame_number to 0, per spec §4.6.
func (s *Session) Preheat() error {
	s.mu.Lock()
	backend := s.backend
	width, height, format := s.cfg.Width, s.cfg.Height, s.cfg.PixelFormat
	s.mu.Unlock()
	if backend == nil {
		return errs.EncodingError("encoder: preheat before create_session")
	}

	gray := graySyntheticFrame(width, height, format)
	s.encMu.Lock()
	for i := 0; i < preheatFrameCount; i++ {
		if _, err := backend.Encode(gray, i == 0); err != nil {
			s.encMu.Unlock()
			return errs.Wrap(errs.Encoding, err, "encoder: preheat encode failed")
		}
	}
	s.encMu.Unlock()

	if err := backend.Flush(); err != nil {
		return errs.Wrap(errs.Encoding, err, "encoder: preheat flush failed")
	}

	s.mu.Lock()
	s.frameNumber = 0
	s.framesSinceKey = 0
	s.mu.Unlock()
	return nil
}

func graySyntheticFrame(width, height int, format pixfmt.Format) []byte {
	size := width * height
	if format.BiPlanar() {
		size += size / 2
	} else {
		size *= 4
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x80
	}
	return buf
}

// EncodeFrame submits one raw plane-concatenated frame for compression.
// The completion runs asynchronously; its OnEncoded/OnComplete delivery
// discards stale output per the captured session_version.
func (s *Session) EncodeFrame(frame []byte, forceKeyframe bool) Result {
	if s.isUpdatingDims.Load() {
		return UpdatingDimensions
	}
	if !s.reserveSlot() {
		return InFlightLimit
	}

	s.mu.Lock()
	backend := s.backend
	keyframe := s.decideKeyframeLocked(forceKeyframe)
	frameNumber := s.frameNumber
	s.frameNumber++
	if keyframe {
		s.framesSinceKey = 0
	} else {
		s.framesSinceKey++
	}
	version := s.sessionVersion.Load()
	onEncoded, onComplete := s.onEncoded, s.onComplete
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runEncode(backend, frame, keyframe, frameNumber, version, onEncoded, onComplete)
	return Scheduled
}

// decideKeyframeLocked implements the keyframe policy of spec §4.6.
// Callers must hold s.mu.
func (s *Session) decideKeyframeLocked(forceKeyframe bool) bool {
	keyframe := false
	if s.frameNumber == 0 {
		keyframe = true
	}
	if s.forceNextKeyframe.CompareAndSwap(true, false) {
		keyframe = true
	}
	if forceKeyframe {
		keyframe = true
	}
	if s.justRecreated {
		keyframe = true
		s.justRecreated = false
	}
	if s.keyframeIntervalFrames > 0 && s.framesSinceKey >= s.keyframeIntervalFrames {
		keyframe = true
	}
	return keyframe
}

func (s *Session) runEncode(backend Backend, frame []byte, keyframe bool, frameNumber, version uint64, onEncoded OnEncoded, onComplete OnComplete) {
	defer s.wg.Done()
	defer s.releaseSlot()

	s.encMu.Lock()
	raw, err := backend.Encode(frame, keyframe)
	s.encMu.Unlock()

	if s.sessionVersion.Load() != version {
		// Stale session: this frame was encoded at dimensions the
		// session no longer holds. Discard per the versioning invariant.
		return
	}

	if err != nil {
		if onComplete != nil {
			onComplete(frameNumber, false)
		}
		return
	}

	payload := raw
	if keyframe {
		payload = BuildKeyframePayload(backend.ParameterSets(), raw)
	}

	if onEncoded != nil {
		onEncoded(EncodedUnit{Payload: payload, Keyframe: keyframe, FrameNumber: frameNumber})
	}
	if onComplete != nil {
		onComplete(frameNumber, true)
	}
}

func (s *Session) reserveSlot() bool {
	limit := s.inFlightLimit.Load()
	for {
		cur := s.inFlightCount.Load()
		if cur >= limit {
			return false
		}
		if s.inFlightCount.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (s *Session) releaseSlot() {
	for {
		cur := s.inFlightCount.Load()
		if cur <= 0 {
			return
		}
		if s.inFlightCount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// ForceKeyframe requests that the next submission produce a keyframe.
func (s *Session) ForceKeyframe() { s.forceNextKeyframe.Store(true) }

// UpdateQuality maps q through MapQuality and applies it to the backend.
func (s *Session) UpdateQuality(q float64) error {
	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()
	if backend == nil {
		return errs.EncodingError("encoder: update_quality before create_session")
	}
	if err := backend.SetQuality(MapQuality(q)); err != nil {
		return errs.Wrap(errs.Encoding, err, "encoder: set_quality failed")
	}
	return nil
}

// UpdateFrameRate updates the target frame rate, the in-flight limit
// default, and the keyframe interval and bitrate window derived from it.
func (s *Session) UpdateFrameRate(fps float64, keyframeIntervalFrames int) error {
	s.mu.Lock()
	backend := s.backend
	s.cfg.TargetFPS = fps
	s.keyframeIntervalFrames = keyframeIntervalFrames
	maxBitrate := s.maxBitrate
	s.mu.Unlock()
	if backend == nil {
		return errs.EncodingError("encoder: update_frame_rate before create_session")
	}

	if fps >= 120 {
		s.inFlightLimit.Store(2)
	} else {
		s.inFlightLimit.Store(1)
	}

	if err := backend.SetFrameRate(fps); err != nil {
		return errs.Wrap(errs.Encoding, err, "encoder: set_frame_rate failed")
	}
	if maxBitrate > 0 {
		if err := backend.SetBitrate(BitrateCap{
			AverageBitrate: maxBitrate,
			MaxBitrate:     maxBitrate,
			WindowSeconds:  BitrateWindowSeconds(fps),
		}); err != nil {
			return errs.Wrap(errs.Encoding, err, "encoder: set_bitrate failed")
		}
	}
	return nil
}

// UpdateInFlightLimit sets the in-flight submission cap at runtime.
func (s *Session) UpdateInFlightLimit(n int) {
	if n < 1 {
		n = 1
	}
	s.inFlightLimit.Store(int32(n))
}

// UpdateBitrateCaps stores the configured min/max bitrate for later use
// by UpdateFrameRate's window recomputation.
func (s *Session) UpdateBitrateCaps(minBitrate, maxBitrate int) {
	s.mu.Lock()
	s.minBitrate, s.maxBitrate = minBitrate, maxBitrate
	s.mu.Unlock()
}

// UpdateDimensions bumps session_version, invalidates in-flight output
// from the old version, and reconfigures the backend at (width, height).
// Submissions arriving while this runs are dropped, not queued.
func (s *Session) UpdateDimensions(width, height int) error {
	if !s.isUpdatingDims.CompareAndSwap(false, true) {
		return errs.ProtocolError("encoder: update_dimensions already in progress")
	}
	defer s.isUpdatingDims.Store(false)

	s.sessionVersion.Add(1)
	s.wg.Wait()

	s.mu.Lock()
	backend := s.backend
	s.cfg.Width, s.cfg.Height = width, height
	s.mu.Unlock()
	if backend == nil {
		return errs.EncodingError("encoder: update_dimensions before create_session")
	}

	if err := backend.SetDimensions(width, height); err != nil {
		return errs.Wrap(errs.Encoding, err, "encoder: set_dimensions failed")
	}

	s.mu.Lock()
	s.frameNumber = 0
	s.framesSinceKey = 0
	s.justRecreated = true
	s.mu.Unlock()
	return nil
}

// Flush blocks until all in-flight submissions drain, then forces a
// keyframe on the next submit, per spec §4.6.
func (s *Session) Flush() error {
	s.wg.Wait()

	s.mu.Lock()
	backend := s.backend
	s.mu.Unlock()
	if backend == nil {
		return nil
	}
	if err := backend.Flush(); err != nil {
		return errs.Wrap(errs.Encoding, err, "encoder: flush failed")
	}
	s.forceNextKeyframe.Store(true)
	return nil
}

// Reset invalidates and recreates the session at its stored dimensions.
func (s *Session) Reset() error {
	s.mu.Lock()
	width, height, format, latencyMode, fps := s.cfg.Width, s.cfg.Height, s.cfg.PixelFormat, s.latencyMode, s.cfg.TargetFPS
	keyframeIntervalFrames := s.keyframeIntervalFrames
	s.mu.Unlock()

	s.sessionVersion.Add(1)
	s.wg.Wait()

	if err := s.CreateSession(width, height, format, latencyMode, fps, keyframeIntervalFrames); err != nil {
		return err
	}
	return nil
}

// Stop drains in-flight work and closes the backend.
func (s *Session) Stop() error {
	s.wg.Wait()
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()
	if backend == nil {
		return nil
	}
	return backend.Close()
}

// GetActivePixelFormat returns the pixel format the backend is actually
// running with (which may differ from the requested one after a P010
// fallback).
func (s *Session) GetActivePixelFormat() pixfmt.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.PixelFormat
}

// SessionVersion returns the current session_version.
func (s *Session) SessionVersion() uint64 { return s.sessionVersion.Load() }
