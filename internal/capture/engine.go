package capture

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cybergarage/go-logger/log"

	"github.com/nullbound/hevcstream/internal/errs"
)

const (
	watchdogInterval    = 50 * time.Millisecond
	restartCooldown     = 2 * time.Second
	restartMaxAttempts  = 6
	restartBaseBackoff  = 80 * time.Millisecond
	restartBackoffRatio = 1.6
	restartBackoffCap   = time.Second
)

// StallHandler is invoked when the watchdog signals a stall, just before
// the engine launches its own restart in the background. Callers use this to surface
// CaptureError at a session boundary per spec §7.
type StallHandler func(reason error)

// DimensionHandler is invoked whenever the engine's output dimensions
// change, whether by restart or in-place reconfiguration.
type DimensionHandler func(width, height int)

// Engine drives a Source through configuration, stall detection, and
// restart, per spec §4.4.
type Engine struct {
	source   Source
	onFrame  FrameCallback
	onStall  StallHandler
	onDim    DimensionHandler

	mu            sync.Mutex
	cfg           SessionConfig
	currentWidth  int
	currentHeight int
	cachedTarget  Target
	haveTarget    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed       atomic.Bool
	isRestarting atomic.Bool
	started      atomic.Bool

	lastDeliveredNanos atomic.Int64
	fallbackStartNanos atomic.Int64 // 0 means not in fallback
	lastStallNanos     atomic.Int64
	lastRestartNanos   atomic.Int64

	pendingKeyframeRequest atomic.Bool
}

// NewEngine returns an Engine bound to source. cb receives every complete
// or idle frame (blank/suspended frames are dropped before reaching it).
func NewEngine(source Source, cb FrameCallback, onStall StallHandler, onDim DimensionHandler) *Engine {
	return &Engine{source: source, onFrame: cb, onStall: onStall, onDim: onDim}
}

// Start configures and starts the source, and launches the watchdog.
func (e *Engine) Start(cfg SessionConfig) error {
	if e.started.Load() {
		return errs.ProtocolError("capture: engine already started")
	}

	target, err := e.source.ResolveTargets(cfg)
	if err != nil {
		return errs.CaptureError("capture: could not resolve targets: " + err.Error())
	}

	e.mu.Lock()
	e.cfg = cfg
	e.cachedTarget = target
	e.haveTarget = true
	e.mu.Unlock()

	if err := e.source.Start(cfg, e.handleFrame); err != nil {
		return errs.Wrap(errs.Capture, err, "capture: source start failed")
	}

	e.started.Store(true)
	e.lastDeliveredNanos.Store(time.Now().UnixNano())
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.wg.Add(1)
	go e.watchdogLoop()

	return nil
}

// Stop tears down the watchdog and the source. Safe to call once.
func (e *Engine) Stop() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return e.source.Stop()
}

// RequestKeyframe marks that the encoder should produce a keyframe on
// its next submission, e.g. after an external resync request.
func (e *Engine) RequestKeyframe() { e.pendingKeyframeRequest.Store(true) }

// TakePendingKeyframeRequest reports and clears the pending-keyframe flag.
func (e *Engine) TakePendingKeyframeRequest() bool {
	return e.pendingKeyframeRequest.CompareAndSwap(true, false)
}

// Reconfigure applies a new target window size, restarting the source
// only when the dimension change is significant (spec §4.4).
func (e *Engine) Reconfigure(windowWidth, windowHeight, hostScale float64) error {
	e.mu.Lock()
	cfg := e.cfg
	oldW, oldH := e.currentWidth, e.currentHeight
	e.mu.Unlock()

	newW, newH := OutputSize(windowWidth, windowHeight, hostScale, cfg.OutputScale)
	if !DimensionChangeSignificant(oldW, oldH, newW, newH) {
		return nil
	}

	if err := e.source.Reconfigure(cfg); err == nil {
		e.mu.Lock()
		e.currentWidth, e.currentHeight = newW, newH
		e.mu.Unlock()
		if e.onDim != nil {
			e.onDim(newW, newH)
		}
		return nil
	}

	if err := e.restart(); err != nil {
		return err
	}
	e.mu.Lock()
	e.currentWidth, e.currentHeight = newW, newH
	e.mu.Unlock()
	if e.onDim != nil {
		e.onDim(newW, newH)
	}
	return nil
}

func (e *Engine) handleFrame(frame CapturedFrame) {
	switch frame.Status {
	case StatusBlank, StatusSuspended:
		return
	case StatusIdle:
		frame.Info.IsIdle = true
	}

	now := time.Now()
	fallbackStart := e.fallbackStartNanos.Load()
	if fallbackStart != 0 {
		fallbackDuration := now.Sub(time.Unix(0, fallbackStart))
		e.fallbackStartNanos.Store(0)
		if fallbackDuration.Seconds() > KeyframeThresholdSeconds {
			e.pendingKeyframeRequest.Store(true)
		}
	}

	e.lastDeliveredNanos.Store(now.UnixNano())

	if e.onFrame != nil {
		e.onFrame(frame)
	}
}

func (e *Engine) watchdogLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.checkStall()
		}
	}
}

func (e *Engine) checkStall() {
	e.mu.Lock()
	fps := e.cfg.TargetFrameRate
	e.mu.Unlock()
	if fps <= 0 {
		fps = 60
	}

	last := time.Unix(0, e.lastDeliveredNanos.Load())
	gap := time.Since(last)

	gapThreshold := time.Duration(FrameGapThresholdSeconds(fps) * float64(time.Second))
	if gap > gapThreshold && e.fallbackStartNanos.Load() == 0 {
		e.fallbackStartNanos.Store(time.Now().UnixNano())
	}

	stallThreshold := time.Duration(StallThresholdSeconds(fps) * float64(time.Second))
	if gap <= stallThreshold {
		return
	}

	lastStall := time.Unix(0, e.lastStallNanos.Load())
	if time.Since(lastStall) < restartCooldown {
		return
	}
	e.lastStallNanos.Store(time.Now().UnixNano())

	reason := errs.CaptureError("capture: source stalled")
	if e.onStall != nil {
		e.onStall(reason)
	}

	go func() {
		if err := e.restart(); err != nil {
			log.Warnf("capture: restart after stall failed: %s", err.Error())
		}
	}()
}

// restart implements the six-step protocol in spec §4.4.
func (e *Engine) restart() error {
	if !e.isRestarting.CompareAndSwap(false, true) {
		return errs.ProtocolError("capture: restart already in progress")
	}
	defer e.isRestarting.Store(false)

	if sinceLast := time.Since(time.Unix(0, e.lastRestartNanos.Load())); sinceLast < restartCooldown {
		time.Sleep(restartCooldown - sinceLast)
	}
	e.lastRestartNanos.Store(time.Now().UnixNano())

	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	if err := e.source.Stop(); err != nil {
		log.Warnf("capture: stop during restart failed: %s", err.Error())
	}

	target, err := e.resolveWithBackoff(cfg)
	if err != nil {
		e.mu.Lock()
		target = e.cachedTarget
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.cachedTarget = target
	e.haveTarget = true
	e.mu.Unlock()

	if err := e.source.Start(cfg, e.handleFrame); err != nil {
		return errs.Wrap(errs.Capture, err, "capture: restart failed")
	}

	e.lastDeliveredNanos.Store(time.Now().UnixNano())
	e.fallbackStartNanos.Store(0)
	e.pendingKeyframeRequest.Store(true)
	return nil
}

func (e *Engine) resolveWithBackoff(cfg SessionConfig) (Target, error) {
	backoff := restartBaseBackoff
	var lastErr error
	for attempt := 0; attempt < restartMaxAttempts; attempt++ {
		target, err := e.source.ResolveTargets(cfg)
		if err == nil {
			return target, nil
		}
		lastErr = err
		time.Sleep(backoff)
		backoff = time.Duration(math.Min(float64(restartBackoffCap), float64(backoff)*restartBackoffRatio))
	}
	return Target{}, lastErr
}
