package capture

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSource struct {
	mu         sync.Mutex
	startCalls int
	stopCalls  int
	cb         FrameCallback
	resolveErr error
}

func (f *fakeSource) Start(cfg SessionConfig, cb FrameCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.cb = cb
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeSource) Reconfigure(cfg SessionConfig) error { return nil }

func (f *fakeSource) ResolveTargets(cfg SessionConfig) (Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return Target{}, f.resolveErr
	}
	return Target{DisplayID: cfg.DisplayID}, nil
}

func (f *fakeSource) deliver(frame CapturedFrame) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

func TestEngineStartStopLifecycle(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(src, nil, nil, nil)

	cfg := SessionConfig{Mode: ModeDisplay, DisplayID: 1, OutputScale: 1.0, TargetFrameRate: 60}
	if err := e.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if src.startCalls != 1 {
		t.Fatalf("startCalls = %d, want 1", src.startCalls)
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if src.stopCalls != 1 {
		t.Fatalf("stopCalls = %d, want 1", src.stopCalls)
	}

	// Stop is idempotent.
	if err := e.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if src.stopCalls != 1 {
		t.Fatalf("stopCalls after second Stop = %d, want 1", src.stopCalls)
	}
}

func TestEngineDropsBlankAndSuspendedFrames(t *testing.T) {
	src := &fakeSource{}
	var delivered atomic.Int32
	e := NewEngine(src, func(f CapturedFrame) { delivered.Add(1) }, nil, nil)

	if err := e.Start(SessionConfig{TargetFrameRate: 60}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	src.deliver(CapturedFrame{Status: StatusBlank})
	src.deliver(CapturedFrame{Status: StatusSuspended})
	src.deliver(CapturedFrame{Status: StatusComplete})

	if got := delivered.Load(); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
}

func TestEngineMarksIdleFrames(t *testing.T) {
	src := &fakeSource{}
	var gotIdle bool
	e := NewEngine(src, func(f CapturedFrame) { gotIdle = f.Info.IsIdle }, nil, nil)

	if err := e.Start(SessionConfig{TargetFrameRate: 60}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	src.deliver(CapturedFrame{Status: StatusIdle})
	if !gotIdle {
		t.Fatal("expected IsIdle to be set on an idle-status frame")
	}
}

func TestEngineRequestsKeyframeAfterLongFallback(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(src, func(f CapturedFrame) {}, nil, nil)

	if err := e.Start(SessionConfig{TargetFrameRate: 60}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	// Simulate the watchdog having already flagged fallback mode well
	// beyond the keyframe threshold.
	e.fallbackStartNanos.Store(time.Now().Add(-500 * time.Millisecond).UnixNano())
	src.deliver(CapturedFrame{Status: StatusComplete})

	if !e.TakePendingKeyframeRequest() {
		t.Fatal("expected a pending keyframe request after a long fallback")
	}
	if e.TakePendingKeyframeRequest() {
		t.Fatal("TakePendingKeyframeRequest should clear the flag")
	}
}

func TestEngineShortFallbackDoesNotRequestKeyframe(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(src, func(f CapturedFrame) {}, nil, nil)

	if err := e.Start(SessionConfig{TargetFrameRate: 60}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	e.fallbackStartNanos.Store(time.Now().Add(-100 * time.Millisecond).UnixNano())
	src.deliver(CapturedFrame{Status: StatusComplete})

	if e.TakePendingKeyframeRequest() {
		t.Fatal("did not expect a pending keyframe request after a short fallback")
	}
}

func TestEngineRestartUsesCachedTargetOnResolveFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the full bounded-backoff retry loop")
	}
	src := &fakeSource{}
	e := NewEngine(src, func(f CapturedFrame) {}, nil, nil)

	if err := e.Start(SessionConfig{DisplayID: 7, TargetFrameRate: 60}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer e.Stop()

	src.mu.Lock()
	src.resolveErr = errTestResolve
	src.mu.Unlock()

	if err := e.restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}

	e.mu.Lock()
	target := e.cachedTarget
	e.mu.Unlock()
	if target.DisplayID != 7 {
		t.Fatalf("cachedTarget.DisplayID = %d, want 7 (fallback to cached target)", target.DisplayID)
	}
}

var errTestResolve = &testError{"resolve failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
