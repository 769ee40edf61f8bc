package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

func TestSyntheticSourceDeliversFramesAtRequestedShape(t *testing.T) {
	s := NewSyntheticSource()

	var mu sync.Mutex
	var got CapturedFrame
	received := make(chan struct{}, 1)

	cb := func(f CapturedFrame) {
		mu.Lock()
		got = f
		mu.Unlock()
		select {
		case received <- struct{}{}:
		default:
		}
	}

	cfg := SessionConfig{
		Resolution:      &Resolution{Width: 32, Height: 16},
		PixelFormat:     pixfmt.BGRA8,
		TargetFrameRate: 120,
	}
	if err := s.Start(cfg, cb); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a synthetic frame")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Buffer.Width() != 32 || got.Buffer.Height() != 16 {
		t.Fatalf("frame shape = %dx%d, want 32x16", got.Buffer.Width(), got.Buffer.Height())
	}
	if got.Status != StatusComplete {
		t.Fatalf("Status = %v, want StatusComplete", got.Status)
	}
}

func TestSyntheticSourceStopIsIdempotent(t *testing.T) {
	s := NewSyntheticSource()
	cfg := SessionConfig{Resolution: &Resolution{Width: 8, Height: 8}, TargetFrameRate: 30}
	if err := s.Start(cfg, func(CapturedFrame) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestSyntheticSourceResolveTargets(t *testing.T) {
	s := NewSyntheticSource()
	target, err := s.ResolveTargets(SessionConfig{DisplayID: 7})
	if err != nil {
		t.Fatalf("ResolveTargets: %v", err)
	}
	if target.DisplayID != 7 {
		t.Fatalf("DisplayID = %d, want 7", target.DisplayID)
	}
}
