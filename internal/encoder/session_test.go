package encoder

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

func TestFirstFrameIsAlwaysKeyframeWithParameterSets(t *testing.T) {
	s := NewSession()
	if err := s.CreateSession(64, 64, pixfmt.NV12, 0, 60, 0); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var got EncodedUnit
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	s.Start(func(u EncodedUnit) {
		mu.Lock()
		got = u
		mu.Unlock()
		done <- struct{}{}
	}, nil)

	frame := make([]byte, 64*64+64*64/2)
	if res := s.EncodeFrame(frame, false); res != Scheduled {
		t.Fatalf("EncodeFrame = %v, want Scheduled", res)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for encode completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if !got.Keyframe {
		t.Fatal("first frame must be a keyframe")
	}
	paramSets, slice, ok := SplitKeyframePayload(got.Payload)
	if !ok {
		t.Fatal("expected a length-prefixed parameter-set block")
	}
	if len(paramSets) == 0 {
		t.Fatal("expected non-empty parameter sets on a keyframe")
	}
	if len(slice) == 0 {
		t.Fatal("expected non-empty slice data")
	}
}

func TestInFlightLimitRejectsOverCapacity(t *testing.T) {
	s := NewSession()
	if err := s.CreateSession(32, 32, pixfmt.BGRA8, 0, 30, 0); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	s.UpdateInFlightLimit(1)

	gate := make(chan struct{})
	blocker := &blockingBackend{softwareBackend: &softwareBackend{width: 32, height: 32}, gate: gate}
	s.mu.Lock()
	s.backend = blocker
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	s.Start(func(u EncodedUnit) {}, func(n uint64, ok bool) { wg.Done() })

	frame := make([]byte, 32*32*4)
	if res := s.EncodeFrame(frame, false); res != Scheduled {
		t.Fatalf("first EncodeFrame = %v, want Scheduled", res)
	}
	if res := s.EncodeFrame(frame, false); res != InFlightLimit {
		t.Fatalf("second EncodeFrame = %v, want InFlightLimit", res)
	}

	close(gate)
	wg.Wait()
}

func TestUpdateDimensionsDiscardsStaleCompletion(t *testing.T) {
	s := NewSession()
	if err := s.CreateSession(32, 32, pixfmt.BGRA8, 0, 30, 0); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	gate := make(chan struct{})
	blocker := &blockingBackend{softwareBackend: &softwareBackend{width: 32, height: 32}, gate: gate}
	s.mu.Lock()
	s.backend = blocker
	s.mu.Unlock()

	var delivered atomic.Bool
	s.Start(func(u EncodedUnit) { delivered.Store(true) }, nil)

	frame := make([]byte, 32*32*4)
	if res := s.EncodeFrame(frame, false); res != Scheduled {
		t.Fatalf("EncodeFrame = %v, want Scheduled", res)
	}

	updateDone := make(chan error, 1)
	go func() { updateDone <- s.UpdateDimensions(64, 64) }()

	// Give UpdateDimensions a moment to observe the in-flight submission
	// and bump the version before we let the stale encode complete.
	time.Sleep(20 * time.Millisecond)
	close(gate)

	if err := <-updateDone; err != nil {
		t.Fatalf("UpdateDimensions: %v", err)
	}

	if delivered.Load() {
		t.Fatal("a completion captured at the old session_version must be discarded")
	}
}

func TestPreheatResetsFrameNumber(t *testing.T) {
	s := NewSession()
	if err := s.CreateSession(16, 16, pixfmt.BGRA8, 0, 60, 0); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	s.Start(func(u EncodedUnit) {}, nil)
	frame := make([]byte, 16*16*4)
	s.EncodeFrame(frame, false)
	s.Flush()

	if err := s.Preheat(); err != nil {
		t.Fatalf("Preheat: %v", err)
	}

	s.mu.Lock()
	fn := s.frameNumber
	s.mu.Unlock()
	if fn != 0 {
		t.Fatalf("frameNumber after Preheat = %d, want 0", fn)
	}
}

func TestMapQualityBoundary(t *testing.T) {
	q := MapQuality(0.99)
	if !q.QualityOnly {
		t.Fatal("q=0.99 should be quality-only")
	}
	q = MapQuality(0.5)
	if q.QualityOnly {
		t.Fatal("q=0.5 should set a QP range")
	}
	if q.MinQP < 10 || q.MinQP > 46 {
		t.Fatalf("MinQP = %d, out of [10,46]", q.MinQP)
	}
	if q.MaxQP != q.MinQP+12 && q.MaxQP != 51 {
		t.Fatalf("MaxQP = %d, want MinQP+12 or clamped to 51", q.MaxQP)
	}
}

func TestKeyframePayloadRoundTrip(t *testing.T) {
	ps := []byte{1, 2, 3, 4, 5}
	slice := []byte{9, 9, 9}
	payload := BuildKeyframePayload(ps, slice)
	gotPS, gotSlice, ok := SplitKeyframePayload(payload)
	if !ok {
		t.Fatal("SplitKeyframePayload failed")
	}
	if string(gotPS) != string(ps) || string(gotSlice) != string(slice) {
		t.Fatal("round trip mismatch")
	}
}

type blockingBackend struct {
	*softwareBackend
	gate chan struct{}
}

func (b *blockingBackend) Encode(frame []byte, forceKeyframe bool) ([]byte, error) {
	<-b.gate
	return b.softwareBackend.Encode(frame, forceKeyframe)
}
