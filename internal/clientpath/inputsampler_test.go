package clientpath

import (
	"testing"
	"time"

	"github.com/nullbound/hevcstream/internal/control"
)

func TestInputSamplerForwardsLatestPointerPosition(t *testing.T) {
	events := make(chan control.InputEvent, 16)
	s := NewInputSampler(func(e control.InputEvent) { events <- e })
	s.Start()
	defer s.Stop()

	s.OnPointerMove(control.EventMouseMoved, 0.1, 0.1, 0)
	s.OnPointerMove(control.EventMouseMoved, 0.5, 0.5, control.ModShift)

	select {
	case e := <-events:
		if e.X != 0.5 || e.Y != 0.5 {
			t.Fatalf("expected the latest held position, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a resampled pointer event")
	}
}

func TestInputSamplerDecaysScrollMomentum(t *testing.T) {
	events := make(chan control.InputEvent, 64)
	s := NewInputSampler(func(e control.InputEvent) { events <- e })
	s.Start()
	defer s.Stop()

	s.OnScroll(10, 10, control.PhaseBegan, 0)

	sawDecay := false
	sawEnded := false
	deadline := time.After(2 * time.Second)
	for !sawEnded {
		select {
		case e := <-events:
			if e.Kind != control.EventScrollWheel {
				t.Fatalf("unexpected kind %v", e.Kind)
			}
			if e.MomentumPhase == control.PhaseChanged {
				sawDecay = true
			}
			if e.Phase == control.PhaseEnded {
				sawEnded = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for scroll momentum to decay to a stop")
		}
	}
	if !sawDecay {
		t.Error("expected at least one decaying momentum tick before the stop")
	}
}
