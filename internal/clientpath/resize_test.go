package clientpath

import (
	"testing"
	"time"
)

func TestDimensionChangeSignificant(t *testing.T) {
	cases := []struct {
		oldW, oldH, newW, newH int
		want                   bool
	}{
		{0, 0, 800, 600, true},
		{800, 600, 800, 600, false},
		{800, 600, 805, 600, false},   // under both thresholds
		{800, 600, 825, 600, true},    // 25px > 20px
		{1000, 1000, 985, 1000, false}, // 15px and 1.5%: under both thresholds
	}
	for i, c := range cases {
		got := dimensionChangeSignificant(c.oldW, c.oldH, c.newW, c.newH)
		if got != c.want {
			t.Errorf("case %d: dimensionChangeSignificant(%d,%d,%d,%d) = %v, want %v",
				i, c.oldW, c.oldH, c.newW, c.newH, got, c.want)
		}
	}
}

func TestResizeStateAnnouncesOnSignificantChange(t *testing.T) {
	announced := make(chan ResizeAnnouncement, 1)
	rs := NewResizeState(func(a ResizeAnnouncement) { announced <- a })
	rs.SetScreenArea(1920 * 1080)

	rs.OnDrawableSizeChanged(1280, 720)
	if !rs.IsResizing() {
		t.Fatal("expected resizing state to be true immediately after a significant change")
	}

	select {
	case a := <-announced:
		if a.PixelWidth != 1280 || a.PixelHeight != 720 {
			t.Fatalf("got %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for debounced announcement")
	}
}

func TestResizeStateSuppressesMicroChanges(t *testing.T) {
	announceCount := 0
	rs := NewResizeState(func(ResizeAnnouncement) { announceCount++ })

	// Establishes the baseline size; always significant from zero.
	rs.OnDrawableSizeChanged(800, 600)
	time.Sleep(250 * time.Millisecond)
	if announceCount != 1 {
		t.Fatalf("expected exactly 1 announcement for the baseline size, got %d", announceCount)
	}
	rs.AcknowledgeResize()

	rs.OnDrawableSizeChanged(805, 601)
	time.Sleep(250 * time.Millisecond)
	if announceCount != 1 {
		t.Fatalf("expected no additional announcement for a micro-change, got %d total", announceCount)
	}
	if rs.IsResizing() {
		t.Fatal("a micro-change should not set the resizing flag")
	}
}
