package clientpath

import (
	"testing"

	"github.com/nullbound/hevcstream/internal/encoder"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

type fakeDecoder struct {
	configureCalls int
	decodeCalls    int
	lastKeyframe   bool
}

func (d *fakeDecoder) Configure(width, height int, format pixfmt.Format, profile encoder.Profile) error {
	d.configureCalls++
	return nil
}

func (d *fakeDecoder) Decode(payload []byte, keyframe bool) (DecodedFrame, error) {
	d.decodeCalls++
	d.lastKeyframe = keyframe
	return DecodedFrame{Width: 64, Height: 64, PixelBuffer: payload}, nil
}

func (d *fakeDecoder) Close() error { return nil }

func TestIngressDiscardsFramesBeforeKeyframe(t *testing.T) {
	dec := &fakeDecoder{}
	cache := NewCache()
	in := NewIngress(1, dec, cache, pixfmt.NV12)

	if err := in.SubmitFrame([]byte("delta"), 64, 64, false, false); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if dec.decodeCalls != 0 {
		t.Fatalf("expected no decode before a keyframe, got %d calls", dec.decodeCalls)
	}
	if _, ok := cache.Get(1); ok {
		t.Fatal("expected no cache entry before a keyframe")
	}

	if err := in.SubmitFrame([]byte("key"), 64, 64, true, false); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if dec.decodeCalls != 1 {
		t.Fatalf("expected 1 decode after the keyframe, got %d", dec.decodeCalls)
	}
	entry, ok := cache.Get(1)
	if !ok || entry.Sequence != 1 {
		t.Fatalf("got %+v, ok=%v", entry, ok)
	}

	if err := in.SubmitFrame([]byte("delta2"), 64, 64, false, false); err != nil {
		t.Fatalf("SubmitFrame: %v", err)
	}
	if dec.decodeCalls != 2 {
		t.Fatalf("expected decode to proceed for deltas after the keyframe, got %d", dec.decodeCalls)
	}
}

func TestIngressReconfiguresOnDimensionChange(t *testing.T) {
	dec := &fakeDecoder{}
	cache := NewCache()
	in := NewIngress(1, dec, cache, pixfmt.NV12)

	in.SubmitFrame([]byte("key"), 640, 480, true, false)
	if dec.configureCalls != 1 {
		t.Fatalf("expected 1 configure call, got %d", dec.configureCalls)
	}

	in.SubmitFrame([]byte("delta"), 640, 480, false, false)
	if dec.configureCalls != 1 {
		t.Fatalf("expected no reconfigure for an unchanged size, got %d", dec.configureCalls)
	}

	in.SubmitFrame([]byte("delta2"), 1280, 720, false, false)
	if dec.configureCalls != 2 {
		t.Fatalf("expected a reconfigure for a new size, got %d", dec.configureCalls)
	}
}

func TestIngressResetRequiresNewKeyframe(t *testing.T) {
	dec := &fakeDecoder{}
	cache := NewCache()
	in := NewIngress(1, dec, cache, pixfmt.NV12)

	in.SubmitFrame([]byte("key"), 64, 64, true, false)
	in.Reset()

	in.SubmitFrame([]byte("delta"), 64, 64, false, false)
	if dec.decodeCalls != 1 {
		t.Fatalf("expected the post-reset delta to be discarded, decode calls = %d", dec.decodeCalls)
	}

	in.SubmitFrame([]byte("key2"), 64, 64, true, false)
	if dec.decodeCalls != 2 {
		t.Fatalf("expected a post-reset keyframe to decode, got %d calls", dec.decodeCalls)
	}
}
