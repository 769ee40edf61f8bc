package pipeline

import (
	"net"
	"testing"

	"github.com/nullbound/hevcstream/internal/clientpath"
	"github.com/nullbound/hevcstream/internal/control"
	"github.com/nullbound/hevcstream/internal/encoder"
	"github.com/nullbound/hevcstream/internal/pixfmt"
	"github.com/nullbound/hevcstream/internal/wire"
)

// fakeClientDecoder is a clientpath.Decoder that reports back whatever
// dimensions it was last configured with, without doing real HEVC work.
type fakeClientDecoder struct {
	configureCalls int
	width, height  int
}

func (d *fakeClientDecoder) Configure(width, height int, format pixfmt.Format, profile encoder.Profile) error {
	d.configureCalls++
	d.width, d.height = width, height
	return nil
}

func (d *fakeClientDecoder) Decode(payload []byte, keyframe bool) (clientpath.DecodedFrame, error) {
	return clientpath.DecodedFrame{Width: d.width, Height: d.height, PixelBuffer: payload}, nil
}

func (d *fakeClientDecoder) Close() error { return nil }

func buildDatagram(streamID uint32, frameNumber uint32, payload []byte, keyframe, parameterSet, endOfFrame bool, fragmentIndex, fragmentCount uint16) []byte {
	h := wire.NewHeader()
	h.StreamID = streamID
	h.FrameNumber = frameNumber
	h.FragmentIndex = fragmentIndex
	h.FragmentCount = fragmentCount
	if keyframe {
		h.Flags |= wire.FlagKeyframe
	}
	if parameterSet {
		h.Flags |= wire.FlagParameterSet
	}
	if endOfFrame {
		h.Flags |= wire.FlagEndOfFrame
	}
	return wire.Encode(h, payload)
}

func TestClientPipelineDecodesSingleFragmentKeyframe(t *testing.T) {
	cache := clientpath.NewCache()
	p := NewClientPipeline(cache, nil)
	decoder := &fakeClientDecoder{}

	render := p.RegisterStream(ClientStreamConfig{StreamID: 5, Format: pixfmt.BGRA8, Width: 64, Height: 48}, decoder)

	payload := []byte{1, 2, 3, 4}
	dg := buildDatagram(5, 0, payload, true, true, true, 0, 1)

	p.HandleDatagram(dg, nil)

	if decoder.configureCalls != 1 {
		t.Fatalf("configureCalls = %d, want 1", decoder.configureCalls)
	}
	if decoder.width != 64 || decoder.height != 48 {
		t.Fatalf("decoder configured at %dx%d, want 64x48", decoder.width, decoder.height)
	}

	entry, ok := render.Tick()
	if !ok {
		t.Fatal("expected a renderable entry after the first keyframe decodes")
	}
	if string(entry.PixelBuffer) != string(payload) {
		t.Fatalf("PixelBuffer = %v, want %v", entry.PixelBuffer, payload)
	}
}

func TestClientPipelineDropsDatagramsForUnregisteredStream(t *testing.T) {
	cache := clientpath.NewCache()
	p := NewClientPipeline(cache, nil)

	dg := buildDatagram(9, 0, []byte{1}, true, true, true, 0, 1)
	p.HandleDatagram(dg, nil)

	if _, ok := cache.Get(9); ok {
		t.Fatal("expected no cache entry for an unregistered stream")
	}
}

func TestClientPipelineRequestsKeyframeOnIngressFailure(t *testing.T) {
	cache := clientpath.NewCache()
	hostConn, peerConn := net.Pipe()
	defer hostConn.Close()
	defer peerConn.Close()

	channel := control.NewChannel(peerConn, control.DefaultConfig(), nil)
	channel.Run()
	defer channel.Close()

	p := NewClientPipeline(cache, channel)
	decoder := &failingClientDecoder{}
	p.RegisterStream(ClientStreamConfig{StreamID: 1, Format: pixfmt.BGRA8}, decoder)

	dg := buildDatagram(1, 0, []byte{1}, true, true, true, 0, 1)
	p.HandleDatagram(dg, nil)

	envelope, err := control.ReadEnvelope(hostConn)
	if err != nil {
		t.Fatalf("ReadEnvelope: %v", err)
	}
	if envelope.Type != control.MsgKeyframeRequest {
		t.Fatalf("envelope.Type = %s, want KEYFRAME_REQUEST", envelope.Type)
	}
}

type failingClientDecoder struct{}

func (d *failingClientDecoder) Configure(width, height int, format pixfmt.Format, profile encoder.Profile) error {
	return errDecoderBroken
}
func (d *failingClientDecoder) Decode(payload []byte, keyframe bool) (clientpath.DecodedFrame, error) {
	return clientpath.DecodedFrame{}, errDecoderBroken
}
func (d *failingClientDecoder) Close() error { return nil }

type brokenDecoderError struct{}

func (*brokenDecoderError) Error() string { return "decoder broken" }

var errDecoderBroken = &brokenDecoderError{}
