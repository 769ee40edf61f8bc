package pipeline

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/cybergarage/go-logger/log"

	"github.com/nullbound/hevcstream/internal/clientpath"
	"github.com/nullbound/hevcstream/internal/control"
	"github.com/nullbound/hevcstream/internal/fragment"
	"github.com/nullbound/hevcstream/internal/pixfmt"
	"github.com/nullbound/hevcstream/internal/wire"
)

// ClientStreamConfig describes a stream as announced over the control
// channel, before any of its datagrams have arrived.
type ClientStreamConfig struct {
	StreamID uint32
	Format   pixfmt.Format
	Width    int
	Height   int
}

// clientStream bundles one stream's reassembly and decode-ingress state.
// width/height are tracked as atomics rather than under the pipeline's
// map mutex since HandleDatagram reads them on every completed frame,
// not just on the resize announcements that update them.
type clientStream struct {
	reassembler *fragment.Reassembler
	ingress     *clientpath.Ingress
	render      *clientpath.RenderTrigger

	width  atomic.Int32
	height atomic.Int32
}

// ClientPipeline drives inbound datagrams from a UDPReceiver through
// per-stream reassembly and decode-ingress into a shared Cache, and
// relays keyframe requests and input events out over a control
// Channel. It is the receive-side counterpart to HostPipeline, playing
// the same per-peer bookkeeping role the reference mux.Manager plays
// over its connection map, keyed here by stream_id instead of remote
// address since one control channel serves every stream from one host.
type ClientPipeline struct {
	decoder wire.Decoder
	cache   *clientpath.Cache
	channel *control.Channel

	mu      sync.Mutex
	streams map[uint32]*clientStream
}

// NewClientPipeline returns a ClientPipeline writing decoded frames into
// cache and relaying requests over channel.
func NewClientPipeline(cache *clientpath.Cache, channel *control.Channel) *ClientPipeline {
	return &ClientPipeline{
		cache:   cache,
		channel: channel,
		streams: make(map[uint32]*clientStream),
	}
}

// RegisterStream creates stream_id's reassembler and decode ingress
// using decoder as its platform HEVC decoder, and returns the
// RenderTrigger the client's render loop should poll for it. Call this
// once per stream, driven by a HostCapabilities exchange or an
// out-of-band stream descriptor, before datagrams for it can be
// decoded — datagrams for an unregistered stream are dropped.
func (p *ClientPipeline) RegisterStream(cfg ClientStreamConfig, decoder clientpath.Decoder) *clientpath.RenderTrigger {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &clientStream{
		reassembler: fragment.NewReassembler(),
		ingress:     clientpath.NewIngress(cfg.StreamID, decoder, p.cache, cfg.Format),
		render:      clientpath.NewRenderTrigger(cfg.StreamID, p.cache),
	}
	s.width.Store(int32(cfg.Width))
	s.height.Store(int32(cfg.Height))
	p.streams[cfg.StreamID] = s
	return s.render
}

// UpdateStreamDimensions records a declared content-dimension change for
// an already-registered stream, e.g. following a resize announcement.
// The decode ingress reconfigures the decoder the next time a frame's
// declared dimensions differ from what it is currently running.
func (p *ClientPipeline) UpdateStreamDimensions(streamID uint32, width, height int) {
	p.mu.Lock()
	s, ok := p.streams[streamID]
	p.mu.Unlock()
	if !ok {
		return
	}
	s.width.Store(int32(width))
	s.height.Store(int32(height))
}

// RemoveStream tears down a stream's reassembly and cache state, e.g.
// once the control channel reports the peer has closed it.
func (p *ClientPipeline) RemoveStream(streamID uint32) {
	p.mu.Lock()
	delete(p.streams, streamID)
	p.mu.Unlock()
	p.cache.Remove(streamID)
}

// HandleDatagram decodes one inbound wire datagram and feeds it through
// the owning stream's reassembler and decode ingress. It is safe to use
// directly as a DatagramHandler.
func (p *ClientPipeline) HandleDatagram(payload []byte, _ net.Addr) {
	dg, ok := p.decoder.Decode(payload)
	if !ok {
		return
	}

	p.mu.Lock()
	stream, ok := p.streams[dg.Header.StreamID]
	p.mu.Unlock()
	if !ok {
		return
	}

	frame, complete := stream.reassembler.Insert(dg.Header, dg.Payload)
	if !complete {
		return
	}

	keyframe := dg.Header.Flags.Has(wire.FlagKeyframe)
	parameterSet := dg.Header.Flags.Has(wire.FlagParameterSet)
	width, height := int(stream.width.Load()), int(stream.height.Load())

	if err := stream.ingress.SubmitFrame(frame, width, height, keyframe, parameterSet); err != nil {
		log.Debugf("pipeline: decode ingress failed for stream %d: %s", dg.Header.StreamID, err.Error())
		p.requestKeyframe(dg.Header.StreamID)
	}
}

func (p *ClientPipeline) requestKeyframe(streamID uint32) {
	if p.channel == nil {
		return
	}
	if err := p.channel.Send(control.Envelope{
		Type: control.MsgKeyframeRequest,
		Body: control.KeyframeRequest{StreamID: streamID}.Encode(),
	}); err != nil {
		log.Debugf("pipeline: keyframe_request send failed: %s", err.Error())
	}
}

// SendInputEvent forwards a sampled or resampled input event to the
// host over the control channel.
func (p *ClientPipeline) SendInputEvent(e control.InputEvent) error {
	return p.channel.Send(control.Envelope{Type: control.MsgInputEvent, Body: e.Encode()})
}
