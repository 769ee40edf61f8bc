package pipeline

import (
	"sync"
	"time"

	"github.com/cybergarage/go-logger/log"

	"github.com/nullbound/hevcstream/internal/capture"
	"github.com/nullbound/hevcstream/internal/control"
	"github.com/nullbound/hevcstream/internal/copier"
	"github.com/nullbound/hevcstream/internal/encoder"
	"github.com/nullbound/hevcstream/internal/fragment"
	"github.com/nullbound/hevcstream/internal/pacing"
	"github.com/nullbound/hevcstream/internal/pixfmt"
	"github.com/nullbound/hevcstream/internal/wire"
)

// InputInjector is the external collaborator that applies a forwarded
// InputEvent to the host OS (cursor move, key event, and so on). This
// package ships no concrete implementation, matching the platform
// boundary capture.Source and copier.GPUBlitter already draw.
type InputInjector interface {
	Inject(control.InputEvent)
}

// HostStreamConfig is the per-stream configuration a HostPipeline needs
// beyond what capture.SessionConfig already carries.
type HostStreamConfig struct {
	StreamID          uint32
	MTU               int
	MinPoolCount      int
	CopyInFlightLimit int
	KeyFrameInterval  int
	LatencyMode       int
}

// HostPipeline drives one capture source through copy, encode, and
// fragmentation to a DatagramSender, and answers control-channel
// requests (keyframe resync, forwarded input) over a Channel. It plays
// the role the reference mux.Manager plays over a dialed transport
// connection, narrowed to exactly the one stream/one peer shape a
// remote-desktop host needs per connected client.
type HostPipeline struct {
	cfg HostStreamConfig

	engine     *capture.Engine
	copier     *copier.Copier
	pacer      *pacing.Controller
	session    *encoder.Session
	fragmenter *fragment.Fragmenter
	state      fragment.StreamState

	sender  DatagramSender
	channel *control.Channel
	input   InputInjector

	closed bool
	mu     sync.Mutex
}

// NewHostPipeline wires source through blitter, sender, and channel.
// input may be nil if the host does not accept forwarded input.
func NewHostPipeline(source capture.Source, blitter copier.GPUBlitter, sender DatagramSender, channel *control.Channel, input InputInjector, cfg HostStreamConfig) *HostPipeline {
	if cfg.MTU <= wire.HeaderSize {
		cfg.MTU = 1200
	}
	if cfg.MinPoolCount <= 0 {
		cfg.MinPoolCount = 3
	}
	if cfg.CopyInFlightLimit <= 0 {
		cfg.CopyInFlightLimit = 2
	}

	p := &HostPipeline{
		cfg:        cfg,
		copier:     copier.NewCopier(blitter),
		pacer:      pacing.NewController(60),
		session:    encoder.NewSession(),
		fragmenter: fragment.NewFragmenter(cfg.MTU),
		state:      fragment.StreamState{StreamID: cfg.StreamID},
		sender:     sender,
		channel:    channel,
		input:      input,
	}
	p.engine = capture.NewEngine(source, p.handleCapturedFrame, p.handleStall, p.handleDimensionChange)
	p.session.Start(p.handleEncoded, p.handleEncodeComplete)

	if channel != nil {
		channel.OnMessage(control.MsgKeyframeRequest, p.handleKeyframeRequest)
		channel.OnMessage(control.MsgInputEvent, p.handleInputEvent)
	}
	return p
}

// Start configures the encoder session and capture source and launches
// the control channel's loops. preheat runs the encoder's synthetic
// warm-up pass before the first real frame, per spec §4.6.
func (p *HostPipeline) Start(sessCfg capture.SessionConfig, format pixfmt.Format, preheat bool) error {
	p.pacer.UpdateTargetFPS(sessCfg.TargetFrameRate)

	width, height := 0, 0
	if sessCfg.Resolution != nil {
		width, height = sessCfg.Resolution.Width, sessCfg.Resolution.Height
	}
	if width > 0 && height > 0 {
		if err := p.session.CreateSession(width, height, format, p.cfg.LatencyMode, sessCfg.TargetFrameRate, p.cfg.KeyFrameInterval); err != nil {
			return err
		}
		if preheat {
			if err := p.session.Preheat(); err != nil {
				log.Warnf("pipeline: preheat failed: %s", err.Error())
			}
		}
	}

	if err := p.engine.Start(sessCfg); err != nil {
		return err
	}
	if p.channel != nil {
		p.channel.Run()
	}
	return nil
}

// Stop drains and tears down the capture engine, encoder session, and
// control channel, in that order, so no new work enters the encoder
// after the source has stopped delivering frames.
func (p *HostPipeline) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.engine.Stop(); err != nil {
		log.Warnf("pipeline: engine stop failed: %s", err.Error())
	}
	if err := p.session.Stop(); err != nil {
		log.Warnf("pipeline: session stop failed: %s", err.Error())
	}
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

func (p *HostPipeline) handleCapturedFrame(frame capture.CapturedFrame) {
	if !p.pacer.ShouldCaptureFrame(frame.HostCaptureTime) {
		return
	}

	result := p.copier.ScheduleCopy(frame.Buffer, p.cfg.MinPoolCount, p.cfg.CopyInFlightLimit, p.handleCopyComplete)
	if result != copier.Scheduled {
		log.Debugf("pipeline: frame copy not scheduled: %s", result.String())
	}
}

func (p *HostPipeline) handleCopyComplete(buf *copier.Buffer, err error) {
	if err != nil || buf == nil {
		return
	}

	// flattenPlanes copies the pool buffer's bytes into an independent
	// slice, so the buffer can return to the pool immediately rather
	// than staying pinned for the encoder's async completion.
	frame := flattenPlanes(buf)
	buf.Release()

	forceKeyframe := p.engine.TakePendingKeyframeRequest()
	if result := p.session.EncodeFrame(frame, forceKeyframe); result != encoder.Scheduled {
		log.Debugf("pipeline: frame encode not scheduled: %s", result.String())
	}
}

func (p *HostPipeline) handleEncoded(unit encoder.EncodedUnit) {
	timestampNanos := uint64(time.Now().UnixNano())
	datagrams := p.fragmenter.Split(&p.state, unit.Payload, unit.Keyframe, unit.Keyframe, timestampNanos)
	for _, dg := range datagrams {
		p.sender.Send(wire.Encode(dg.Header, dg.Payload))
	}
}

func (p *HostPipeline) handleEncodeComplete(frameNumber uint64, ok bool) {
	if !ok {
		log.Debugf("pipeline: frame %d dropped by encoder", frameNumber)
	}
}

func (p *HostPipeline) handleStall(reason error) {
	log.Warnf("pipeline: capture stalled: %s", reason.Error())
}

func (p *HostPipeline) handleDimensionChange(width, height int) {
	if err := p.session.UpdateDimensions(width, height); err != nil {
		log.Warnf("pipeline: encoder dimension update failed: %s", err.Error())
	}
}

func (p *HostPipeline) handleKeyframeRequest(e control.Envelope) {
	if _, err := control.DecodeKeyframeRequest(e.Body); err != nil {
		log.Debugf("pipeline: malformed keyframe_request: %s", err.Error())
		return
	}
	p.session.ForceKeyframe()
	p.engine.RequestKeyframe()
}

func (p *HostPipeline) handleInputEvent(e control.Envelope) {
	if p.input == nil {
		return
	}
	event, err := control.DecodeInputEvent(e.Body)
	if err != nil {
		log.Debugf("pipeline: malformed input_event: %s", err.Error())
		return
	}
	p.input.Inject(event)
}

func flattenPlanes(buf *copier.Buffer) []byte {
	total := 0
	for _, plane := range buf.Planes {
		total += len(plane)
	}
	out := make([]byte, 0, total)
	for _, plane := range buf.Planes {
		out = append(out, plane...)
	}
	return out
}
