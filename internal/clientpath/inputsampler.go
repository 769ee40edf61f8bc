package clientpath

import (
	"sync"
	"time"

	"github.com/nullbound/hevcstream/internal/control"
)

const inputSampleTick = time.Second / 120

// scrollMomentumDecay is applied once per tick while no new scroll
// delta has arrived, so momentum fades smoothly instead of the wire
// seeing a hard stop, per spec §4.7.
const scrollMomentumDecay = 0.85

// scrollMomentumFloor is the magnitude below which decaying momentum
// is treated as stopped and no further events are emitted.
const scrollMomentumFloor = 0.05

// Emitter sends a resampled InputEvent to the host, an external
// collaborator (the control channel).
type Emitter func(control.InputEvent)

// InputSampler resamples pointer move/drag and scroll_wheel input at
// 120Hz: only the latest held values are forwarded per tick, and
// scroll decays its effective rate once input stops, to produce
// smooth momentum without flooding the wire (spec §4.7).
type InputSampler struct {
	emit Emitter

	mu sync.Mutex

	havePointer   bool
	pointerKind   control.InputEventKind
	pointerX      float64
	pointerY      float64
	pointerMods   control.ModifierFlags
	pointerDirty  bool

	haveScroll    bool
	scrollDX      float64
	scrollDY      float64
	scrollPhase   control.ScrollPhase
	scrollMods    control.ModifierFlags
	scrollDirty   bool
	scrollCoasting bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewInputSampler returns a sampler that calls emit at 120Hz with the
// latest held pointer/scroll state.
func NewInputSampler(emit Emitter) *InputSampler {
	return &InputSampler{emit: emit}
}

// Start launches the 120Hz tick loop.
func (s *InputSampler) Start() {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop()
}

// Stop terminates the tick loop.
func (s *InputSampler) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

// OnPointerMove records the latest pointer position for the next
// tick. kind distinguishes mouse_moved/mouse_dragged/etc.
func (s *InputSampler) OnPointerMove(kind control.InputEventKind, x, y float64, mods control.ModifierFlags) {
	s.mu.Lock()
	s.havePointer = true
	s.pointerDirty = true
	s.pointerKind = kind
	s.pointerX, s.pointerY = x, y
	s.pointerMods = mods
	s.mu.Unlock()
}

// OnScroll records a fresh scroll delta, resetting momentum decay.
func (s *InputSampler) OnScroll(dx, dy float64, phase control.ScrollPhase, mods control.ModifierFlags) {
	s.mu.Lock()
	s.haveScroll = true
	s.scrollDirty = true
	s.scrollCoasting = false
	s.scrollDX, s.scrollDY = dx, dy
	s.scrollPhase = phase
	s.scrollMods = mods
	s.mu.Unlock()
}

func (s *InputSampler) loop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(inputSampleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

func (s *InputSampler) tick() {
	s.mu.Lock()
	var events []control.InputEvent

	if s.havePointer && s.pointerDirty {
		events = append(events, control.InputEvent{
			Kind: s.pointerKind, X: s.pointerX, Y: s.pointerY, Modifiers: s.pointerMods,
		})
		s.pointerDirty = false
	}

	if s.haveScroll {
		if s.scrollDirty {
			events = append(events, control.InputEvent{
				Kind: control.EventScrollWheel, DeltaX: s.scrollDX, DeltaY: s.scrollDY,
				Phase: s.scrollPhase, MomentumPhase: control.PhaseBegan, Modifiers: s.scrollMods,
			})
			s.scrollDirty = false
			s.scrollCoasting = true
		} else if s.scrollCoasting {
			s.scrollDX *= scrollMomentumDecay
			s.scrollDY *= scrollMomentumDecay
			if abs(s.scrollDX) < scrollMomentumFloor && abs(s.scrollDY) < scrollMomentumFloor {
				s.scrollCoasting = false
				s.haveScroll = false
				events = append(events, control.InputEvent{
					Kind: control.EventScrollWheel, Phase: control.PhaseEnded,
					MomentumPhase: control.PhaseEnded, Modifiers: s.scrollMods,
				})
			} else {
				events = append(events, control.InputEvent{
					Kind: control.EventScrollWheel, DeltaX: s.scrollDX, DeltaY: s.scrollDY,
					Phase: control.PhaseNone, MomentumPhase: control.PhaseChanged, Modifiers: s.scrollMods,
				})
			}
		}
	}
	s.mu.Unlock()

	for _, e := range events {
		s.emit(e)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
