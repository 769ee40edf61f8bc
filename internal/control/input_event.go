package control

import (
	"encoding/binary"
	"fmt"
	"math"
)

// InputEventKind discriminates the InputEvent union, per spec §6.
type InputEventKind uint8

const (
	EventMouseDown InputEventKind = iota
	EventMouseUp
	EventMouseMoved
	EventMouseDragged
	EventRightMouseDown
	EventRightMouseUp
	EventOtherMouseDown
	EventOtherMouseUp
	EventScrollWheel
	EventKeyDown
	EventKeyUp
	EventFlagsChanged
	EventMagnify
	EventRotate
	EventWindowFocus
	EventRelativeResize
	EventPixelResize
)

// ModifierFlags is a bitmask over the keyboard modifier keys, per spec §6.
type ModifierFlags uint8

const (
	ModShift ModifierFlags = 1 << iota
	ModControl
	ModOption
	ModCommand
	ModCapsLock
	ModFunction
)

// ScrollPhase mirrors the touch/scroll gesture phase reported alongside
// scroll_wheel events.
type ScrollPhase uint8

const (
	PhaseNone ScrollPhase = iota
	PhaseBegan
	PhaseChanged
	PhaseEnded
	PhaseCancelled
	PhaseMayBegin
)

// InputEvent is the discriminated union of pointer, scroll, keyboard,
// gesture, and resize events forwarded from client to host, per spec §6.
// Pointer coordinates are normalized in [0,1] against the client's
// drawable.
type InputEvent struct {
	Kind InputEventKind

	X, Y float64 // pointer events

	DeltaX, DeltaY               float64 // scroll_wheel
	Phase, MomentumPhase         ScrollPhase
	IsPrecise                    bool

	KeyCode                     uint16 // key_down / key_up / flags_changed
	Characters                  string
	CharactersIgnoringModifiers string
	IsRepeat                    bool

	Modifiers ModifierFlags

	Magnification float64 // magnify
	RotationDegrees float64 // rotate

	Focused bool // window_focus

	RelativeWidth, RelativeHeight float64 // relative_resize
	PixelWidth, PixelHeight       uint32  // pixel_resize
}

// isPointerEvent reports whether Kind carries normalized X/Y coordinates.
func (k InputEventKind) isPointerEvent() bool {
	switch k {
	case EventMouseDown, EventMouseUp, EventMouseMoved, EventMouseDragged,
		EventRightMouseDown, EventRightMouseUp, EventOtherMouseDown, EventOtherMouseUp:
		return true
	default:
		return false
	}
}

// Encode serializes an InputEvent body. The layout is kind-specific,
// matching the discriminated-union framing of spec §6: a one-byte kind
// tag, a two-byte modifier/flag field, then kind-specific fields.
func (e InputEvent) Encode() []byte {
	var fields []byte

	switch {
	case e.Kind.isPointerEvent():
		fields = encodeFloat64Pair(e.X, e.Y)
	case e.Kind == EventScrollWheel:
		fields = make([]byte, 8+8+1+1+1)
		off := 0
		binary.BigEndian.PutUint64(fields[off:], math.Float64bits(e.DeltaX))
		off += 8
		binary.BigEndian.PutUint64(fields[off:], math.Float64bits(e.DeltaY))
		off += 8
		fields[off] = byte(e.Phase)
		off++
		fields[off] = byte(e.MomentumPhase)
		off++
		fields[off] = boolByte(e.IsPrecise)
	case e.Kind == EventKeyDown || e.Kind == EventKeyUp || e.Kind == EventFlagsChanged:
		fields = encodeKeyFields(e)
	case e.Kind == EventMagnify:
		fields = encodeFloat64(e.Magnification)
	case e.Kind == EventRotate:
		fields = encodeFloat64(e.RotationDegrees)
	case e.Kind == EventWindowFocus:
		fields = []byte{boolByte(e.Focused)}
	case e.Kind == EventRelativeResize:
		fields = encodeFloat64Pair(e.RelativeWidth, e.RelativeHeight)
	case e.Kind == EventPixelResize:
		fields = make([]byte, 8)
		binary.BigEndian.PutUint32(fields[0:4], e.PixelWidth)
		binary.BigEndian.PutUint32(fields[4:8], e.PixelHeight)
	}

	buf := make([]byte, 1+2+len(fields))
	buf[0] = byte(e.Kind)
	binary.BigEndian.PutUint16(buf[1:3], uint16(e.Modifiers))
	copy(buf[3:], fields)
	return buf
}

func encodeFloat64(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func encodeFloat64Pair(a, b float64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], math.Float64bits(a))
	binary.BigEndian.PutUint64(buf[8:16], math.Float64bits(b))
	return buf
}

func encodeKeyFields(e InputEvent) []byte {
	chars := []byte(e.Characters)
	charsIgnoring := []byte(e.CharactersIgnoringModifiers)
	buf := make([]byte, 2+1+2+len(chars)+2+len(charsIgnoring))
	off := 0
	binary.BigEndian.PutUint16(buf[off:], e.KeyCode)
	off += 2
	buf[off] = boolByte(e.IsRepeat)
	off++
	binary.BigEndian.PutUint16(buf[off:], uint16(len(chars)))
	off += 2
	copy(buf[off:], chars)
	off += len(chars)
	binary.BigEndian.PutUint16(buf[off:], uint16(len(charsIgnoring)))
	off += 2
	copy(buf[off:], charsIgnoring)
	return buf
}

// DecodeInputEvent parses an InputEvent body produced by Encode.
func DecodeInputEvent(body []byte) (InputEvent, error) {
	if len(body) < 3 {
		return InputEvent{}, fmt.Errorf("control: input_event body too short")
	}
	e := InputEvent{
		Kind:      InputEventKind(body[0]),
		Modifiers: ModifierFlags(binary.BigEndian.Uint16(body[1:3])),
	}
	fields := body[3:]

	switch {
	case e.Kind.isPointerEvent():
		if len(fields) < 16 {
			return InputEvent{}, fmt.Errorf("control: pointer event body too short")
		}
		e.X = math.Float64frombits(binary.BigEndian.Uint64(fields[0:8]))
		e.Y = math.Float64frombits(binary.BigEndian.Uint64(fields[8:16]))
	case e.Kind == EventScrollWheel:
		if len(fields) < 19 {
			return InputEvent{}, fmt.Errorf("control: scroll event body too short")
		}
		e.DeltaX = math.Float64frombits(binary.BigEndian.Uint64(fields[0:8]))
		e.DeltaY = math.Float64frombits(binary.BigEndian.Uint64(fields[8:16]))
		e.Phase = ScrollPhase(fields[16])
		e.MomentumPhase = ScrollPhase(fields[17])
		e.IsPrecise = fields[18] != 0
	case e.Kind == EventKeyDown || e.Kind == EventKeyUp || e.Kind == EventFlagsChanged:
		if err := decodeKeyFields(fields, &e); err != nil {
			return InputEvent{}, err
		}
	case e.Kind == EventMagnify:
		if len(fields) < 8 {
			return InputEvent{}, fmt.Errorf("control: magnify event body too short")
		}
		e.Magnification = math.Float64frombits(binary.BigEndian.Uint64(fields))
	case e.Kind == EventRotate:
		if len(fields) < 8 {
			return InputEvent{}, fmt.Errorf("control: rotate event body too short")
		}
		e.RotationDegrees = math.Float64frombits(binary.BigEndian.Uint64(fields))
	case e.Kind == EventWindowFocus:
		if len(fields) < 1 {
			return InputEvent{}, fmt.Errorf("control: window_focus event body too short")
		}
		e.Focused = fields[0] != 0
	case e.Kind == EventRelativeResize:
		if len(fields) < 16 {
			return InputEvent{}, fmt.Errorf("control: relative_resize event body too short")
		}
		e.RelativeWidth = math.Float64frombits(binary.BigEndian.Uint64(fields[0:8]))
		e.RelativeHeight = math.Float64frombits(binary.BigEndian.Uint64(fields[8:16]))
	case e.Kind == EventPixelResize:
		if len(fields) < 8 {
			return InputEvent{}, fmt.Errorf("control: pixel_resize event body too short")
		}
		e.PixelWidth = binary.BigEndian.Uint32(fields[0:4])
		e.PixelHeight = binary.BigEndian.Uint32(fields[4:8])
	}
	return e, nil
}

func decodeKeyFields(fields []byte, e *InputEvent) error {
	if len(fields) < 5 {
		return fmt.Errorf("control: key event body too short")
	}
	off := 0
	e.KeyCode = binary.BigEndian.Uint16(fields[off:])
	off += 2
	e.IsRepeat = fields[off] != 0
	off++
	charsLen := int(binary.BigEndian.Uint16(fields[off:]))
	off += 2
	if off+charsLen+2 > len(fields) {
		return fmt.Errorf("control: key event body truncated")
	}
	e.Characters = string(fields[off : off+charsLen])
	off += charsLen
	ignoringLen := int(binary.BigEndian.Uint16(fields[off:]))
	off += 2
	if off+ignoringLen > len(fields) {
		return fmt.Errorf("control: key event body truncated")
	}
	e.CharactersIgnoringModifiers = string(fields[off : off+ignoringLen])
	return nil
}
