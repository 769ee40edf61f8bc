// Package control implements the reliable, ordered, length-prefixed
// control channel of spec §6: hello/capability exchange, input events,
// keyframe requests, and cursor updates, carried over a length-prefixed
// envelope distinct from the unreliable video datagram path.
package control

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType discriminates an Envelope's body, per spec §6.
type MessageType uint16

const (
	MsgHello             MessageType = 1
	MsgHostCapabilities  MessageType = 2
	MsgInputEvent        MessageType = 3
	MsgKeyframeRequest   MessageType = 4
	MsgCursorUpdate      MessageType = 5
	MsgPing              MessageType = 6
	MsgPong              MessageType = 7
	MsgBye               MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgHostCapabilities:
		return "HOST_CAPABILITIES"
	case MsgInputEvent:
		return "INPUT_EVENT"
	case MsgKeyframeRequest:
		return "KEYFRAME_REQUEST"
	case MsgCursorUpdate:
		return "CURSOR_UPDATE"
	case MsgPing:
		return "PING"
	case MsgPong:
		return "PONG"
	case MsgBye:
		return "BYE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

const (
	envelopeHeaderLen = 6 // type (u16) + length (u32)
	maxEnvelopeBody   = 1 << 20
)

// Envelope is the outer control-channel wrapper: { type: u16, length:
// u32, body: bytes }, per spec §6.
type Envelope struct {
	Type MessageType
	Body []byte
}

// WriteEnvelope writes e to w as one header write followed by the body,
// mirroring the teacher's single-header-then-payload frame write.
func WriteEnvelope(w io.Writer, e Envelope) error {
	if len(e.Body) > maxEnvelopeBody {
		return fmt.Errorf("control: envelope body too large: %d bytes", len(e.Body))
	}

	header := make([]byte, envelopeHeaderLen)
	binary.BigEndian.PutUint16(header[0:2], uint16(e.Type))
	binary.BigEndian.PutUint32(header[2:6], uint32(len(e.Body)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("control: write envelope header: %w", err)
	}
	if len(e.Body) > 0 {
		if _, err := w.Write(e.Body); err != nil {
			return fmt.Errorf("control: write envelope body: %w", err)
		}
	}
	return nil
}

// ReadEnvelope reads one envelope from r, blocking until the full header
// and body arrive.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	header := make([]byte, envelopeHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Envelope{}, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(header[0:2]))
	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxEnvelopeBody {
		return Envelope{}, fmt.Errorf("control: envelope body too large: %d bytes", length)
	}

	var body []byte
	if length > 0 {
		body = make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return Envelope{}, fmt.Errorf("control: read envelope body: %w", err)
		}
	}

	return Envelope{Type: msgType, Body: body}, nil
}
