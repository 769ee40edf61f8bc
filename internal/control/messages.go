package control

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DeviceType identifies the kind of device on either end of the channel.
type DeviceType uint8

const (
	DeviceMac DeviceType = iota
	DeviceIPad
	DeviceVision
	DeviceOther
)

// Hello is the first message a client sends after connecting, per
// spec §6.
type Hello struct {
	DeviceID        [16]byte
	DeviceName      string
	DeviceType      DeviceType
	ProtocolVersion uint16
	Capabilities    uint32
}

// Encode serializes Hello's body (the envelope header is separate).
func (h Hello) Encode() []byte {
	nameBytes := []byte(h.DeviceName)
	buf := make([]byte, 16+2+len(nameBytes)+1+2+4)
	off := 0
	copy(buf[off:], h.DeviceID[:])
	off += 16
	binary.BigEndian.PutUint16(buf[off:], uint16(len(nameBytes)))
	off += 2
	copy(buf[off:], nameBytes)
	off += len(nameBytes)
	buf[off] = byte(h.DeviceType)
	off++
	binary.BigEndian.PutUint16(buf[off:], h.ProtocolVersion)
	off += 2
	binary.BigEndian.PutUint32(buf[off:], h.Capabilities)
	return buf
}

// DecodeHello parses a Hello body.
func DecodeHello(body []byte) (Hello, error) {
	if len(body) < 16+2 {
		return Hello{}, fmt.Errorf("control: hello body too short")
	}
	var h Hello
	off := 0
	copy(h.DeviceID[:], body[off:off+16])
	off += 16
	nameLen := int(binary.BigEndian.Uint16(body[off:]))
	off += 2
	if off+nameLen+1+2+4 > len(body) {
		return Hello{}, fmt.Errorf("control: hello body truncated")
	}
	h.DeviceName = string(body[off : off+nameLen])
	off += nameLen
	h.DeviceType = DeviceType(body[off])
	off++
	h.ProtocolVersion = binary.BigEndian.Uint16(body[off:])
	off += 2
	h.Capabilities = binary.BigEndian.Uint32(body[off:])
	return h, nil
}

// HostCapabilities is the host's response to Hello, per spec §6.
type HostCapabilities struct {
	MaxStreams      uint32
	SupportsHEVC    bool
	SupportsP3      bool
	MaxFrameRate    float64
	ProtocolVersion uint16
}

func (c HostCapabilities) Encode() []byte {
	buf := make([]byte, 4+1+1+8+2)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], c.MaxStreams)
	off += 4
	buf[off] = boolByte(c.SupportsHEVC)
	off++
	buf[off] = boolByte(c.SupportsP3)
	off++
	binary.BigEndian.PutUint64(buf[off:], math.Float64bits(c.MaxFrameRate))
	off += 8
	binary.BigEndian.PutUint16(buf[off:], c.ProtocolVersion)
	return buf
}

func DecodeHostCapabilities(body []byte) (HostCapabilities, error) {
	if len(body) < 4+1+1+8+2 {
		return HostCapabilities{}, fmt.Errorf("control: host_capabilities body too short")
	}
	var c HostCapabilities
	off := 0
	c.MaxStreams = binary.BigEndian.Uint32(body[off:])
	off += 4
	c.SupportsHEVC = body[off] != 0
	off++
	c.SupportsP3 = body[off] != 0
	off++
	c.MaxFrameRate = math.Float64frombits(binary.BigEndian.Uint64(body[off:]))
	off += 8
	c.ProtocolVersion = binary.BigEndian.Uint16(body[off:])
	return c, nil
}

// KeyframeRequest asks the host to force a keyframe on stream_id.
type KeyframeRequest struct {
	StreamID uint32
}

func (k KeyframeRequest) Encode() []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, k.StreamID)
	return buf
}

func DecodeKeyframeRequest(body []byte) (KeyframeRequest, error) {
	if len(body) != 4 {
		return KeyframeRequest{}, fmt.Errorf("control: keyframe_request body must be 4 bytes")
	}
	return KeyframeRequest{StreamID: binary.BigEndian.Uint32(body)}, nil
}

// CursorUpdate reports a cursor image/visibility change for a stream.
type CursorUpdate struct {
	StreamID   uint32
	CursorType uint16
	IsVisible  bool
	Sequence   uint64
}

func (c CursorUpdate) Encode() []byte {
	buf := make([]byte, 4+2+1+8)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], c.StreamID)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], c.CursorType)
	off += 2
	buf[off] = boolByte(c.IsVisible)
	off++
	binary.BigEndian.PutUint64(buf[off:], c.Sequence)
	return buf
}

func DecodeCursorUpdate(body []byte) (CursorUpdate, error) {
	if len(body) != 4+2+1+8 {
		return CursorUpdate{}, fmt.Errorf("control: cursor_update body wrong size")
	}
	var c CursorUpdate
	off := 0
	c.StreamID = binary.BigEndian.Uint32(body[off:])
	off += 4
	c.CursorType = binary.BigEndian.Uint16(body[off:])
	off += 2
	c.IsVisible = body[off] != 0
	off++
	c.Sequence = binary.BigEndian.Uint64(body[off:])
	return c, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
