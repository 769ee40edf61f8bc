// Package wire implements the 40-byte fixed frame header used on the
// unreliable video datagram path: serialization, CRC32 protection, and
// the flag bits that mark keyframes, end-of-frame fragments and inline
// parameter sets.
package wire

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/rotisserie/eris"
)

// HeaderSize is the fixed on-wire size of Header in bytes.
const HeaderSize = 40

// Magic identifies a video datagram belonging to this protocol.
const Magic uint16 = 0x4d52 // "MR"

// Version is the current wire protocol version.
const Version uint8 = 1

// MaxPayloadLen bounds payload_length to a sane fragment size relative to
// a conservative datagram MTU; deserialize rejects anything larger so a
// corrupted length field can never trigger an oversized allocation.
const MaxPayloadLen = 1 << 16

// Flags is a bitmask carried in the header.
type Flags uint8

const (
	FlagKeyframe     Flags = 1 << 0
	FlagEndOfFrame   Flags = 1 << 1
	FlagParameterSet Flags = 1 << 2
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is the 40-byte frame header described in spec §3.
type Header struct {
	Magic          uint16
	Version        uint8
	Flags          Flags
	StreamID       uint32
	SequenceNumber uint32
	Timestamp      uint64 // nanoseconds
	FrameNumber    uint32
	FragmentIndex  uint16
	FragmentCount  uint16
	PayloadLength  uint32
	Checksum       uint32
	Reserved       uint32
}

// ErrMalformed is returned by Deserialize for any structurally invalid
// buffer. Per spec §4.1 the caller must drop the datagram, not propagate
// the error upstream.
var ErrMalformed = eris.New("wire: malformed header")

// NewHeader builds a header with Magic/Version pre-filled and Reserved
// zeroed, matching the "reserved-zero on send" rule in spec §9.
func NewHeader() Header {
	return Header{Magic: Magic, Version: Version}
}

// Serialize writes h as 40 big-endian bytes.
func Serialize(h Header) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Magic)
	buf[2] = h.Version
	buf[3] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[4:8], h.StreamID)
	binary.BigEndian.PutUint32(buf[8:12], h.SequenceNumber)
	binary.BigEndian.PutUint64(buf[12:20], h.Timestamp)
	binary.BigEndian.PutUint32(buf[20:24], h.FrameNumber)
	binary.BigEndian.PutUint16(buf[24:26], h.FragmentIndex)
	binary.BigEndian.PutUint16(buf[26:28], h.FragmentCount)
	binary.BigEndian.PutUint32(buf[28:32], h.PayloadLength)
	binary.BigEndian.PutUint32(buf[32:36], h.Checksum)
	binary.BigEndian.PutUint32(buf[36:40], h.Reserved)
	return buf
}

// Deserialize parses a header from the front of buf. It fails with
// ErrMalformed when buf is short, the magic or version don't match, or
// payload_length exceeds MaxPayloadLen.
func Deserialize(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, eris.Wrapf(ErrMalformed, "short buffer: %d bytes", len(buf))
	}
	h := Header{
		Magic:          binary.BigEndian.Uint16(buf[0:2]),
		Version:        buf[2],
		Flags:          Flags(buf[3]),
		StreamID:       binary.BigEndian.Uint32(buf[4:8]),
		SequenceNumber: binary.BigEndian.Uint32(buf[8:12]),
		Timestamp:      binary.BigEndian.Uint64(buf[12:20]),
		FrameNumber:    binary.BigEndian.Uint32(buf[20:24]),
		FragmentIndex:  binary.BigEndian.Uint16(buf[24:26]),
		FragmentCount:  binary.BigEndian.Uint16(buf[26:28]),
		PayloadLength:  binary.BigEndian.Uint32(buf[28:32]),
		Checksum:       binary.BigEndian.Uint32(buf[32:36]),
		Reserved:       binary.BigEndian.Uint32(buf[36:40]),
	}
	if h.Magic != Magic {
		return Header{}, eris.Wrapf(ErrMalformed, "bad magic: %#04x", h.Magic)
	}
	if h.Version != Version {
		return Header{}, eris.Wrapf(ErrMalformed, "unknown version: %d", h.Version)
	}
	if h.PayloadLength > MaxPayloadLen {
		return Header{}, eris.Wrapf(ErrMalformed, "payload_length too large: %d", h.PayloadLength)
	}
	if h.FragmentIndex >= h.FragmentCount {
		return Header{}, eris.Wrapf(ErrMalformed, "fragment_index %d >= fragment_count %d", h.FragmentIndex, h.FragmentCount)
	}
	return h, nil
}

// CRC32 computes the IEEE-polynomial CRC32 of payload, the exact
// convention spec §4.1 and the open question in §9 call for: standard
// reflected IEEE 802.3 (seed 0xffffffff, final XOR 0xffffffff) as
// implemented by hash/crc32.ChecksumIEEE.
func CRC32(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// VerifyChecksum reports whether h.Checksum matches the CRC32 of payload.
func VerifyChecksum(h Header, payload []byte) bool {
	return h.Checksum == CRC32(payload)
}
