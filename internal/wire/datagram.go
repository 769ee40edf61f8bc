package wire

import "sync/atomic"

// Datagram is a deserialized header paired with its payload slice.
type Datagram struct {
	Header  Header
	Payload []byte
}

// Encode concatenates the serialized header and payload into one buffer
// ready to hand to a UDP socket.
func Encode(h Header, payload []byte) []byte {
	h.PayloadLength = uint32(len(payload))
	h.Checksum = CRC32(payload)
	hdr := Serialize(h)
	buf := make([]byte, HeaderSize+len(payload))
	copy(buf, hdr[:])
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decoder parses inbound datagrams and counts drops, per spec §4.1:
// "Failure ⇒ drop the fragment, increment a drop counter; do not signal
// an error upstream."
type Decoder struct {
	dropped atomic.Uint64
}

// Decode parses buf into a Datagram. On any failure (malformed header,
// short payload, checksum mismatch) it increments the drop counter and
// returns ok=false; it never returns an error to the caller.
func (d *Decoder) Decode(buf []byte) (dg Datagram, ok bool) {
	h, err := Deserialize(buf)
	if err != nil {
		d.dropped.Add(1)
		return Datagram{}, false
	}
	rest := buf[HeaderSize:]
	if uint32(len(rest)) < h.PayloadLength {
		d.dropped.Add(1)
		return Datagram{}, false
	}
	payload := rest[:h.PayloadLength]
	if !VerifyChecksum(h, payload) {
		d.dropped.Add(1)
		return Datagram{}, false
	}
	return Datagram{Header: h, Payload: payload}, true
}

// Dropped returns the running count of discarded datagrams.
func (d *Decoder) Dropped() uint64 { return d.dropped.Load() }
