package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{
			name: "keyframe end-of-frame",
			h: Header{
				Magic: Magic, Version: Version,
				Flags:          FlagKeyframe | FlagEndOfFrame,
				StreamID:       1,
				SequenceNumber: 100,
				Timestamp:      123_456_789,
				FrameNumber:    50,
				FragmentIndex:  0,
				FragmentCount:  1,
				PayloadLength:  1024,
				Checksum:       0xDEADBEEF,
			},
		},
		{
			name: "mid-frame fragment",
			h: Header{
				Magic: Magic, Version: Version,
				Flags:          FlagParameterSet,
				StreamID:       7,
				SequenceNumber: 4_294_967_295,
				Timestamp:      0,
				FrameNumber:    4_294_967_295,
				FragmentIndex:  2,
				FragmentCount:  5,
				PayloadLength:  0,
				Checksum:       0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Serialize(tt.h)
			if len(buf) != HeaderSize {
				t.Fatalf("serialize length = %d, want %d", len(buf), HeaderSize)
			}
			got, err := Deserialize(buf[:])
			if err != nil {
				t.Fatalf("deserialize: %v", err)
			}
			if got != tt.h {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, tt.h)
			}
		})
	}
}

func TestHeaderSerializationByteLayout(t *testing.T) {
	h := Header{
		Magic: Magic, Version: Version,
		Flags:          FlagKeyframe | FlagEndOfFrame,
		StreamID:       1,
		SequenceNumber: 100,
		Timestamp:      123_456_789,
		FrameNumber:    50,
		FragmentIndex:  0,
		FragmentCount:  1,
		PayloadLength:  1024,
		Checksum:       0xDEADBEEF,
	}
	buf := Serialize(h)
	want := []byte{0x00, 0x00, 0x00, 0x64}
	if got := buf[8:12]; !bytes.Equal(got, want) {
		t.Fatalf("bytes 8..12 = % x, want % x", got, want)
	}
}

func TestDeserializeMalformed(t *testing.T) {
	good := Serialize(NewHeader())

	tests := []struct {
		name string
		buf  []byte
	}{
		{"too short", good[:HeaderSize-1]},
		{"bad magic", func() []byte { b := good; b[0] = 0xff; return b[:] }()},
		{"bad version", func() []byte { b := good; b[2] = 0xff; return b[:] }()},
		{"fragment index out of range", func() []byte {
			h := NewHeader()
			h.FragmentIndex, h.FragmentCount = 2, 2
			b := Serialize(h)
			return b[:]
		}()},
		{"payload too large", func() []byte {
			h := NewHeader()
			h.FragmentCount = 1
			h.PayloadLength = MaxPayloadLen + 1
			b := Serialize(h)
			return b[:]
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Deserialize(tt.buf); err == nil {
				t.Fatalf("expected malformed error")
			}
		})
	}
}

func TestCRC32Invariance(t *testing.T) {
	p1 := []byte("the quick brown fox")
	p2 := append([]byte{}, p1...)
	if CRC32(p1) != CRC32(p2) {
		t.Fatalf("identical payloads produced different checksums")
	}

	p3 := append([]byte{}, p1...)
	p3[0] ^= 0x01
	if CRC32(p1) == CRC32(p3) {
		t.Fatalf("single-bit change did not change checksum")
	}
}

func TestDecoderDropsOnChecksumMismatch(t *testing.T) {
	payload := []byte("hello fragment")
	h := NewHeader()
	h.FragmentCount = 1
	buf := Encode(h, payload)
	// flip a bit in the checksum field.
	buf[32] ^= 0x01

	var dec Decoder
	if _, ok := dec.Decode(buf); ok {
		t.Fatalf("expected decode failure on tampered checksum")
	}
	if dec.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", dec.Dropped())
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	payload := []byte("payload bytes")
	h := NewHeader()
	h.Flags = FlagKeyframe | FlagEndOfFrame
	h.FragmentCount = 1
	buf := Encode(h, payload)

	var dec Decoder
	dg, ok := dec.Decode(buf)
	if !ok {
		t.Fatalf("expected successful decode")
	}
	if !bytes.Equal(dg.Payload, payload) {
		t.Fatalf("payload mismatch: got %q want %q", dg.Payload, payload)
	}
	if dec.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", dec.Dropped())
	}
}
