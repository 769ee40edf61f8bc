// Package fragment splits an encoded frame into MTU-sized wire datagrams
// and reassembles them back into complete frames on the receive side,
// tolerating reordering and pruning stalled frames by a frame-number
// distance window rather than by wall clock (spec §4.2, §9).
package fragment

import (
	"github.com/nullbound/hevcstream/internal/wire"
)

// StreamState tracks the per-stream counters a fragmenter must advance
// monotonically: sequence_number increases per datagram sent, frame_number
// increases per encoded frame (and wraps).
type StreamState struct {
	StreamID       uint32
	sequenceNumber uint32
	frameNumber    uint32
}

// nextSequence returns the next sequence_number and advances the counter.
func (s *StreamState) nextSequence() uint32 {
	v := s.sequenceNumber
	s.sequenceNumber++
	return v
}

// NextFrameNumber returns the next frame_number (wrapping mod 2^32) and
// advances the counter.
func (s *StreamState) NextFrameNumber() uint32 {
	v := s.frameNumber
	s.frameNumber++
	return v
}

// Fragmenter splits encoded frames into datagram-sized fragments.
type Fragmenter struct {
	MTU int // full datagram size budget, including the 40-byte header
}

// NewFragmenter returns a Fragmenter with the given MTU. MTU must be
// greater than wire.HeaderSize.
func NewFragmenter(mtu int) *Fragmenter {
	return &Fragmenter{MTU: mtu}
}

// payloadBudget is the number of payload bytes that fit in one datagram.
func (f *Fragmenter) payloadBudget() int {
	return f.MTU - wire.HeaderSize
}

// Split fragments an encoded frame. keyframe/parameterSet mark the frame
// and its first fragment per spec §4.2: KEYFRAME is stamped on every
// fragment of a keyframe; PARAMETER_SET is set only on the fragment(s)
// whose payload carries the parameter-set block (in practice the first
// fragment of a keyframe); END_OF_FRAME is set only on the last fragment.
func (f *Fragmenter) Split(state *StreamState, frame []byte, keyframe, parameterSetInFirstFragment bool, timestampNanos uint64) []wire.Datagram {
	budget := f.payloadBudget()
	if budget <= 0 {
		panic("fragment: MTU too small for header")
	}

	count := (len(frame) + budget - 1) / budget
	if count == 0 {
		count = 1 // an empty frame still produces one empty fragment
	}
	if count > 0xffff {
		panic("fragment: frame requires more fragments than fit in fragment_count")
	}

	frameNumber := state.NextFrameNumber()
	out := make([]wire.Datagram, 0, count)

	for i := 0; i < count; i++ {
		start := i * budget
		end := start + budget
		if end > len(frame) {
			end = len(frame)
		}
		payload := frame[start:end]

		flags := wire.Flags(0)
		if keyframe {
			flags |= wire.FlagKeyframe
		}
		if i == count-1 {
			flags |= wire.FlagEndOfFrame
		}
		if i == 0 && parameterSetInFirstFragment {
			flags |= wire.FlagParameterSet
		}

		h := wire.NewHeader()
		h.Flags = flags
		h.StreamID = state.StreamID
		h.SequenceNumber = state.nextSequence()
		h.Timestamp = timestampNanos
		h.FrameNumber = frameNumber
		h.FragmentIndex = uint16(i)
		h.FragmentCount = uint16(count)
		h.PayloadLength = uint32(len(payload))
		h.Checksum = wire.CRC32(payload)

		out = append(out, wire.Datagram{Header: h, Payload: payload})
	}

	return out
}
