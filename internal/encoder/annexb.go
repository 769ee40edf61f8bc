package encoder

import "encoding/binary"

// StartCode is the Annex-B NAL unit delimiter.
var StartCode = []byte{0x00, 0x00, 0x00, 0x01}

// WrapNAL prepends an Annex-B start code to a raw NAL unit payload.
func WrapNAL(nal []byte) []byte {
	out := make([]byte, len(StartCode)+len(nal))
	copy(out, StartCode)
	copy(out[len(StartCode):], nal)
	return out
}

// BuildKeyframePayload assembles the on-wire keyframe body described in
// spec §3: a 4-byte big-endian length of the Annex-B-framed parameter-set
// block, the block itself, then the raw coded slice.
func BuildKeyframePayload(parameterSets, slice []byte) []byte {
	out := make([]byte, 4+len(parameterSets)+len(slice))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(parameterSets)))
	copy(out[4:], parameterSets)
	copy(out[4+len(parameterSets):], slice)
	return out
}

// SplitKeyframePayload reverses BuildKeyframePayload, used by the client
// path to separate parameter sets from slice data before handing the
// slice to the platform decoder.
func SplitKeyframePayload(payload []byte) (parameterSets, slice []byte, ok bool) {
	if len(payload) < 4 {
		return nil, nil, false
	}
	n := binary.BigEndian.Uint32(payload[0:4])
	if int(n) > len(payload)-4 {
		return nil, nil, false
	}
	return payload[4 : 4+n], payload[4+n:], true
}
