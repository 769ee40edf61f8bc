// Package clientpath implements the client-side frame path (spec §4.7):
// reassembly-gated decode, a process-wide frame cache, a vsync-driven
// pull-render trigger, refresh-rate override monitoring, resize
// blur/hold state, and 120Hz input resampling.
package clientpath

import (
	"github.com/nullbound/hevcstream/internal/encoder"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// DecodedFrame is one frame produced by a platform decoder.
type DecodedFrame struct {
	Width, Height int
	PixelBuffer   []byte
	Texture       interface{} // opaque GPU texture handle, decoder-owned
}

// Decoder is the platform HEVC decoder, an external collaborator this
// package drives but does not implement (no shipped HEVC codec here,
// matching the encoder side's pluggable-backend boundary).
type Decoder interface {
	Configure(width, height int, format pixfmt.Format, profile encoder.Profile) error
	Decode(payload []byte, keyframe bool) (DecodedFrame, error)
	Close() error
}

// Ingress is the decode-ingress actor for one stream: it gates decode
// on having seen a keyframe (or a fragment carrying a parameter set),
// reconfigures the decoder on dimension change, and writes results
// into a Cache. It is driven by one goroutine only (the reassembly
// thread), per spec §5's "mutated only on the decode ingress thread"
// rule, so no internal locking is needed beyond what Cache provides.
type Ingress struct {
	streamID   uint32
	decoder    Decoder
	cache      *Cache
	pixelFmt   pixfmt.Format
	profile    encoder.Profile
	width    int
	height   int
	haveKey  bool
	sequence uint64
}

// NewIngress returns an Ingress writing decoded frames for streamID
// into cache via decoder.
func NewIngress(streamID uint32, decoder Decoder, cache *Cache, format pixfmt.Format) *Ingress {
	return &Ingress{
		streamID: streamID,
		decoder:  decoder,
		cache:    cache,
		pixelFmt: format,
		profile:  encoder.ProfileFor(format.BitDepth10()),
	}
}

// SubmitFrame hands one reassembled frame (a whole encoded access unit)
// to the decoder. keyframe and parameterSet come from the leading
// fragment's header flags (spec §4.1, §4.7). Frames arriving before a
// keyframe has been observed are discarded, per spec §4.7.
func (in *Ingress) SubmitFrame(payload []byte, width, height int, keyframe, parameterSet bool) error {
	if keyframe || parameterSet {
		in.haveKey = true
	}
	if !in.haveKey {
		return nil
	}

	if width != in.width || height != in.height || in.width == 0 {
		if err := in.decoder.Configure(width, height, in.pixelFmt, in.profile); err != nil {
			return err
		}
		in.width, in.height = width, height
	}

	decoded, err := in.decoder.Decode(payload, keyframe)
	if err != nil {
		return err
	}

	in.sequence++
	in.cache.Put(in.streamID, Entry{
		PixelBuffer: decoded.PixelBuffer,
		ContentRect: Rect{Width: decoded.Width, Height: decoded.Height},
		Sequence:    in.sequence,
		Texture:     decoded.Texture,
	})
	return nil
}

// Reset clears keyframe-gating state, e.g. after a reassembler Reset
// on stream restart; the next frame must again be a keyframe.
func (in *Ingress) Reset() {
	in.haveKey = false
	in.width, in.height = 0, 0
}
