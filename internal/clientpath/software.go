package clientpath

import (
	"github.com/nullbound/hevcstream/internal/encoder"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// SoftwareDecoder is the deterministic no-hardware Decoder: it treats
// each submitted access unit's bytes as an already-decoded pixel
// buffer rather than running a real HEVC decode. It exists so Ingress,
// Cache, and RenderTrigger can be exercised on any platform and under
// test without a hardware decoder present, the same role
// softwareBackend plays on the encode side.
type SoftwareDecoder struct {
	width, height int
}

// NewSoftwareDecoder returns a SoftwareDecoder.
func NewSoftwareDecoder() *SoftwareDecoder {
	return &SoftwareDecoder{}
}

func (d *SoftwareDecoder) Configure(width, height int, _ pixfmt.Format, _ encoder.Profile) error {
	d.width, d.height = width, height
	return nil
}

func (d *SoftwareDecoder) Decode(payload []byte, _ bool) (DecodedFrame, error) {
	return DecodedFrame{Width: d.width, Height: d.height, PixelBuffer: payload}, nil
}

func (d *SoftwareDecoder) Close() error { return nil }
