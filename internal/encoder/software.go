package encoder

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// softwareBackend is the deterministic no-hardware Backend: it produces
// plausible Annex-B framed NAL units driven by a checksum of the input
// rather than real HEVC compression. It exists so Session's versioning,
// keyframe policy, and framing logic can be exercised on any platform
// and under test without a GPU or a real codec present.
type softwareBackend struct {
	mu            sync.Mutex
	width, height int
	pixelFormat   pixfmt.Format
	quality       QualitySettings
	bitrate       BitrateCap
	fps           float64
	maxFrameDelay int
}

func newSoftwareBackend(cfg Config) (Backend, error) {
	return &softwareBackend{
		width: cfg.Width, height: cfg.Height,
		pixelFormat: cfg.PixelFormat, fps: cfg.TargetFPS,
		maxFrameDelay: cfg.MaxFrameDelay,
	}, nil
}

func (s *softwareBackend) SetDimensions(w, h int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = w, h
	return nil
}

func (s *softwareBackend) SetPixelFormat(pf pixfmt.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pixelFormat = pf
	return nil
}

func (s *softwareBackend) SetQuality(q QualitySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = q
	return nil
}

func (s *softwareBackend) SetBitrate(cap BitrateCap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bitrate = cap
	return nil
}

func (s *softwareBackend) SetFrameRate(fps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = fps
	return nil
}

func (s *softwareBackend) SetMaxFrameDelay(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxFrameDelay = n
	return nil
}

const (
	naluIDRType   = 0x26
	naluTrailType = 0x02
)

func (s *softwareBackend) Encode(frame []byte, forceKeyframe bool) ([]byte, error) {
	s.mu.Lock()
	w, h := s.width, s.height
	s.mu.Unlock()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("software encoder: session not configured")
	}

	nalType := byte(naluTrailType)
	if forceKeyframe {
		nalType = naluIDRType
	}

	nal := make([]byte, 7)
	nal[0] = nalType
	binary.BigEndian.PutUint32(nal[1:5], crc32.ChecksumIEEE(frame))
	binary.BigEndian.PutUint16(nal[5:7], uint16(len(frame)%65536))
	return WrapNAL(nal), nil
}

func (s *softwareBackend) ParameterSets() []byte {
	s.mu.Lock()
	w, h := s.width, s.height
	s.mu.Unlock()

	vps := WrapNAL([]byte{0x40, byte(w >> 8), byte(w)})
	sps := WrapNAL([]byte{0x42, byte(h >> 8), byte(h)})
	pps := WrapNAL([]byte{0x44})

	out := make([]byte, 0, len(vps)+len(sps)+len(pps))
	out = append(out, vps...)
	out = append(out, sps...)
	out = append(out, pps...)
	return out
}

func (s *softwareBackend) Flush() error { return nil }
func (s *softwareBackend) Close() error { return nil }

func (s *softwareBackend) Name() string     { return "software" }
func (s *softwareBackend) IsHardware() bool { return false }
