package capture

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// SyntheticSource is the deterministic no-hardware Source: it delivers
// a moving gradient pattern on a timer instead of drawing from a real
// OS screen-capture API. It exists so Engine's restart, stall, and
// dimension-change handling can be exercised on any platform and
// under test without a display server present, the same role
// softwareBackend plays for the encoder side.
type SyntheticSource struct {
	mu       sync.Mutex
	cb       FrameCallback
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	frame atomic.Uint64

	width, height int
	format        pixfmt.Format
}

// NewSyntheticSource returns a SyntheticSource. It delivers frames only
// once Start is called.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{}
}

func (s *SyntheticSource) Start(cfg SessionConfig, cb FrameCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	width, height := 640, 480
	if cfg.Resolution != nil {
		width, height = cfg.Resolution.Width, cfg.Resolution.Height
	}
	fps := cfg.TargetFrameRate
	if fps <= 0 {
		fps = 30
	}

	s.cb = cb
	s.width, s.height = width, height
	s.format = cfg.PixelFormat
	s.stopChan = make(chan struct{})
	s.running = true

	s.wg.Add(1)
	go s.loop(fps)
	return nil
}

func (s *SyntheticSource) loop(fps float64) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case now := <-ticker.C:
			n := s.frame.Add(1)
			s.mu.Lock()
			cb := s.cb
			width, height, format := s.width, s.height, s.format
			s.mu.Unlock()
			if cb == nil {
				continue
			}
			cb(CapturedFrame{
				Buffer:          newGradientBuffer(width, height, format, n),
				HostCaptureTime: now,
				Status:          StatusComplete,
				Info:            FrameInfo{ContentRect: Rect{Width: width, Height: height}},
			})
		}
	}
}

func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *SyntheticSource) Reconfigure(cfg SessionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Resolution != nil {
		s.width, s.height = cfg.Resolution.Width, cfg.Resolution.Height
	}
	s.format = cfg.PixelFormat
	return nil
}

func (s *SyntheticSource) ResolveTargets(cfg SessionConfig) (Target, error) {
	return Target{DisplayID: cfg.DisplayID}, nil
}

// gradientBuffer is the FrameSource SyntheticSource hands to the
// engine: a BGRA8 plane whose values drift with the frame counter so
// downstream dirty-region and encoder keyframe logic has something to
// react to.
type gradientBuffer struct {
	width, height int
	format        pixfmt.Format
	plane         []byte
}

func newGradientBuffer(width, height int, format pixfmt.Format, tick uint64) *gradientBuffer {
	b := &gradientBuffer{width: width, height: height, format: format, plane: make([]byte, width*height*4)}
	shift := byte(tick)
	for y := 0; y < height; y++ {
		row := b.plane[y*width*4 : (y+1)*width*4]
		for x := 0; x < width; x++ {
			v := byte(x+y) + shift
			row[x*4+0] = v
			row[x*4+1] = v / 2
			row[x*4+2] = v / 3
			row[x*4+3] = 0xff
		}
	}
	return b
}

func (b *gradientBuffer) Width() int           { return b.width }
func (b *gradientBuffer) Height() int          { return b.height }
func (b *gradientBuffer) Format() pixfmt.Format { return b.format }
func (b *gradientBuffer) LockRead() ([][]byte, []int) {
	return [][]byte{b.plane}, []int{b.width * 4}
}
func (b *gradientBuffer) Unlock()                  {}
func (b *gradientBuffer) GPUBlittable() (any, bool) { return nil, false }
