package fragment

import (
	"sync"

	"github.com/nullbound/hevcstream/internal/wire"
)

// DefaultPruningWindow is the heuristic frame-number distance (spec §3,
// §9) beyond which an incomplete frame is evicted. Exposed as a config
// value per the open question in spec §9.
const DefaultPruningWindow = 60

type pendingFrame struct {
	expected  uint16
	fragments map[uint16][]byte
	received  int
}

// Reassembler collects fragments per frame_number and emits a frame once
// every fragment_index in [0, fragment_count) has arrived. It tolerates
// out-of-order delivery within PruningWindow frames and never blocks
// waiting for missing fragments.
type Reassembler struct {
	PruningWindow uint32

	mu           sync.Mutex
	pending      map[uint32]*pendingFrame
	maxSeenFrame uint32
	haveSeen     bool
	dropped      uint64
}

// NewReassembler returns a Reassembler using DefaultPruningWindow.
func NewReassembler() *Reassembler {
	return &Reassembler{
		PruningWindow: DefaultPruningWindow,
		pending:       make(map[uint32]*pendingFrame),
	}
}

// frameAhead reports whether a is ahead of b by more than window, using
// unsigned modular arithmetic so frame_number wrap (spec §4.2) is handled
// correctly: the distance is always taken as the forward distance from b
// to a modulo 2^32.
func frameAhead(a, b, window uint32) bool {
	return a-b > window && a-b < (1<<31)
}

// Insert feeds one received fragment into the reassembler. When it
// completes the frame it belongs to, Insert returns the concatenated
// payload (in fragment_index order) and ok=true; the pending entry is
// removed. Insert never blocks.
func (r *Reassembler) Insert(h wire.Header, payload []byte) (frame []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.haveSeen || frameAhead(h.FrameNumber, r.maxSeenFrame, 0) {
		r.maxSeenFrame = h.FrameNumber
		r.haveSeen = true
	}
	r.evictStale()

	pf, exists := r.pending[h.FrameNumber]
	if !exists {
		pf = &pendingFrame{
			expected:  h.FragmentCount,
			fragments: make(map[uint16][]byte, h.FragmentCount),
		}
		r.pending[h.FrameNumber] = pf
	}

	if _, dup := pf.fragments[h.FragmentIndex]; !dup {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		pf.fragments[h.FragmentIndex] = buf
		pf.received++
	}

	if pf.received < int(pf.expected) {
		return nil, false
	}

	out := make([]byte, 0)
	for i := uint16(0); i < pf.expected; i++ {
		frag, present := pf.fragments[i]
		if !present {
			// expected count reached but an index is missing: can't happen
			// under normal insertion since received only increments on new
			// indices, but guard defensively rather than emit a corrupt frame.
			return nil, false
		}
		out = append(out, frag...)
	}

	delete(r.pending, h.FrameNumber)
	return out, true
}

// evictStale drops any pending entry whose frame_number trails the
// highest seen frame_number by more than PruningWindow. Must be called
// with r.mu held.
func (r *Reassembler) evictStale() {
	window := r.PruningWindow
	if window == 0 {
		window = DefaultPruningWindow
	}
	for fn := range r.pending {
		if frameAhead(r.maxSeenFrame, fn, window) {
			delete(r.pending, fn)
			r.dropped++
		}
	}
}

// Pending returns the number of frames currently awaiting completion.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// EvictedFrames returns the running count of frames dropped by pruning.
func (r *Reassembler) EvictedFrames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset clears all pending state, e.g. on stream restart.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[uint32]*pendingFrame)
	r.maxSeenFrame = 0
	r.haveSeen = false
}
