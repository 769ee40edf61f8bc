package clientpath

import (
	"sync"
	"time"
)

const (
	resizeDebounce       = 200 * time.Millisecond
	resizeFallbackClear  = 2 * time.Second
	resizeMinPixelDelta  = 20
	resizeMinRelativePct = 0.02
)

// ResizeAnnouncement is sent to the host once debounced, describing
// the drawable's new shape, per spec §4.7.
type ResizeAnnouncement struct {
	AspectRatio   float64
	RelativeScale float64 // relative scale vs screen area
	PixelWidth    int
	PixelHeight   int
}

// ResizeAnnouncer delivers a debounced ResizeAnnouncement to the host,
// an external collaborator (the control channel).
type ResizeAnnouncer func(ResizeAnnouncement)

// ResizeState tracks the client's resize blur/hold state machine.
// Render updates continue throughout a resize; this only governs when
// to announce the new size to the host and when to clear the
// "resizing" flag a renderer might use to hold a blurred frame.
type ResizeState struct {
	announce ResizeAnnouncer

	mu                 sync.Mutex
	width, height      int
	screenArea         float64
	resizing           bool
	debounceTimer      *time.Timer
	fallbackTimer      *time.Timer
	pendingW, pendingH int
}

// NewResizeState returns a ResizeState that reports debounced changes
// via announce.
func NewResizeState(announce ResizeAnnouncer) *ResizeState {
	return &ResizeState{announce: announce}
}

// SetScreenArea records the current screen's pixel area, used to
// compute RelativeScale in announcements.
func (r *ResizeState) SetScreenArea(area float64) {
	r.mu.Lock()
	r.screenArea = area
	r.mu.Unlock()
}

// IsResizing reports whether the state machine currently considers
// the drawable to be mid-resize.
func (r *ResizeState) IsResizing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resizing
}

// OnDrawableSizeChanged is called whenever the drawable's pixel size
// changes. Micro-changes (at most 2% and at most 20px) are suppressed so that a
// transient dock/status-bar change does not churn the host.
func (r *ResizeState) OnDrawableSizeChanged(newWidth, newHeight int) {
	r.mu.Lock()
	significant := dimensionChangeSignificant(r.width, r.height, newWidth, newHeight)
	if !significant {
		r.mu.Unlock()
		return
	}

	r.width, r.height = newWidth, newHeight
	r.pendingW, r.pendingH = newWidth, newHeight
	r.resizing = true

	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	r.debounceTimer = time.AfterFunc(resizeDebounce, r.fireDebounced)

	if r.fallbackTimer != nil {
		r.fallbackTimer.Stop()
	}
	r.fallbackTimer = time.AfterFunc(resizeFallbackClear, r.clearResizing)
	r.mu.Unlock()
}

// AcknowledgeResize clears the resizing flag early when the host has
// confirmed the new size, rather than waiting for the fallback timer.
func (r *ResizeState) AcknowledgeResize() {
	r.clearResizing()
}

func (r *ResizeState) fireDebounced() {
	r.mu.Lock()
	w, h, area := r.pendingW, r.pendingH, r.screenArea
	r.mu.Unlock()

	if w <= 0 || h <= 0 {
		return
	}
	announcement := ResizeAnnouncement{
		AspectRatio: float64(w) / float64(h),
		PixelWidth:  w,
		PixelHeight: h,
	}
	if area > 0 {
		announcement.RelativeScale = float64(w*h) / area
	}
	if r.announce != nil {
		r.announce(announcement)
	}
}

func (r *ResizeState) clearResizing() {
	r.mu.Lock()
	r.resizing = false
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	if r.fallbackTimer != nil {
		r.fallbackTimer.Stop()
	}
	r.mu.Unlock()
}

// dimensionChangeSignificant reports whether a drawable resize from
// (oldW, oldH) to (newW, newH) clears the >2% or >20px threshold from
// spec §4.7. old==0 (first size) is always significant.
func dimensionChangeSignificant(oldW, oldH, newW, newH int) bool {
	if oldW == 0 || oldH == 0 {
		return newW > 0 && newH > 0
	}
	return dimDelta(oldW, newW) || dimDelta(oldH, newH)
}

func dimDelta(old, new_ int) bool {
	diff := old - new_
	if diff < 0 {
		diff = -diff
	}
	if diff > resizeMinPixelDelta {
		return true
	}
	relative := float64(diff) / float64(old)
	return relative > resizeMinRelativePct
}
