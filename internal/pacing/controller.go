// Package pacing implements the frame pacing controller (spec §4.5):
// given a target frame rate, it decides which captured frames are allowed
// through to the encoder, resynchronizing after a capture stall instead
// of trying to catch up frame-by-frame.
package pacing

import (
	"sync"
	"time"
)

// Controller decides whether a captured frame proceeds to encode. It is
// safe for concurrent use; a mutex around the handful of scalars is
// sufficient per spec §4.5 since pacing decisions are cheap and never
// suspend.
type Controller struct {
	mu sync.Mutex

	targetFPS      float64
	targetInterval time.Duration
	nextEmitTime   time.Time
	lastEmitTime   time.Time

	accepted uint64
	dropped  uint64
}

// NewController returns a Controller targeting fps frames per second.
func NewController(fps float64) *Controller {
	c := &Controller{}
	c.UpdateTargetFPS(fps)
	return c
}

// UpdateTargetFPS resets all timing state, per spec §4.5.
func (c *Controller) UpdateTargetFPS(fps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fps <= 0 {
		fps = 1
	}
	c.targetFPS = fps
	c.targetInterval = time.Duration(float64(time.Second) / fps)
	c.nextEmitTime = time.Time{}
	c.lastEmitTime = time.Time{}
}

// ShouldCaptureFrame implements the decision table from spec §4.5.
func (c *Controller) ShouldCaptureFrame(t time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	interval := c.targetInterval

	switch {
	case c.nextEmitTime.IsZero():
		c.nextEmitTime = t.Add(interval)
		c.lastEmitTime = t
		c.accepted++
		return true

	case t.Before(c.nextEmitTime):
		c.dropped++
		return false

	case !c.lastEmitTime.IsZero() && t.Sub(c.lastEmitTime) > 4*interval:
		// Stall: resynchronize rather than try to catch up.
		c.nextEmitTime = t.Add(interval)
		c.lastEmitTime = t
		c.accepted++
		return true

	default:
		k := int64((t.Sub(c.nextEmitTime)) / interval) + 1
		if k < 1 {
			k = 1
		}
		c.nextEmitTime = c.nextEmitTime.Add(time.Duration(k) * interval)
		c.lastEmitTime = t
		c.accepted++
		return true
	}
}

// Stats returns the running accept/drop counters.
func (c *Controller) Stats() (accepted, dropped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accepted, c.dropped
}
