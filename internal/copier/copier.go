package copier

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cybergarage/go-logger/log"

	"github.com/nullbound/hevcstream/internal/errs"
)

// Result is the outcome of ScheduleCopy, per spec §4.3.
type Result int

const (
	Scheduled Result = iota
	InFlightLimit
	PoolExhausted
	Unsupported
)

func (r Result) String() string {
	switch r {
	case Scheduled:
		return "scheduled"
	case InFlightLimit:
		return "in_flight_limit"
	case PoolExhausted:
		return "pool_exhausted"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// OnComplete is invoked once the copy finishes: buf is non-nil on
// success; on failure err is an errs.ResourceExhaustion error (pool
// exhausted) or an errs.Unsupported error (unsupported pixel format). The caller must treat a failure as a dropped frame and must
// not retry the same source buffer (spec §4.3).
type OnComplete func(buf *Buffer, err error)

// Copier exchanges OS-owned pixel buffers for pool-owned ones.
type Copier struct {
	mu           sync.Mutex
	pool         *Pool
	blitter      GPUBlitter
	inFlight     int
	inFlightCap  int
	diagnostics  atomic.Bool
	Telemetry    Telemetry
	lastLogNanos atomic.Int64
}

// NewCopier returns a Copier with no pool yet; the pool is created (or
// recreated) lazily by ScheduleCopy whenever the requested shape changes.
func NewCopier(blitter GPUBlitter) *Copier {
	return &Copier{blitter: blitter}
}

// SetDiagnostics enables or disables rate-limited diagnostic logging,
// gated by the capture-diagnostic flag per spec §4.3.
func (c *Copier) SetDiagnostics(enabled bool) { c.diagnostics.Store(enabled) }

func (c *Copier) ensurePool(key PoolKey) *Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil || c.pool.Key() != key {
		c.pool = NewPool(key)
	}
	return c.pool
}

func (c *Copier) reserveSlot(limit int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight >= limit {
		return false
	}
	c.inFlight++
	return true
}

func (c *Copier) releaseSlot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
}

// ScheduleCopy exchanges src for a pool-owned Buffer, preferring a GPU
// blit and falling back to a per-row CPU copy, per spec §4.3.
func (c *Copier) ScheduleCopy(src Source, minPoolCount, inFlightLimit int, onComplete OnComplete) Result {
	c.Telemetry.Attempts.Add(1)

	key := PoolKey{Width: src.Width(), Height: src.Height(), Format: src.Format(), MinCount: minPoolCount}
	pool := c.ensurePool(key)

	if !c.reserveSlot(inFlightLimit) {
		c.Telemetry.InFlightDrop.Add(1)
		c.logRateLimited("copy dropped: in-flight limit reached")
		return InFlightLimit
	}

	buf, ok := pool.Get()
	if !ok {
		c.releaseSlot()
		c.Telemetry.PoolFailures.Add(1)
		c.Telemetry.Failures.Add(1)
		c.logRateLimited("copy dropped: pool exhausted")
		onComplete(nil, errs.ResourceExhaustion("copier: pool exhausted"))
		return PoolExhausted
	}

	go c.runCopy(src, buf, onComplete)
	return Scheduled
}

func (c *Copier) runCopy(src Source, dst *Buffer, onComplete OnComplete) {
	start := time.Now()
	defer c.releaseSlot()

	if c.tryGPUBlit(src, dst) {
		c.Telemetry.GPUCopies.Add(1)
		c.Telemetry.Successes.Add(1)
		c.Telemetry.recordDuration(time.Since(start))
		onComplete(dst, nil)
		return
	}

	if !c.cpuCopySupported(src.Format()) {
		c.Telemetry.Failures.Add(1)
		dst.Release()
		c.logRateLimited("copy failed: unsupported pixel format")
		onComplete(nil, errs.Unsupported("copier: unsupported pixel format"))
		return
	}

	cpuCopy(src, dst)
	c.Telemetry.CPUCopies.Add(1)
	c.Telemetry.Successes.Add(1)
	c.Telemetry.recordDuration(time.Since(start))
	onComplete(dst, nil)
}

func (c *Copier) tryGPUBlit(src Source, dst *Buffer) bool {
	if c.blitter == nil {
		return false
	}
	handle, ok := src.GPUBlittable()
	if !ok {
		return false
	}
	if err := c.blitter.Blit(handle, dst); err != nil {
		c.logRateLimited("GPU blit failed, falling back to CPU copy: " + err.Error())
		return false
	}
	return true
}

func (c *Copier) cpuCopySupported(_ any) bool { return true } // CPU fallback supports every format in pixfmt

// cpuCopy performs a per-row copy with the source locked read-only and
// the destination already writable, using min(src_row_bytes,
// dst_row_bytes) per row, per spec §4.3.
func cpuCopy(src Source, dst *Buffer) {
	planes, rowBytes := src.LockRead()
	defer src.Unlock()

	for p := range planes {
		if p >= len(dst.Planes) {
			break
		}
		srcPlane, dstPlane := planes[p], dst.Planes[p]
		srcRB, dstRB := rowBytes[p], dst.RowBytes[p]
		rb := srcRB
		if dstRB < rb {
			rb = dstRB
		}
		rows := dst.Height
		if p == 1 { // chroma plane of a bi-planar format is half height
			rows = dst.Height / 2
		}
		for row := 0; row < rows; row++ {
			srcOff := row * srcRB
			dstOff := row * dstRB
			if srcOff+rb > len(srcPlane) || dstOff+rb > len(dstPlane) {
				break
			}
			copy(dstPlane[dstOff:dstOff+rb], srcPlane[srcOff:srcOff+rb])
		}
	}
}

func (c *Copier) logRateLimited(msg string) {
	if !c.diagnostics.Load() {
		return
	}
	now := time.Now().UnixNano()
	last := c.lastLogNanos.Load()
	if now-last < int64(2*time.Second) {
		return
	}
	if c.lastLogNanos.CompareAndSwap(last, now) {
		log.Debugf("copier: %s", msg)
	}
}
