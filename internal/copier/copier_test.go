package copier

import (
	"sync"
	"testing"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

type fakeSource struct {
	w, h   int
	format pixfmt.Format
	planes [][]byte
	rb     []int
	gpu    bool
}

func newFakeBGRA8(w, h int) *fakeSource {
	rb := w * 4
	return &fakeSource{
		w: w, h: h, format: pixfmt.BGRA8,
		planes: [][]byte{make([]byte, rb*h)},
		rb:     []int{rb},
	}
}

func (f *fakeSource) Width() int             { return f.w }
func (f *fakeSource) Height() int            { return f.h }
func (f *fakeSource) Format() pixfmt.Format  { return f.format }
func (f *fakeSource) LockRead() ([][]byte, []int) { return f.planes, f.rb }
func (f *fakeSource) Unlock()                {}
func (f *fakeSource) GPUBlittable() (any, bool) {
	if f.gpu {
		return "handle", true
	}
	return nil, false
}

func TestScheduleCopyCPUFallback(t *testing.T) {
	src := newFakeBGRA8(4, 4)
	for i := range src.planes[0] {
		src.planes[0][i] = byte(i)
	}

	c := NewCopier(nil)
	var wg sync.WaitGroup
	wg.Add(1)

	var gotBuf *Buffer
	res := c.ScheduleCopy(src, 2, 4, func(buf *Buffer, err error) {
		defer wg.Done()
		gotBuf = buf
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if res != Scheduled {
		t.Fatalf("ScheduleCopy result = %v, want Scheduled", res)
	}
	wg.Wait()

	if gotBuf == nil {
		t.Fatalf("expected a buffer")
	}
	if string(gotBuf.Planes[0]) != string(src.planes[0]) {
		t.Fatalf("CPU copy did not reproduce source bytes")
	}
	if c.Telemetry.CPUCopies.Load() != 1 {
		t.Fatalf("CPUCopies = %d, want 1", c.Telemetry.CPUCopies.Load())
	}
}

func TestScheduleCopyInFlightLimit(t *testing.T) {
	c := NewCopier(nil)
	var wg sync.WaitGroup

	// Saturate the single in-flight slot with a copy that blocks until
	// we've observed the rejection, using a channel-gated source.
	gate := make(chan struct{})
	blocking := &blockingSource{fakeSource: newFakeBGRA8(2, 2), gate: gate}

	wg.Add(1)
	res := c.ScheduleCopy(blocking, 1, 1, func(buf *Buffer, err error) { wg.Done() })
	if res != Scheduled {
		t.Fatalf("first ScheduleCopy = %v, want Scheduled", res)
	}

	res2 := c.ScheduleCopy(newFakeBGRA8(2, 2), 1, 1, func(buf *Buffer, err error) {})
	if res2 != InFlightLimit {
		t.Fatalf("second ScheduleCopy = %v, want InFlightLimit", res2)
	}

	close(gate)
	wg.Wait()

	if c.Telemetry.InFlightDrop.Load() != 1 {
		t.Fatalf("InFlightDrop = %d, want 1", c.Telemetry.InFlightDrop.Load())
	}
}

type blockingSource struct {
	*fakeSource
	gate chan struct{}
}

func (b *blockingSource) LockRead() ([][]byte, []int) {
	<-b.gate
	return b.fakeSource.LockRead()
}

func TestScheduleCopyPoolExhausted(t *testing.T) {
	c := NewCopier(nil)
	c.pool = NewPool(PoolKey{Width: 2, Height: 2, Format: pixfmt.BGRA8, MinCount: 1})
	// Drain the pool and hold the only buffer so the next request cannot grow.
	c.pool.created = c.pool.key.MinCount * 2
	c.pool.free = nil

	var wg sync.WaitGroup
	wg.Add(1)
	res := c.ScheduleCopy(newFakeBGRA8(2, 2), 1, 4, func(buf *Buffer, err error) {
		defer wg.Done()
		if buf != nil {
			t.Errorf("expected nil buffer on pool exhaustion")
		}
		if err == nil {
			t.Errorf("expected an error on pool exhaustion")
		}
	})
	wg.Wait()
	if res != PoolExhausted {
		t.Fatalf("result = %v, want PoolExhausted", res)
	}
}
