// Package copier exchanges an externally-owned pixel buffer (from the OS
// capture source) for a pipeline-owned one, preferring a GPU blit and
// falling back to a per-row CPU copy, per spec §4.3.
package copier

import (
	"sync"

	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// PoolKey identifies the buffer shape a pool is sized for; any change to
// any field forces the pool to be recreated, per spec §4.3.
type PoolKey struct {
	Width, Height int
	Format        pixfmt.Format
	MinCount      int
}

// Buffer is a pipeline-owned pixel buffer taken from the pool.
type Buffer struct {
	Width, Height int
	Format        pixfmt.Format
	// Planes holds one []byte per plane: single-plane formats (BGRA8,
	// BGR10A2) use Planes[0]; bi-planar formats (NV12, P010) use
	// Planes[0] for luma and Planes[1] for chroma.
	Planes    [][]byte
	RowBytes  []int
	key       PoolKey
	pool      *Pool
}

// Release returns the buffer to the pool it came from, if any.
func (b *Buffer) Release() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.put(b)
	b.pool = nil
}

// Pool is a bounded set of pipeline-owned buffers for one PoolKey.
type Pool struct {
	mu      sync.Mutex
	key     PoolKey
	free    []*Buffer
	created int
}

// NewPool creates a pool with key.MinCount buffers pre-allocated.
func NewPool(key PoolKey) *Pool {
	p := &Pool{key: key}
	for i := 0; i < key.MinCount; i++ {
		p.free = append(p.free, p.alloc())
	}
	return p
}

func (p *Pool) alloc() *Buffer {
	planes, rowBytes := allocPlanes(p.key.Width, p.key.Height, p.key.Format)
	p.created++
	return &Buffer{
		Width: p.key.Width, Height: p.key.Height, Format: p.key.Format,
		Planes: planes, RowBytes: rowBytes, key: p.key,
	}
}

// Get returns a free buffer, allocating beyond MinCount if the pool is
// empty. Returns nil, false if the pool cannot grow (PoolExhausted).
func (p *Pool) Get() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		if p.created >= p.key.MinCount*2 {
			return nil, false // cap growth at 2x the configured minimum
		}
		buf := p.alloc()
		buf.pool = p
		return buf, true
	}
	buf := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	buf.pool = p
	return buf, true
}

func (p *Pool) put(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, b)
}

// Key returns the pool's sizing key.
func (p *Pool) Key() PoolKey { return p.key }

func allocPlanes(width, height int, format pixfmt.Format) (planes [][]byte, rowBytes []int) {
	switch format {
	case pixfmt.BGRA8:
		rb := width * 4
		return [][]byte{make([]byte, rb*height)}, []int{rb}
	case pixfmt.BGR10A2:
		rb := width * 4
		return [][]byte{make([]byte, rb*height)}, []int{rb}
	case pixfmt.NV12:
		lumaRB := width
		chromaRB := width // interleaved 2-byte chroma samples, width/2 pairs
		chromaH := height / 2
		return [][]byte{
			make([]byte, lumaRB*height),
			make([]byte, chromaRB*chromaH),
		}, []int{lumaRB, chromaRB}
	case pixfmt.P010:
		lumaRB := width * 2
		chromaRB := width * 2
		chromaH := height / 2
		return [][]byte{
			make([]byte, lumaRB*height),
			make([]byte, chromaRB*chromaH),
		}, []int{lumaRB, chromaRB}
	default:
		panic("copier: unsupported pixel format")
	}
}
