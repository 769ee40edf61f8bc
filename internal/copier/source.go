package copier

import "github.com/nullbound/hevcstream/internal/pixfmt"

// Source is an externally-owned pixel buffer borrowed for the duration
// of the capture callback (spec §4.3, §9). The copier must produce a
// pipeline-owned Buffer before returning control to the caller.
type Source interface {
	Width() int
	Height() int
	Format() pixfmt.Format

	// LockRead locks the source for read-only CPU access and returns one
	// []byte slice per plane plus the matching row byte counts. Unlock
	// must be called exactly once after the copy completes.
	LockRead() (planes [][]byte, rowBytes []int)
	Unlock()

	// GPUBlittable reports whether this source exposes a GPU texture
	// handle the copier can blit from directly, and an opaque handle the
	// GPU backend understands if so.
	GPUBlittable() (handle any, ok bool)
}

// GPUBlitter performs a GPU-to-GPU blit from a Source's texture handle
// into a pool Buffer. Implementations are platform-specific (Metal/D3D11/
// Vulkan); this package ships no concrete implementation, matching spec
// §1's framing of the capture backend as an external collaborator.
type GPUBlitter interface {
	// Blit copies srcHandle (as returned by Source.GPUBlittable) into dst.
	// It returns an error if the blit could not be set up or submitted;
	// the caller falls back to CPU copy on any error.
	Blit(srcHandle any, dst *Buffer) error
}
