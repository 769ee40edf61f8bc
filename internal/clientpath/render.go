package clientpath

// RenderTrigger is the vsync-driven pull-render decision for one
// stream, per spec §4.7. It must never call back into any actor or
// async scope: Tick only reads the cache under Cache's short lock and
// returns a plain value, so it is safe to call directly from a vsync
// callback or run-loop observer without risking suspension while the
// OS holds a gesture-tracking run-loop mode.
type RenderTrigger struct {
	streamID        uint32
	cache           *Cache
	lastRenderedSeq uint64
}

// NewRenderTrigger returns a RenderTrigger for one stream backed by
// cache.
func NewRenderTrigger(streamID uint32, cache *Cache) *RenderTrigger {
	return &RenderTrigger{streamID: streamID, cache: cache}
}

// Tick looks up the stream's cache entry. If a newer frame has
// arrived since the last render, it reports needsRedraw=true along
// with that entry and advances the watermark; otherwise it reports
// false and the caller should skip the draw entirely.
func (t *RenderTrigger) Tick() (entry Entry, needsRedraw bool) {
	e, ok := t.cache.Get(t.streamID)
	if !ok {
		return Entry{}, false
	}
	if e.Sequence <= t.lastRenderedSeq {
		return Entry{}, false
	}
	t.lastRenderedSeq = e.Sequence
	return e, true
}

// LastRenderedSequence reports the sequence number of the most
// recently rendered frame, or 0 if none has rendered yet.
func (t *RenderTrigger) LastRenderedSequence() uint64 {
	return t.lastRenderedSeq
}
