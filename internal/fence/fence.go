package fence

import (
	"context"
	"sync"
	"sync/atomic"
)

// Fence is a monotonic timeline counter. A single writer advances it; any
// number of readers may test or wait for a timestamp.
type Fence struct {
	timeline atomic.Uint64

	mu      sync.Mutex
	changed chan struct{} // closed and replaced on every successful Advance
}

// New creates a Fence at timestamp 0.
func New() *Fence {
	return &Fence{changed: make(chan struct{})}
}

// Advance moves the timeline to ts if ts is ahead of it. Stale or duplicate
// advances are no-ops.
func (f *Fence) Advance(ts uint64) {
	for {
		cur := f.timeline.Load()
		if ts <= cur {
			return
		}
		if f.timeline.CompareAndSwap(cur, ts) {
			break
		}
	}

	f.mu.Lock()
	close(f.changed)
	f.changed = make(chan struct{})
	f.mu.Unlock()
}

// Reached reports whether the timeline is at or past ts.
func (f *Fence) Reached(ts uint64) bool {
	return f.timeline.Load() >= ts
}

// Current returns the timeline value.
func (f *Fence) Current() uint64 {
	return f.timeline.Load()
}

// Changed returns a channel that is closed by the next successful Advance.
// Grab it before checking Reached to avoid missing an advance.
func (f *Fence) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

// Wait blocks until ts is reached or ctx is done.
func (f *Fence) Wait(ctx context.Context, ts uint64) error {
	for {
		changed := f.Changed()
		if f.Reached(ts) {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
