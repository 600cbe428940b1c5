package apply

import (
	"context"
	"sync"
)

// Barrier is the batch barrier ("parallel batch writer mode"): while engaged,
// reader locks on user data are blocked process-wide. Run serializes its
// callers with the Barrier's own mutex, so one Barrier is never engaged twice
// at once; a second Barrier built over the same LockManager does not share
// that mutex and relies on the LockManager's own exclusion.
type Barrier struct {
	mu  sync.Mutex
	mgr LockManager
}

// NewBarrier wraps mgr's ParallelBatchWriterMode acquisition so that Run
// calls on the returned Barrier are serialized.
func NewBarrier(mgr LockManager) *Barrier {
	return &Barrier{mgr: mgr}
}

// Run engages the barrier, invokes fn, and releases the barrier before
// returning - on every exit path, including a panic unwinding through fn.
func (b *Barrier) Run(ctx context.Context, fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock := b.mgr.ParallelBatchWriterMode(ctx)
	defer lock.Release()
	return fn()
}
