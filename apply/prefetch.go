package apply

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/chronodb/oplogd/utils/log"
)

// PrefetchFunc pages in the documents/indexes a single op will touch under a
// read lock. Errors are advisory and never fail the batch.
type PrefetchFunc func(ctx context.Context, op OpLogEntry) error

// Prefetcher is the reader pool that pages in documents touched by a queued
// batch before the write phase takes exclusive locks, converting random I/O
// into parallel non-blocking reads. Sized independently from the writer
// pool.
type Prefetcher struct {
	concurrency int
	fn          PrefetchFunc
}

// NewPrefetcher builds a Prefetcher with the given reader concurrency.
func NewPrefetcher(concurrency int, fn PrefetchFunc) *Prefetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Prefetcher{concurrency: concurrency, fn: fn}
}

// Run prefetches every op in the batch with a non-empty namespace and joins
// before returning. Individual errors are logged and swallowed: prefetch is
// advisory, never a precondition for applying.
//
// golang.org/x/sync/errgroup is used here purely for its goroutine-plus-join
// bookkeeping, not its error propagation: each prefetch error is handled
// inline and the group is never asked to report one, since a prefetch miss
// must never fail the batch.
func (p *Prefetcher) Run(ctx context.Context, batch Batch) {
	if p.fn == nil {
		return
	}
	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(p.concurrency)
	for _, e := range batch {
		if e.NS == "" {
			continue
		}
		e := e
		g.Go(func() error {
			if err := p.fn(gctx, e); err != nil {
				log.Debug("prefetch: advisory error for ns=%s: %v", e.NS, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	_ = ctx
}
