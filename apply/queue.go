package apply

import "context"

// QueueAdapter is the thin, non-blocking peek/consume facade over the
// upstream fetcher. It adds no ordering of its own - the
// fetcher behind OplogSource is the sole source of truth for order.
type QueueAdapter struct {
	source OplogSource
}

// NewQueueAdapter wraps an OplogSource.
func NewQueueAdapter(source OplogSource) *QueueAdapter {
	return &QueueAdapter{source: source}
}

// Peek returns the head entry without removing it.
func (q *QueueAdapter) Peek() (OpLogEntry, bool) {
	return q.source.Peek()
}

// Consume removes the head entry. The caller must have Peek-ed it already.
func (q *QueueAdapter) Consume() {
	q.source.Consume()
}

// BlockingPeek suspends until an entry is available or ctx is canceled.
func (q *QueueAdapter) BlockingPeek(ctx context.Context) (OpLogEntry, bool) {
	return q.source.BlockingPeek(ctx)
}

// Empty reports whether the queue currently has no head entry.
func (q *QueueAdapter) Empty() bool {
	_, ok := q.source.Peek()
	return !ok
}
