package apply

import "context"

// OplogSource is the consumed contract of the upstream fetcher. Its network
// protocol, cursor management and connection pooling are out of scope for
// this engine; only this interface is modeled here.
type OplogSource interface {
	// Peek returns the head entry without removing it, or ok=false if the
	// queue is currently empty. Non-blocking.
	Peek() (entry OpLogEntry, ok bool)
	// Consume removes the head entry. The caller must have Peek-ed it first.
	Consume()
	// BlockingPeek suspends until an entry is available or ctx is canceled.
	BlockingPeek(ctx context.Context) (entry OpLogEntry, ok bool)
	// Notify informs the source that ts has been durably applied, so it can
	// advance its own acknowledgement bookkeeping (e.g. for chained replicas).
	Notify(ts OpTime)
	// SyncTarget returns the member this node currently tails, if known.
	SyncTarget() (member string, ok bool)
	// SetForceSyncTarget pins the next sync-source selection to host; the
	// fetcher must honor this on its next connection cycle.
	SetForceSyncTarget(host string)
}

// LeafApplier is the consumed leaf mutation primitive: it
// owns the storage engine, journaling and lock manager internals that
// actually mutate a document.
type LeafApplier interface {
	// ApplyInLock applies op to local storage. The caller holds the
	// appropriate lock already.
	ApplyInLock(ctx context.Context, op OpLogEntry) error
	// ShouldRetry reports whether a failed update should be retried once
	// after fetching op's missing parent document (initial-sync only).
	ShouldRetry(op OpLogEntry, err error) bool
	// FetchMissing fetches op's missing parent from the sync source.
	FetchMissing(ctx context.Context, op OpLogEntry) error
}

// Lock is a scoped acquisition; Release must be idempotent-safe to call via
// defer on every exit path, including panics.
type Lock interface {
	Release()
}

// LockManager is the consumed contract of the lock manager.
type LockManager interface {
	GlobalWrite(ctx context.Context) Lock
	DbWrite(ctx context.Context, db string) Lock
	DbRead(ctx context.Context, ns string) Lock
	// ParallelBatchWriterMode is the batch barrier: a process-wide scoped
	// exclusion that blocks reader locks for its lifetime.
	ParallelBatchWriterMode(ctx context.Context) Lock
	// IsLocked reports whether any exclusive scope is currently held.
	IsLocked() bool
}

// Persistence is the consumed contract over the reserved local collections:
// the minValid singleton and the local oplog.
type Persistence interface {
	PutSingleton(ns string, doc []byte) error
	GetSingleton(ns string) (doc []byte, found bool, err error)
	// LogOp appends op to the local oplog, including noops.
	LogOp(op OpLogEntry) error
	// CommitIfNeeded flushes the journal if a flush is due.
	CommitIfNeeded() error
}

// GhostCursor is an open oplog read cursor against this node's sync source,
// used by the Ghost Tracker to forward a downstream's acknowledged position
// upstream for chained replication. Its wire protocol is out
// of scope; only this contract is modeled here.
type GhostCursor interface {
	// AdvancePast moves the cursor beyond ts so the sync source learns the
	// downstream has applied at least ts.
	AdvancePast(ctx context.Context, ts OpTime) error
	Close() error
}

// CursorOpener opens a GhostCursor to this node's current sync source.
type CursorOpener interface {
	OpenCursor(ctx context.Context) (GhostCursor, error)
}

// DataCloner performs the whole-collection copy that precedes the first
// oplog application pass. It is entirely out of scope; the
// Sync Driver only calls it as one step of initial sync.
type DataCloner interface {
	Clone(ctx context.Context) error
}

const minValidNS = ".oplogd.minvalid"
