package upstream

import (
	"context"
	"sync"

	"github.com/chronodb/oplogd/apply"
	"github.com/chronodb/oplogd/utils/log"
)

const defaultFeedChannelSize = 500

// Registry is the production apply.OplogSource: a bounded channel fed by an
// external fetcher goroutine (the fetcher's own network protocol and
// reconnect logic are out of scope for this engine), plus the sync-target
// bookkeeping the admin forceSyncFrom command reads and writes.
type Registry struct {
	mu          sync.Mutex
	feed        chan apply.OpLogEntry
	headValid   bool
	head        apply.OpLogEntry
	syncTarget  string
	forceTarget string
}

// NewRegistry builds a Registry with the default feed channel capacity.
func NewRegistry() *Registry {
	return &Registry{feed: make(chan apply.OpLogEntry, defaultFeedChannelSize)}
}

// Push is called by the fetcher goroutine to hand off one fetched entry.
// Blocks if the feed channel is full, applying natural backpressure.
func (r *Registry) Push(ctx context.Context, e apply.OpLogEntry) bool {
	select {
	case r.feed <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// Peek implements apply.OplogSource.
func (r *Registry) Peek() (apply.OpLogEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.headValid {
		return r.head, true
	}
	select {
	case e := <-r.feed:
		r.head = e
		r.headValid = true
		return e, true
	default:
		return apply.OpLogEntry{}, false
	}
}

// Consume implements apply.OplogSource.
func (r *Registry) Consume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headValid = false
}

// BlockingPeek implements apply.OplogSource.
func (r *Registry) BlockingPeek(ctx context.Context) (apply.OpLogEntry, bool) {
	r.mu.Lock()
	if r.headValid {
		e := r.head
		r.mu.Unlock()
		return e, true
	}
	r.mu.Unlock()

	select {
	case e := <-r.feed:
		r.mu.Lock()
		r.head = e
		r.headValid = true
		r.mu.Unlock()
		return e, true
	case <-ctx.Done():
		return apply.OpLogEntry{}, false
	}
}

// Notify implements apply.OplogSource; in production this would forward the
// acknowledgement upstream. It is a log-only no-op here since that wire
// protocol is out of scope.
func (r *Registry) Notify(ts apply.OpTime) {
	log.Debug("upstream: acknowledging applied optime %v", ts)
}

// SyncTarget implements apply.OplogSource.
func (r *Registry) SyncTarget() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceTarget != "" {
		return r.forceTarget, true
	}
	return r.syncTarget, r.syncTarget != ""
}

// SetForceSyncTarget implements apply.OplogSource: pins the next connection
// cycle's sync source. The fetcher goroutine must consult SyncTarget itself
// (out of scope here).
func (r *Registry) SetForceSyncTarget(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forceTarget = host
	log.Info("upstream: forced sync target set to %s", host)
}

// SetConnected records which member the (out-of-scope) fetcher is currently
// attached to, clearing any prior forced pin once it has taken effect.
func (r *Registry) SetConnected(member string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncTarget = member
	if r.forceTarget == member {
		r.forceTarget = ""
	}
}
