// Package upstream provides apply.OplogSource implementations: a
// deterministic in-memory fake for tests and a channel-backed registry for
// production use, plus the sync-target bookkeeping the admin forceSyncFrom
// command reads and writes.
package upstream

import (
	"context"
	"sync"

	"github.com/chronodb/oplogd/apply"
)

// MemorySource is a deterministic, in-process apply.OplogSource: entries
// pushed with Append are served out in order. It is the fake every apply/
// test drives.
type MemorySource struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries []apply.OpLogEntry
	head    int
	closed  bool

	notified    []apply.OpTime
	syncTarget  string
	forceTarget string
}

// NewMemorySource builds an empty MemorySource.
func NewMemorySource() *MemorySource {
	s := &MemorySource{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Append adds entries to the tail of the source's stream and wakes any
// blocked peeker.
func (s *MemorySource) Append(entries ...apply.OpLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	s.cond.Broadcast()
}

// Close unblocks any pending BlockingPeek permanently.
func (s *MemorySource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Peek implements apply.OplogSource.
func (s *MemorySource) Peek() (apply.OpLogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.head >= len(s.entries) {
		return apply.OpLogEntry{}, false
	}
	return s.entries[s.head], true
}

// Consume implements apply.OplogSource.
func (s *MemorySource) Consume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.head < len(s.entries) {
		s.head++
	}
}

// BlockingPeek implements apply.OplogSource.
func (s *MemorySource) BlockingPeek(ctx context.Context) (apply.OpLogEntry, bool) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.head >= len(s.entries) && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}
	if ctx.Err() != nil || s.head >= len(s.entries) {
		return apply.OpLogEntry{}, false
	}
	return s.entries[s.head], true
}

// Notify implements apply.OplogSource; acknowledged optimes are recorded for
// test assertions.
func (s *MemorySource) Notify(ts apply.OpTime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified = append(s.notified, ts)
}

// Notified returns every OpTime passed to Notify, in order; test helper.
func (s *MemorySource) Notified() []apply.OpTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apply.OpTime(nil), s.notified...)
}

// SyncTarget implements apply.OplogSource.
func (s *MemorySource) SyncTarget() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceTarget != "" {
		return s.forceTarget, true
	}
	return s.syncTarget, s.syncTarget != ""
}

// SetForceSyncTarget implements apply.OplogSource.
func (s *MemorySource) SetForceSyncTarget(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceTarget = host
}

// SetSyncTarget sets the non-forced current sync target; test helper.
func (s *MemorySource) SetSyncTarget(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncTarget = host
}

// Remaining reports how many unconsumed entries are left; test helper.
func (s *MemorySource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) - s.head
}
