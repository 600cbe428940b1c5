package apply

import (
	"context"
	"sync"

	"github.com/chronodb/oplogd/utils/log"
)

// ghostCapacityWarnThreshold is when Associate starts logging a capacity
// warning.
const ghostCapacityWarnThreshold = 10000

// Tracker is the Ghost Tracker: it tracks optimes of
// downstream nodes that chain their replication through this node, under a
// reader-writer lock keyed by the downstream's persistent replica id.
type Tracker struct {
	mu      sync.RWMutex
	ghosts  map[string]*GhostSlave
	cursors map[string]GhostCursor

	selfMemberID string
	opener       CursorOpener
}

// NewTracker builds an empty Tracker. selfMemberID is this node's own
// persistent member id, used by Percolate's cycle check.
func NewTracker(selfMemberID string, opener CursorOpener) *Tracker {
	return &Tracker{
		ghosts:       make(map[string]*GhostSlave),
		cursors:      make(map[string]GhostCursor),
		selfMemberID: selfMemberID,
		opener:       opener,
	}
}

// Associate idempotently registers a downstream handshake.
func (t *Tracker) Associate(rid, memberID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if g, ok := t.ghosts[rid]; ok {
		g.MemberID = memberID
		g.Initialized = true
		return
	}
	t.ghosts[rid] = &GhostSlave{MemberID: memberID, Initialized: true}
	if len(t.ghosts) > ghostCapacityWarnThreshold {
		log.Warn("ghost tracker: %d registered replicas exceeds soft capacity %d", len(t.ghosts), ghostCapacityWarnThreshold)
	}
}

// Update advances rid's stored last-applied optime; stale (non-advancing)
// updates are discarded, giving monotonicity.
func (t *Tracker) Update(rid string, ts OpTime) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.ghosts[rid]
	if !ok {
		return
	}
	if g.LastApplied.Less(ts) {
		g.LastApplied = ts
	}
}

// Get returns a copy of rid's current GhostSlave record.
func (t *Tracker) Get(rid string) (GhostSlave, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.ghosts[rid]
	if !ok {
		return GhostSlave{}, false
	}
	return *g, true
}

// Len reports the number of registered ghosts.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ghosts)
}

// Percolate opens a cursor to this node's sync source if none exists yet for
// rid, and advances it past targetTs so the upstream learns of the
// downstream's progress. syncSourceMember is the member id of this node's
// current sync source; Percolate refuses to run if that would form a
// forwarding cycle - the sync source is this node itself, or is the ghost's
// own member.
//
// Any network error resets only rid's cursor; the next call reopens it.
func (t *Tracker) Percolate(ctx context.Context, rid, syncSourceMember string, targetTs OpTime) error {
	t.mu.Lock()
	g, ok := t.ghosts[rid]
	if !ok {
		t.mu.Unlock()
		return errorf("ghost: unknown replica id %q", rid)
	}
	if syncSourceMember == t.selfMemberID || syncSourceMember == g.MemberID {
		t.mu.Unlock()
		return errorf("ghost: refusing to percolate for %q, sync source %q would form a cycle", rid, syncSourceMember)
	}
	cur, haveCursor := t.cursors[rid]
	t.mu.Unlock()

	if !haveCursor {
		var err error
		cur, err = t.opener.OpenCursor(ctx)
		if err != nil {
			t.markErrored(rid)
			return err
		}
		t.mu.Lock()
		t.cursors[rid] = cur
		g.Cursor = CursorOpen
		t.mu.Unlock()
	}

	if err := cur.AdvancePast(ctx, targetTs); err != nil {
		t.markErrored(rid)
		return err
	}
	return nil
}

func (t *Tracker) markErrored(rid string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, rid)
	if g, ok := t.ghosts[rid]; ok {
		g.Cursor = CursorErrored
	}
}
