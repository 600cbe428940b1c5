// Package lockmgr provides an in-process apply.LockManager: a global
// exclusive scope, one sync.RWMutex per database, and the process-wide
// exclusive "parallel batch writer mode" scope the batch barrier engages.
package lockmgr

import (
	"context"
	"sync"

	"github.com/chronodb/oplogd/apply"
)

// RWManager is a sync.RWMutex-per-database apply.LockManager. barrierGate
// implements the batch barrier's "blocks reader locks process-wide"
// requirement: DbRead always acquires it for read alongside
// its per-database lock, and ParallelBatchWriterMode holds it exclusively
// for its whole scope. Writes performed by the apply engine while the
// barrier is held never touch barrierGate themselves - they are the
// operations the barrier exists to allow through.
type RWManager struct {
	globalMu    sync.Mutex
	dbMu        sync.Mutex
	dbLocks     map[string]*sync.RWMutex
	barrierGate sync.RWMutex

	lockedMu sync.Mutex
	locked   int32
}

// New builds an empty RWManager.
func New() *RWManager {
	return &RWManager{dbLocks: make(map[string]*sync.RWMutex)}
}

func (m *RWManager) dbLock(db string) *sync.RWMutex {
	m.dbMu.Lock()
	defer m.dbMu.Unlock()
	l, ok := m.dbLocks[db]
	if !ok {
		l = &sync.RWMutex{}
		m.dbLocks[db] = l
	}
	return l
}

func (m *RWManager) markLocked(delta int32) {
	m.lockedMu.Lock()
	m.locked += delta
	m.lockedMu.Unlock()
}

// IsLocked implements apply.LockManager.
func (m *RWManager) IsLocked() bool {
	m.lockedMu.Lock()
	defer m.lockedMu.Unlock()
	return m.locked > 0
}

type releaser struct {
	once sync.Once
	fn   func()
}

func (r *releaser) Release() {
	r.once.Do(r.fn)
}

func newReleaser(fn func()) apply.Lock {
	return &releaser{fn: fn}
}

// GlobalWrite implements apply.LockManager: exclusive against other
// GlobalWrite holders only. It does not exclude DbWrite or DbRead holders on
// any database.
func (m *RWManager) GlobalWrite(ctx context.Context) apply.Lock {
	m.globalMu.Lock()
	m.markLocked(1)
	return newReleaser(func() {
		m.markLocked(-1)
		m.globalMu.Unlock()
	})
}

// DbWrite implements apply.LockManager: exclusive within db only.
func (m *RWManager) DbWrite(ctx context.Context, db string) apply.Lock {
	l := m.dbLock(db)
	l.Lock()
	m.markLocked(1)
	return newReleaser(func() {
		m.markLocked(-1)
		l.Unlock()
	})
}

// DbRead implements apply.LockManager: shared within ns's database, blocked
// process-wide while a batch barrier is engaged.
func (m *RWManager) DbRead(ctx context.Context, ns string) apply.Lock {
	db := ns
	if i := indexByte(ns, '.'); i >= 0 {
		db = ns[:i]
	}
	m.barrierGate.RLock()
	l := m.dbLock(db)
	l.RLock()
	return newReleaser(func() {
		l.RUnlock()
		m.barrierGate.RUnlock()
	})
}

// ParallelBatchWriterMode implements apply.LockManager: the batch barrier's
// process-wide scope that excludes every DbRead for its lifetime. The
// Barrier type in apply/barrier.go additionally guarantees only one caller
// ever holds it at a time.
func (m *RWManager) ParallelBatchWriterMode(ctx context.Context) apply.Lock {
	m.barrierGate.Lock()
	m.markLocked(1)
	return newReleaser(func() {
		m.markLocked(-1)
		m.barrierGate.Unlock()
	})
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
