package storage

import (
	"sort"
	"sync"

	"github.com/chronodb/oplogd/apply"
)

// MemoryStore is an in-memory apply.Persistence fake used by apply/ tests,
// mirroring BoltStore's bucket-per-concern layout without touching disk.
type MemoryStore struct {
	mu         sync.Mutex
	singletons map[string][]byte
	oplog      map[apply.OpTime]apply.OpLogEntry
	commits    int
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		singletons: make(map[string][]byte),
		oplog:      make(map[apply.OpTime]apply.OpLogEntry),
	}
}

func (m *MemoryStore) PutSingleton(ns string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.singletons[ns] = append([]byte(nil), doc...)
	return nil
}

func (m *MemoryStore) GetSingleton(ns string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.singletons[ns]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) LogOp(op apply.OpLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oplog[op.Ts] = op
	return nil
}

func (m *MemoryStore) CommitIfNeeded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits++
	return nil
}

// Commits reports how many times CommitIfNeeded has been called; test helper.
func (m *MemoryStore) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Ops returns every logged entry in OpTime order; test helper.
func (m *MemoryStore) Ops() []apply.OpLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]apply.OpLogEntry, 0, len(m.oplog))
	for _, e := range m.oplog {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts.Less(out[j].Ts) })
	return out
}
