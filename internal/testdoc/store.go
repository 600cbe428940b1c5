// Package testdoc provides a trivial in-memory document store implementing
// apply.LeafApplier, standing in for the real storage engine's per-document
// mutation primitive (out of scope for this engine) in apply/ tests.
package testdoc

import (
	"context"
	"sync"

	"github.com/chronodb/oplogd/apply"
)

// Store is a namespace -> id -> payload map. "id" is taken to be the whole
// Payload for insert/delete and is opaque otherwise; this is deliberately
// the simplest possible LeafApplier, just enough to exercise ordering and
// duplicate-key/missing-parent behavior in tests.
type Store struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte

	missing    map[string]bool
	applyOrder []apply.OpLogEntry
}

// NewStore builds an empty Store.
func NewStore() *Store {
	return &Store{
		docs:    make(map[string]map[string][]byte),
		missing: make(map[string]bool),
	}
}

func key(op apply.OpLogEntry) string {
	return string(op.Payload)
}

// ApplyInLock implements apply.LeafApplier.
func (s *Store) ApplyInLock(ctx context.Context, op apply.OpLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyOrder = append(s.applyOrder, op)

	coll, ok := s.docs[op.NS]
	if !ok {
		coll = make(map[string][]byte)
		s.docs[op.NS] = coll
	}
	k := key(op)

	switch op.Op {
	case apply.OpInsert:
		if _, exists := coll[k]; exists {
			return &apply.DuplicateKeyError{Code: apply.ErrCodeDuplicateKey}
		}
		coll[k] = op.Payload
	case apply.OpUpdate:
		if s.missing[op.NS+"/"+k] {
			delete(s.missing, op.NS+"/"+k)
			return errMissingParent{op}
		}
		coll[k] = op.Payload
	case apply.OpDelete:
		delete(coll, k)
	case apply.OpCommand, apply.OpNoop:
		// no document-level effect
	}
	return nil
}

// MarkMissing causes the next ApplyInLock for (ns, payload-key) to fail as
// if the parent document were absent, exercising the initial-sync
// missing-parent retry path; test helper.
func (s *Store) MarkMissing(ns string, payloadKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing[ns+"/"+string(payloadKey)] = true
}

// ShouldRetry implements apply.LeafApplier: retry exactly the missing-parent
// sentinel this fake produces.
func (s *Store) ShouldRetry(op apply.OpLogEntry, err error) bool {
	_, ok := err.(errMissingParent)
	return ok
}

// FetchMissing implements apply.LeafApplier: a no-op success, the retried
// ApplyInLock call will find the document present since MarkMissing already
// cleared its flag.
func (s *Store) FetchMissing(ctx context.Context, op apply.OpLogEntry) error {
	return nil
}

// Get returns the current payload stored at (ns, payloadKey); test helper.
func (s *Store) Get(ns string, payloadKey []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.docs[ns]
	if !ok {
		return nil, false
	}
	v, ok := coll[string(payloadKey)]
	return v, ok
}

// ApplyOrder returns every op handed to ApplyInLock, in the order received;
// test helper for asserting per-namespace/global ordering invariants.
func (s *Store) ApplyOrder() []apply.OpLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]apply.OpLogEntry(nil), s.applyOrder...)
}

type errMissingParent struct {
	op apply.OpLogEntry
}

func (e errMissingParent) Error() string {
	return "testdoc: missing parent document for " + e.op.NS
}
