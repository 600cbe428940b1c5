// Package storage provides the Persistence implementations consumed by the
// apply engine: a bbolt-backed store for production use and an in-memory
// fake for tests, grounded on the bucket-per-concern layout used by
// sirgallo's bbolt-backed replicated log (other_examples/sirgallo-rdb,
// sirgallo-rdbv2).
package storage

import (
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/pkg/errors"

	"github.com/chronodb/oplogd/apply"
)

var (
	singletonsBucket = []byte("singletons")
	oplogBucket      = []byte("oplog")
)

// BoltStore is a bbolt-backed apply.Persistence: one bucket for reserved
// singleton documents (minValid), one append-only bucket for the local
// oplog keyed by big-endian OpTime bytes so iteration order matches apply
// order.
type BoltStore struct {
	db           *bolt.DB
	flushEvery   int
	unflushedOps int
}

// Open opens (creating if absent) a BoltStore at path.
func Open(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "storage: opening bbolt db at %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(singletonsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(oplogBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage: creating buckets")
	}
	return &BoltStore{db: db, flushEvery: 1}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutSingleton implements apply.Persistence.
func (s *BoltStore) PutSingleton(ns string, doc []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(singletonsBucket).Put([]byte(ns), doc)
	})
}

// GetSingleton implements apply.Persistence.
func (s *BoltStore) GetSingleton(ns string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(singletonsBucket).Get([]byte(ns))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// LogOp implements apply.Persistence: every accepted entry, including noops,
// is appended to the oplog bucket keyed by its OpTime.
func (s *BoltStore) LogOp(op apply.OpLogEntry) error {
	err := s.db.Batch(func(tx *bolt.Tx) error {
		b := tx.Bucket(oplogBucket)
		return b.Put(op.Ts.Bytes(), encodeEntry(op))
	})
	if err != nil {
		return err
	}
	s.unflushedOps++
	return nil
}

// CommitIfNeeded implements apply.Persistence. bbolt's Update/Batch calls are
// already fsync'd per transaction, so this only resets the dirty counter
// used for metrics.
func (s *BoltStore) CommitIfNeeded() error {
	s.unflushedOps = 0
	return nil
}

// Iterate walks the local oplog in OpTime order from start onward, grounded
// on sirgallo-rdb's forward bucket cursor pattern (other_examples).
func (s *BoltStore) Iterate(start apply.OpTime, fn func(apply.OpLogEntry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(oplogBucket).Cursor()
		for k, v := c.Seek(start.Bytes()); k != nil; k, v = c.Next() {
			entry, err := decodeEntry(v)
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastOp returns the most recently logged oplog entry's OpTime, or
// apply.NullOpTime if the local oplog is empty (a brand-new node).
func (s *BoltStore) LastOp() (apply.OpTime, error) {
	var last apply.OpTime
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(oplogBucket).Cursor()
		k, v := c.Last()
		if k == nil {
			return nil
		}
		entry, err := decodeEntry(v)
		if err != nil {
			return err
		}
		last = entry.Ts
		return nil
	})
	return last, err
}

// DiskUsage reports the on-disk size of the database file in bytes.
func (s *BoltStore) DiskUsage() (int64, error) {
	var size int64
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}
