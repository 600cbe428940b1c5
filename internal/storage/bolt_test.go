package storage

import (
	"path/filepath"
	"testing"

	"github.com/chronodb/oplogd/apply"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oplogd.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_SingletonRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	if _, found, err := s.GetSingleton("minvalid"); err != nil || found {
		t.Fatalf("GetSingleton before Put: found=%v err=%v", found, err)
	}

	if err := s.PutSingleton("minvalid", []byte("doc-v1")); err != nil {
		t.Fatalf("PutSingleton: %v", err)
	}
	v, found, err := s.GetSingleton("minvalid")
	if err != nil || !found {
		t.Fatalf("GetSingleton after Put: found=%v err=%v", found, err)
	}
	if string(v) != "doc-v1" {
		t.Fatalf("GetSingleton = %q, want %q", v, "doc-v1")
	}

	if err := s.PutSingleton("minvalid", []byte("doc-v2")); err != nil {
		t.Fatalf("PutSingleton overwrite: %v", err)
	}
	v, _, _ = s.GetSingleton("minvalid")
	if string(v) != "doc-v2" {
		t.Fatalf("GetSingleton after overwrite = %q, want %q", v, "doc-v2")
	}
}

func TestBoltStore_LogOpAndIterateInOpTimeOrder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	entries := []apply.OpLogEntry{
		{Ts: apply.OpTime{Seconds: 3}, Op: apply.OpInsert, NS: "db.a", Payload: []byte("c")},
		{Ts: apply.OpTime{Seconds: 1}, Op: apply.OpInsert, NS: "db.a", Payload: []byte("a")},
		{Ts: apply.OpTime{Seconds: 2}, Op: apply.OpInsert, NS: "db.a", Payload: []byte("b")},
	}
	for _, e := range entries {
		if err := s.LogOp(e); err != nil {
			t.Fatalf("LogOp(%v): %v", e.Ts, err)
		}
	}

	var seen []int64
	err := s.Iterate(apply.NullOpTime, func(e apply.OpLogEntry) error {
		seen = append(seen, e.Ts.Seconds)
		return nil
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	want := []int64{1, 2, 3}
	if len(seen) != len(want) {
		t.Fatalf("saw %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("saw %v, want %v", seen, want)
		}
	}
}

func TestBoltStore_LastOp(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	last, err := s.LastOp()
	if err != nil {
		t.Fatalf("LastOp on empty store: %v", err)
	}
	if !last.IsNull() {
		t.Fatalf("LastOp on empty store = %v, want null", last)
	}

	for _, sec := range []int64{1, 5, 3} {
		if err := s.LogOp(apply.OpLogEntry{Ts: apply.OpTime{Seconds: sec}, Op: apply.OpInsert, NS: "db.a"}); err != nil {
			t.Fatalf("LogOp: %v", err)
		}
	}
	last, err = s.LastOp()
	if err != nil {
		t.Fatalf("LastOp: %v", err)
	}
	if last.Seconds != 5 {
		t.Fatalf("LastOp = %v, want seconds=5 (the max, not the last inserted)", last)
	}
}

func TestBoltStore_DiskUsageIsPositive(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.PutSingleton("minvalid", []byte("doc")); err != nil {
		t.Fatalf("PutSingleton: %v", err)
	}
	size, err := s.DiskUsage()
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if size <= 0 {
		t.Fatalf("DiskUsage = %d, want > 0", size)
	}
}
