package apply

import "testing"

// partition(ns) is a pure function of ns bytes and N.
func TestPartitionIndex_Deterministic(t *testing.T) {
	t.Parallel()
	for _, ns := range []string{"db.a", "db.b", "other.coll", ""} {
		want := PartitionIndex(ns, 4)
		for i := 0; i < 10; i++ {
			if got := PartitionIndex(ns, 4); got != want {
				t.Fatalf("PartitionIndex(%q, 4) = %d on call %d, want %d", ns, got, i, want)
			}
		}
	}
}

func TestPartitionIndex_SingleWorkerAlwaysZero(t *testing.T) {
	t.Parallel()
	if idx := PartitionIndex("anything", 1); idx != 0 {
		t.Fatalf("PartitionIndex with n=1 = %d, want 0", idx)
	}
	if idx := PartitionIndex("anything", 0); idx != 0 {
		t.Fatalf("PartitionIndex with n=0 = %d, want 0", idx)
	}
}

// Entries for the same namespace land in the same partition, in original
// relative order, while independent namespaces may land in different
// partitions.
func TestPartition_GroupsByNamespacePreservingOrder(t *testing.T) {
	t.Parallel()
	const n = 4
	var entries []OpLogEntry
	for i := 0; i < 256; i++ {
		ns := "db.a"
		if i%2 == 1 {
			ns = "db.b"
		}
		entries = append(entries, OpLogEntry{
			Ts: OpTime{Seconds: int64(i)},
			Op: OpInsert,
			NS: ns,
		})
	}

	out := Partition(entries, n)

	nonEmpty := 0
	for _, part := range out {
		if len(part) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty != 2 {
		t.Fatalf("expected exactly 2 non-empty partitions for 2 namespaces, got %d", nonEmpty)
	}

	wantA := PartitionIndex("db.a", n)
	wantB := PartitionIndex("db.b", n)
	var gotA, gotB []OpLogEntry
	for i, part := range out {
		for _, e := range part {
			if e.NS == "db.a" {
				if i != wantA {
					t.Fatalf("db.a entry landed in partition %d, want %d", i, wantA)
				}
				gotA = append(gotA, e)
			} else {
				if i != wantB {
					t.Fatalf("db.b entry landed in partition %d, want %d", i, wantB)
				}
				gotB = append(gotB, e)
			}
		}
	}

	for i := 1; i < len(gotA); i++ {
		if !gotA[i-1].Ts.Less(gotA[i].Ts) {
			t.Fatalf("db.a partition out of order at %d: %v then %v", i, gotA[i-1].Ts, gotA[i].Ts)
		}
	}
	for i := 1; i < len(gotB); i++ {
		if !gotB[i-1].Ts.Less(gotB[i].Ts) {
			t.Fatalf("db.b partition out of order at %d: %v then %v", i, gotB[i-1].Ts, gotB[i].Ts)
		}
	}
}
