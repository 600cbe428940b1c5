package apply

import "github.com/spaolacci/murmur3"

// Partition assigns each entry of a batch to one of N writer sequences by a
// stable 32-bit content hash of its namespace. Commands are
// never partitioned: the caller is expected to have already split a batch
// into its at-most-one command and the remaining entries before calling
// Partition on the remainder.
//
// Partition is a pure function of the namespace bytes and N: equal
// namespaces land in the same partition, in original order, satisfying the
// "partition determinism" and "order within partition" invariants.
func Partition(entries []OpLogEntry, n int) [][]OpLogEntry {
	out := make([][]OpLogEntry, n)
	for _, e := range entries {
		idx := PartitionIndex(e.NS, n)
		out[idx] = append(out[idx], e)
	}
	return out
}

// PartitionIndex computes murmur3_x86_32(ns, seed=0) mod n.
func PartitionIndex(ns string, n int) int {
	if n <= 1 {
		return 0
	}
	h := murmur3.Sum32WithSeed([]byte(ns), 0)
	return int(h % uint32(n))
}
