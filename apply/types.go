package apply

import "strings"

// OpKind is the single-character kind of an OpLogEntry, matching the
// on-the-wire convention of the upstream fetcher.
type OpKind byte

const (
	OpInsert  OpKind = 'i'
	OpUpdate  OpKind = 'u'
	OpDelete  OpKind = 'd'
	OpCommand OpKind = 'c'
	OpNoop    OpKind = 'n'
)

func (k OpKind) String() string {
	return string(k)
}

// OpLogEntry is an opaque, immutable record of one write operation. Ts
// defines the total order; two entries are "comparable-ordered" iff they
// share NS or either is a command.
type OpLogEntry struct {
	Ts      OpTime
	Op      OpKind
	NS      string
	Payload []byte
}

// IsCommand reports whether the entry is a command op.
func (e OpLogEntry) IsCommand() bool {
	return e.Op == OpCommand
}

// IsSpecial reports whether NS is empty or names a special ("." prefixed)
// namespace, which the Apply Engine treats as a no-op carrier.
func (e OpLogEntry) IsSpecial() bool {
	return e.NS == "" || strings.HasPrefix(e.NS, ".")
}

// DBName returns the database portion of a "db.collection" namespace.
func (e OpLogEntry) DBName() string {
	if i := strings.IndexByte(e.NS, '.'); i >= 0 {
		return e.NS[:i]
	}
	return e.NS
}

// IsGlobalCommand reports whether the op targets the "$cmd" pseudo-collection,
// requiring a global write lock rather than a database write lock.
func (e OpLogEntry) IsGlobalCommand() bool {
	return strings.Contains(e.NS, ".$cmd")
}

// ComparableOrdered reports whether a and b participate in the same total
// order and so may not be reordered across writer partitions.
func ComparableOrdered(a, b OpLogEntry) bool {
	return a.NS == b.NS || a.IsCommand() || b.IsCommand()
}

// Batch is a contiguous, ordered run of OpLogEntry drained from the queue for
// one parallel apply cycle. A batch holds at most one command, and a command
// always starts or ends a batch alone.
type Batch []OpLogEntry

// Last returns the last entry in the batch; callers must ensure b is non-empty.
func (b Batch) Last() OpLogEntry {
	return b[len(b)-1]
}

// HasCommand reports whether the batch contains a command op.
func (b Batch) HasCommand() bool {
	for _, e := range b {
		if e.IsCommand() {
			return true
		}
	}
	return false
}

// Validate checks the batch invariants from the spec: size within limit and
// at most one command, which if present is alone in the batch.
func (b Batch) Validate(maxSize int) error {
	if len(b) > maxSize {
		return errorf("batch exceeds max size: %d > %d", len(b), maxSize)
	}
	cmds := 0
	for _, e := range b {
		if e.IsCommand() {
			cmds++
		}
	}
	if cmds > 1 {
		return errorf("batch contains %d commands, at most 1 allowed", cmds)
	}
	if cmds == 1 && len(b) > 1 {
		return errorf("command must be applied alone, batch has %d entries", len(b))
	}
	return nil
}

// MinValidRecord is the persisted singleton naming the last op a writer
// batch intends to apply. Crash recovery gates the Recovering->Secondary
// transition on the applied position reaching this Ts.
type MinValidRecord struct {
	Ts OpTime
}

// NodeState is the tagged variant driving the Sync Driver's state machine.
type NodeState int

const (
	Startup NodeState = iota
	Recovering
	Secondary
	Primary
	Arbiter
	Fatal
)

func (s NodeState) String() string {
	switch s {
	case Startup:
		return "STARTUP"
	case Recovering:
		return "RECOVERING"
	case Secondary:
		return "SECONDARY"
	case Primary:
		return "PRIMARY"
	case Arbiter:
		return "ARBITER"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// CursorState is the ghost tracker's explicit cursor lifecycle, a tagged
// variant in place of an implicit lazy boolean.
type CursorState int

const (
	CursorClosed CursorState = iota
	CursorOpen
	CursorErrored
)

// GhostSlave is a downstream node whose applied optime this node tracks in
// order to forward acknowledgements to its own sync source.
type GhostSlave struct {
	MemberID    string
	LastApplied OpTime
	Cursor      CursorState
	Initialized bool
}

// ApplyMode selects duplicate-key tolerance and retry policy for the Apply
// Engine: one tagged parameter rather than separate code paths per mode.
type ApplyMode int

const (
	ModeTail ApplyMode = iota
	ModeInitialSync
)

func (m ApplyMode) String() string {
	if m == ModeInitialSync {
		return "initial-sync"
	}
	return "tail"
}
