package apply

import (
	"context"
	"sync"
	"time"

	"github.com/chronodb/oplogd/utils/log"
)

// Engine is the Apply Engine: it applies one operation under
// an appropriate lock, with a primary-demotion check and a durability flush.
type Engine struct {
	// fsyncMu stands in for the fsync-exclusion mutex: it prevents a pending
	// writer lock from blocking a reader lock during an active fsync.
	fsyncMu sync.Mutex

	lockMgr LockManager
	leaf    LeafApplier
	persist Persistence
	state   NodeStateProvider
}

// NewEngine builds an Engine from its consumed collaborators.
func NewEngine(lockMgr LockManager, leaf LeafApplier, persist Persistence, state NodeStateProvider) *Engine {
	return &Engine{lockMgr: lockMgr, leaf: leaf, persist: persist, state: state}
}

// Apply executes one operation under the namespace lock, in six steps, and
// returns the Result the driver should act on.
func (e *Engine) Apply(ctx context.Context, op OpLogEntry, mode ApplyMode) Result {
	e.fsyncMu.Lock()
	defer e.fsyncMu.Unlock()

	// Step 2: special/empty namespace is a no-op carrier.
	if op.IsSpecial() {
		if op.Op != OpNoop {
			log.Info("apply: treating op on special namespace %q as no-op (op=%s)", op.NS, op.Op)
		}
		return ResultOK
	}

	// Step 3: acquire the appropriate lock.
	var lock Lock
	if op.IsGlobalCommand() {
		lock = e.lockMgr.GlobalWrite(ctx)
	} else {
		lock = e.lockMgr.DbWrite(ctx, op.DBName())
	}
	defer lock.Release()

	// Step 4: re-check state now that the lock is held.
	if e.state.CurrentState() == Primary {
		return TransientResult(ErrBecamePrimary)
	}

	// Step 5: invoke the leaf apply primitive, with the initial-sync
	// missing-parent retry.
	err := e.leaf.ApplyInLock(ctx, op)
	if err != nil && mode == ModeInitialSync && IsDuplicateKey(err) {
		err = nil
	}
	if err != nil && mode == ModeInitialSync && e.leaf.ShouldRetry(op, err) {
		if ferr := e.leaf.FetchMissing(ctx, op); ferr == nil {
			err = e.leaf.ApplyInLock(ctx, op)
		}
	}
	if err != nil {
		// Duplicate-key during tail or a second missing-parent failure
		// during initial sync: both fatal, correctness cannot be maintained
		// past an unexpected leaf failure.
		return FatalResult(err)
	}

	// Step 6: flush journal.
	if cerr := e.persist.CommitIfNeeded(); cerr != nil {
		return FatalResult(cerr)
	}
	return ResultOK
}

// SlaveDelay blocks until now >= last.Ts.Seconds + delay, sleeping in
// segments no longer than maxSlaveDelaySleepSegment so a configuration
// change takes effect within one segment.
// nowFn is injected so tests can control wall-clock time.
func SlaveDelay(ctx context.Context, last OpLogEntry, currentDelay func() time.Duration, nowFn func() time.Time) error {
	for {
		delay := currentDelay()
		if delay <= 0 {
			return nil
		}
		lagSeconds := nowFn().Unix() - last.Ts.Seconds
		if lagSeconds > maxSaneLagSeconds {
			return ErrClockSkew
		}
		target := last.Ts.Seconds + int64(delay/time.Second)
		remaining := time.Duration(target-nowFn().Unix()) * time.Second
		if remaining <= 0 {
			return nil
		}
		sleep := remaining
		if sleep > maxSlaveDelaySleepSegment {
			sleep = maxSlaveDelaySleepSegment
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
