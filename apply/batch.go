package apply

import (
	"context"
	"time"
)

// NodeStateProvider reports the current NodeState for the Batch Assembler's
// periodic re-check and the Apply Engine's become-
// primary guard.
type NodeStateProvider interface {
	CurrentState() NodeState
}

// AssembleBatch drains ops from q into one Batch, checking each candidate in
// this order:
//
//  1. queue empty, batch empty -> blocking peek, continue
//  2. queue empty, batch non-empty -> return the batch
//  3. next is a command, batch non-empty -> return the batch (command unconsumed)
//  4. next is a command, batch empty -> append it, consume, return
//  5. otherwise append, consume; stop at cfg.BatchMax
//  6. roughly once per second, re-check state; if changed, return early
//
// It returns early (possibly with an empty batch) if ctx is canceled or the
// node's state changes mid-assembly.
func AssembleBatch(ctx context.Context, q *QueueAdapter, cfg Config, state NodeStateProvider) (Batch, error) {
	batch := make(Batch, 0, cfg.BatchMax)
	startState := state.CurrentState()
	lastCheck := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		if time.Since(lastCheck) >= stateCheckInterval {
			lastCheck = time.Now()
			if state.CurrentState() != startState {
				return batch, nil
			}
		}

		entry, ok := q.Peek()
		if !ok {
			if len(batch) != 0 {
				return batch, nil // rule 2
			}
			// rule 1: block, but bounded so rule 6 still fires regularly.
			bctx, cancel := context.WithTimeout(ctx, stateCheckInterval)
			e, gotOne := q.BlockingPeek(bctx)
			cancel()
			if ctx.Err() != nil {
				return batch, ctx.Err()
			}
			if !gotOne {
				continue
			}
			entry = e
		}

		if entry.IsCommand() {
			if len(batch) != 0 {
				return batch, nil // rule 3: command left unconsumed
			}
			q.Consume()
			batch = append(batch, entry) // rule 4
			return batch, nil
		}

		q.Consume()
		batch = append(batch, entry) // rule 5
		if len(batch) >= cfg.BatchMax {
			return batch, nil
		}
	}
}
