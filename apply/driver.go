package apply

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/chronodb/oplogd/utils/log"
)

// driverConstructed enforces the "exactly one sync driver" singleton: a
// one-shot compare-and-swap gate on construction.
var driverConstructed atomic.Bool

const (
	localDB = "local"

	// progressEveryOps and progressEveryElapsed gate initial-sync progress
	// logging.
	progressEveryOps      = 1000
	progressEveryElapsed  = 10 * time.Second
	noSelfConfigSleep     = 20 * time.Second
	primaryIdleSleep      = 1 * time.Second
	blockedIdleSleep      = 5 * time.Second
	recoverableErrorSleep = 10 * time.Second
	unknownErrorSleep     = 60 * time.Second
)

// Driver is the Sync Driver: the single top-level loop that
// chooses initial-sync vs tail, drives Recovering->Secondary, and traps
// errors into sleep/continue/abort decisions.
type Driver struct {
	cfgMu sync.Mutex
	cfg   Config

	state           atomic.Int32
	configured      atomic.Bool
	initialSyncDone atomic.Bool
	lastApplied     atomic.Value // OpTime

	queue    *QueueAdapter
	engine   *Engine
	persist  Persistence
	minValid *MinValidJournal
	lockMgr  LockManager
	pool     *Pool[OpLogEntry]
	prefetch *Prefetcher
	barrier  *Barrier
	source   OplogSource
	cloner   DataCloner
}

// NewDriver constructs the process's one Driver. A second call fails.
func NewDriver(cfg Config, queue *QueueAdapter, engine *Engine, persist Persistence, minValid *MinValidJournal,
	lockMgr LockManager, source OplogSource, cloner DataCloner, prefetchFn PrefetchFunc,
) (*Driver, error) {
	if !driverConstructed.CAS(false, true) {
		return nil, errorf("sync driver: a Driver has already been constructed in this process")
	}
	if cfg.WriterThreads < 1 {
		cfg.WriterThreads = 1
	}
	d := &Driver{
		cfg:      cfg,
		queue:    queue,
		engine:   engine,
		persist:  persist,
		minValid: minValid,
		lockMgr:  lockMgr,
		pool:     NewPool[OpLogEntry](cfg.WriterThreads),
		prefetch: NewPrefetcher(cfg.PrefetchThreads, prefetchFn),
		barrier:  NewBarrier(lockMgr),
		source:   source,
		cloner:   cloner,
	}
	d.state.Store(int32(Startup))
	d.lastApplied.Store(NullOpTime)
	return d, nil
}

// resetSingletonForTest releases the one-driver-per-process gate; test-only.
func resetSingletonForTest() {
	driverConstructed.Store(false)
}

// ResetSingletonForTest is the external-test-package accessor for
// resetSingletonForTest; test-only.
func ResetSingletonForTest() {
	resetSingletonForTest()
}

// SetStateForTest is the external-test-package accessor for setState;
// test-only.
func (d *Driver) SetStateForTest(s NodeState) {
	d.setState(s)
}

// RunTailIterationForTest is the external-test-package accessor for
// runTailIteration; test-only.
func (d *Driver) RunTailIterationForTest(ctx context.Context) Result {
	return d.runTailIteration(ctx)
}

// Configure marks the driver as having received its member/replica-set
// configuration, unblocking the "no self-config yet" branch of the top loop.
// lastApplied is whatever this node already has durably applied locally
// (null for a brand-new node that still needs a full clone and initial
// sync; non-null for a restart resuming from existing local data).
func (d *Driver) Configure(lastApplied OpTime) {
	d.lastApplied.Store(lastApplied)
	d.initialSyncDone.Store(!lastApplied.IsNull())
	d.configured.Store(true)
	d.setState(Recovering)
}

// CurrentState implements NodeStateProvider.
func (d *Driver) CurrentState() NodeState {
	return NodeState(d.state.Load())
}

func (d *Driver) setState(s NodeState) {
	d.state.Store(int32(s))
}

// LastApplied returns the most recently applied OpTime.
func (d *Driver) LastApplied() OpTime {
	return d.lastApplied.Load().(OpTime)
}

func (d *Driver) setLastApplied(ts OpTime) {
	d.lastApplied.Store(ts)
}

// MinValid returns the current minValid record, for the admin /status
// surface.
func (d *Driver) MinValid() (MinValidRecord, bool, error) {
	return d.minValid.Get()
}

// SyncTarget returns the member this node currently tails, if known.
func (d *Driver) SyncTarget() (string, bool) {
	return d.source.SyncTarget()
}

// UpdateConfig replaces the live tunables: writer_threads
// changes require a restart (the pool is fixed-size once built) but
// slave_delay_seconds, maintenance_mode, block_sync and batch_max take
// effect on the next loop iteration.
func (d *Driver) UpdateConfig(f func(*Config)) {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	f(&d.cfg)
}

func (d *Driver) currentConfig() Config {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	return d.cfg
}

func (d *Driver) currentSlaveDelay() time.Duration {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	return d.cfg.SlaveDelay
}

func (d *Driver) blocked() bool {
	cfg := d.currentConfig()
	return cfg.BlockSync || cfg.MaintenanceMode > 0
}

// Run is the node's top-level sync loop. It runs until ctx is canceled.
func (d *Driver) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !d.configured.Load() {
			sleepOrDone(ctx, noSelfConfigSleep)
			continue
		}
		switch d.CurrentState() {
		case Primary:
			sleepOrDone(ctx, primaryIdleSleep)
			continue
		case Fatal:
			sleepOrDone(ctx, blockedIdleSleep)
			continue
		case Startup:
			sleepOrDone(ctx, blockedIdleSleep)
			continue
		}
		if d.blocked() {
			sleepOrDone(ctx, blockedIdleSleep)
			continue
		}

		if !d.initialSyncDone.Load() {
			if err := d.runInitialSyncPhase(ctx); err != nil {
				log.Error("sync driver: initial sync failed: %v", err)
				sleepOrDone(ctx, recoverableErrorSleep)
				continue
			}
			d.initialSyncDone.Store(true)
			continue
		}

		if d.CurrentState() == Recovering {
			canGoLive, err := d.minValid.CanGoLive(d.LastApplied())
			if err != nil {
				log.Error("sync driver: minValid check failed: %v", err)
				sleepOrDone(ctx, recoverableErrorSleep)
				continue
			}
			if canGoLive && !d.blocked() {
				d.setState(Secondary)
			}
		}

		res := d.runTailIteration(ctx)
		switch res.Outcome {
		case Ok:
			// loop immediately
		case Transient:
			log.Warn("sync driver: recoverable error in tail iteration: %v", res.Reason)
			sleepOrDone(ctx, recoverableErrorSleep)
		case FatalOutcome:
			log.Error("sync driver: fatal apply error, stopping: %v", res.Reason)
			d.setState(Fatal)
			sleepOrDone(ctx, unknownErrorSleep)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// runTailIteration assembles and applies one batch: F drains the queue and
// I records minValid, B prefetches, C partitions into A's per-worker queues
// under D's barrier, A runs the apply function via G, then applied ops are
// appended to the local oplog and the source is notified.
func (d *Driver) runTailIteration(ctx context.Context) Result {
	cfg := d.currentConfig()
	batch, err := AssembleBatch(ctx, d.queue, cfg, d)
	if err != nil {
		return TransientResult(err)
	}
	if len(batch) == 0 {
		return ResultOK
	}

	if d.CurrentState() == Secondary && cfg.SlaveDelay > 0 {
		if err := SlaveDelay(ctx, batch.Last(), d.currentSlaveDelay, time.Now); err != nil {
			if err == ErrClockSkew {
				return FatalResult(err)
			}
			return TransientResult(err)
		}
	}

	if err := d.minValid.Record(batch.Last().Ts); err != nil {
		return FatalResult(err)
	}

	var applyResult Result
	if batch.HasCommand() {
		applyResult = d.engine.Apply(ctx, batch[0], ModeTail)
	} else {
		d.prefetch.Run(ctx, batch)
		applyResult = d.applyPartitioned(ctx, batch)
	}
	if applyResult.IsFatal() {
		return applyResult
	}
	if applyResult.Outcome == Transient {
		// became-primary mid-apply: stop here, let the driver observe
		// Primary and idle on the next loop.
		return ResultOK
	}

	lock := d.lockMgr.DbWrite(ctx, localDB)
	for _, e := range batch {
		if err := d.persist.LogOp(e); err != nil {
			lock.Release()
			return FatalResult(err)
		}
	}
	lock.Release()

	if err := d.persist.CommitIfNeeded(); err != nil {
		return FatalResult(err)
	}

	last := batch.Last().Ts
	d.source.Notify(last)
	d.setLastApplied(last)
	return ResultOK
}

// applyPartitioned runs the writer phase: partition the batch across
// N_WRITERS, engage the batch barrier, drive the thread pool, and report the
// most severe Result observed across workers.
func (d *Driver) applyPartitioned(ctx context.Context, batch Batch) Result {
	partitions := Partition(batch, d.pool.NumWorkers())
	var collector resultCollector

	_ = d.pool.SetTask(func(e OpLogEntry) {
		res := d.engine.Apply(ctx, e, ModeTail)
		collector.offer(res)
	})
	for idx, part := range partitions {
		for _, e := range part {
			_ = d.pool.Enqueue(idx, e)
		}
	}

	_ = d.barrier.Run(ctx, func() error {
		d.pool.Go()
		return nil
	})
	return collector.worst()
}

// resultCollector keeps the single most severe Result observed across
// concurrent workers: Fatal beats Transient beats Ok.
type resultCollector struct {
	mu   sync.Mutex
	best Result
}

func (c *resultCollector) offer(r Result) {
	if r.Outcome == Ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Outcome > c.best.Outcome {
		c.best = r
	}
}

func (c *resultCollector) worst() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.best
}

// runInitialSyncPhase clones data (external) and then runs the bounded
// initial-sync oplog application: repeatedly drain and apply batches with
// the initial-sync apply function until the applied position reaches
// minValid.
func (d *Driver) runInitialSyncPhase(ctx context.Context) error {
	if d.cloner != nil {
		if err := d.cloner.Clone(ctx); err != nil {
			return err
		}
	}

	rec, found, err := d.minValid.Get()
	if err != nil {
		return err
	}
	if !found {
		// No minValid has ever been recorded: this is a seed member with no
		// oplog history to catch up to.
		return nil
	}

	return d.ApplyInitialSync(ctx, rec.Ts)
}

// ApplyInitialSync drains and applies batches with ModeInitialSync until the
// applied position reaches minValid, emitting progress at each multiple of
// 1000 applied ops once at least 10s have passed since the last report.
func (d *Driver) ApplyInitialSync(ctx context.Context, minValid OpTime) error {
	cfg := d.currentConfig()
	applied := 0
	lastProgress := time.Now()

	for {
		if cfg.ForceInitialSyncFailure > 0 {
			d.UpdateConfig(func(c *Config) { c.ForceInitialSyncFailure-- })
			return errorf("initial sync: forced failure for testing")
		}

		if minValid.LessEq(d.LastApplied()) {
			return nil
		}

		batch, err := AssembleBatch(ctx, d.queue, cfg, d)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sleepOrDone(ctx, time.Second)
			continue
		}

		for _, e := range batch {
			res := d.engine.Apply(ctx, e, ModeInitialSync)
			if res.IsFatal() {
				return res.Reason
			}
			if err := d.persist.LogOp(e); err != nil {
				return err
			}
			d.setLastApplied(e.Ts)
			applied++
			if applied%progressEveryOps == 0 && time.Since(lastProgress) >= progressEveryElapsed {
				log.Info("initial sync: applied %d ops, last ts=%v", applied, e.Ts)
				lastProgress = time.Now()
			}
		}
		if err := d.persist.CommitIfNeeded(); err != nil {
			return err
		}

		if minValid.LessEq(d.LastApplied()) {
			return nil
		}
	}
}
