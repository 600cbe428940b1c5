package apply_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chronodb/oplogd/apply"
	"github.com/chronodb/oplogd/internal/lockmgr"
	"github.com/chronodb/oplogd/internal/storage"
	"github.com/chronodb/oplogd/internal/testdoc"
	"github.com/chronodb/oplogd/internal/upstream"
)

// stateBox is a mutable NodeStateProvider so tests can flip state mid-run,
// the way the Driver's own atomic state field does in production.
type stateBox struct {
	mu sync.Mutex
	s  apply.NodeState
}

func (b *stateBox) CurrentState() apply.NodeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.s
}

func (b *stateBox) set(s apply.NodeState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.s = s
}

func newTestDriver(t *testing.T, state *stateBox, src *upstream.MemorySource, cfg apply.Config) (*apply.Driver, *testdoc.Store, *storage.MemoryStore) {
	t.Helper()
	apply.ResetSingletonForTest()
	t.Cleanup(apply.ResetSingletonForTest)

	leaf := testdoc.NewStore()
	persist := storage.NewMemoryStore()
	lockMgr := lockmgr.New()
	engine := apply.NewEngine(lockMgr, leaf, persist, state)
	minValid := apply.NewMinValidJournal(persist)
	queue := apply.NewQueueAdapter(src)

	d, err := apply.NewDriver(cfg, queue, engine, persist, minValid, lockMgr, src, nil, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return d, leaf, persist
}

// Once this node's state flips to Primary between iterations,
// runTailIteration stops applying further ops.
func TestDriver_BecomePrimaryMidTailStopsApplying(t *testing.T) {
	t.Parallel()
	state := &stateBox{s: apply.Secondary}
	src := upstream.NewMemorySource()
	src.Append(ins(1, "db.a"))
	cfg := apply.Config{WriterThreads: 2, BatchMax: 128}

	d, leaf, _ := newTestDriver(t, state, src, cfg)
	d.Configure(apply.OpTime{Seconds: 1})
	d.SetStateForTest(apply.Secondary)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := d.RunTailIterationForTest(ctx)
	if res.IsFatal() {
		t.Fatalf("first iteration unexpectedly fatal: %v", res.Reason)
	}
	if _, ok := leaf.Get("db.a", []byte("db.a")); !ok {
		t.Fatal("expected first op applied while still secondary")
	}

	// Flip to primary, then feed another op; it must never reach the leaf.
	state.set(apply.Primary)
	src.Append(ins(2, "db.b"))

	res = d.RunTailIterationForTest(ctx)
	if res.IsFatal() {
		t.Fatalf("iteration after becoming primary unexpectedly fatal: %v", res.Reason)
	}
	if _, ok := leaf.Get("db.b", []byte("db.b")); ok {
		t.Fatal("op applied after node became primary")
	}
}

// With a configured delay, SlaveDelay blocks until the injected clock
// reaches last.Ts + delay, and returns within one sleep segment once it has.
func TestSlaveDelay_BlocksUntilDelayElapsed(t *testing.T) {
	t.Parallel()
	last := apply.OpLogEntry{Ts: apply.OpTime{Seconds: 1000}}

	var mu sync.Mutex
	now := int64(1000)
	nowFn := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return time.Unix(now, 0)
	}
	delay := 10 * time.Second
	currentDelay := func() time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return delay
	}

	done := make(chan error, 1)
	go func() {
		done <- apply.SlaveDelay(context.Background(), last, currentDelay, nowFn)
	}()

	select {
	case err := <-done:
		t.Fatalf("SlaveDelay returned early (err=%v) before clock advanced", err)
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	now = 1010
	mu.Unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("SlaveDelay: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SlaveDelay did not return once clock reached last.Ts+delay")
	}
}

func TestSlaveDelay_NoDelayReturnsImmediately(t *testing.T) {
	t.Parallel()
	last := apply.OpLogEntry{Ts: apply.OpTime{Seconds: 1000}}
	nowFn := func() time.Time { return time.Unix(1000, 0) }
	currentDelay := func() time.Duration { return 0 }

	if err := apply.SlaveDelay(context.Background(), last, currentDelay, nowFn); err != nil {
		t.Fatalf("SlaveDelay with zero delay: %v", err)
	}
}

// While a batch barrier scope is engaged, a concurrent DbRead is blocked
// until the scope ends.
func TestBarrier_ExcludesConcurrentReaders(t *testing.T) {
	t.Parallel()
	mgr := lockmgr.New()
	b := apply.NewBarrier(mgr)

	entered := make(chan struct{})
	release := make(chan struct{})
	readAcquired := make(chan struct{})

	go func() {
		_ = b.Run(context.Background(), func() error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered

	go func() {
		lock := mgr.DbRead(context.Background(), "db.a")
		close(readAcquired)
		lock.Release()
	}()

	select {
	case <-readAcquired:
		t.Fatal("DbRead acquired while barrier scope was engaged")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case <-readAcquired:
	case <-time.After(2 * time.Second):
		t.Fatal("DbRead never acquired after barrier scope ended")
	}
}
