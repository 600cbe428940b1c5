// Package di is the composition root: the one place concrete
// implementations of apply's consumed interfaces are chosen and wired
// together, in a lazy memoized-getter style (each getter either returns a
// cached field or builds it once).
package di

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/chronodb/oplogd/apply"
	"github.com/chronodb/oplogd/config"
	"github.com/chronodb/oplogd/httpapi"
	"github.com/chronodb/oplogd/internal/lockmgr"
	"github.com/chronodb/oplogd/internal/storage"
	"github.com/chronodb/oplogd/internal/upstream"
	"github.com/chronodb/oplogd/utils/log"
)

// Container lazily constructs and memoizes the engine's dependency graph.
type Container struct {
	cfg config.Config

	selfMemberID string
	store        *storage.BoltStore
	lockMgr      *lockmgr.RWManager
	registry     *upstream.Registry
	minValid     *apply.MinValidJournal
	ghostTracker *apply.Tracker
	engine       *apply.Engine
	driver       *apply.Driver
}

// NewContainer builds a Container over the given configuration.
func NewContainer(cfg config.Config) *Container {
	return &Container{cfg: cfg}
}

// SelfMemberID returns this node's identity, generating a new UUID on first
// use. The identity lasts for this Container's lifetime and is not persisted
// across restarts.
func (c *Container) SelfMemberID() string {
	if c.selfMemberID != "" {
		return c.selfMemberID
	}
	c.selfMemberID = uuid.NewString()
	log.Info("node identity: %s", c.selfMemberID)
	return c.selfMemberID
}

// Store returns the bbolt-backed Persistence, opening the data file on
// first use.
func (c *Container) Store() *storage.BoltStore {
	if c.store != nil {
		return c.store
	}
	path := filepath.Join(c.cfg.DataDirectory, "oplogd.db")
	store, err := storage.Open(path)
	if err != nil {
		log.Fatal("failed to open storage at %s: %v", path, err)
		panic(err)
	}
	c.store = store
	return c.store
}

// LockManager returns the in-process lock manager.
func (c *Container) LockManager() *lockmgr.RWManager {
	if c.lockMgr != nil {
		return c.lockMgr
	}
	c.lockMgr = lockmgr.New()
	return c.lockMgr
}

// Registry returns the production OplogSource, fed by an externally owned
// fetcher goroutine this container does not itself start (the fetcher's
// network protocol is out of scope for this engine).
func (c *Container) Registry() *upstream.Registry {
	if c.registry != nil {
		return c.registry
	}
	c.registry = upstream.NewRegistry()
	return c.registry
}

// MinValid returns the minValid journal.
func (c *Container) MinValid() *apply.MinValidJournal {
	if c.minValid != nil {
		return c.minValid
	}
	c.minValid = apply.NewMinValidJournal(c.Store())
	return c.minValid
}

// GhostTracker returns the ghost tracker, wired to noCursorOpener: every
// OpenCursor call fails with apply.ErrNoCursorTransport, so Percolate never
// opens a cursor (the cursor's wire protocol is out of scope for this
// engine).
func (c *Container) GhostTracker() *apply.Tracker {
	if c.ghostTracker != nil {
		return c.ghostTracker
	}
	c.ghostTracker = apply.NewTracker(c.SelfMemberID(), noCursorOpener{})
	return c.ghostTracker
}

// Engine builds the Apply Engine over leaf as the leaf mutation primitive
// (out of scope for this engine - the caller supplies it).
func (c *Container) Engine(leaf apply.LeafApplier, state apply.NodeStateProvider) *apply.Engine {
	if c.engine != nil {
		return c.engine
	}
	c.engine = apply.NewEngine(c.LockManager(), leaf, c.Store(), state)
	return c.engine
}

// Driver builds the Sync Driver over leaf (out of scope for this engine),
// cloner (out of scope) and prefetchFn (out of scope - pages in leaf's own
// documents/indexes). Only one Driver may ever be built in a process.
func (c *Container) Driver(leaf apply.LeafApplier, cloner apply.DataCloner, prefetchFn apply.PrefetchFunc) (*apply.Driver, error) {
	if c.driver != nil {
		return c.driver, nil
	}

	applyCfg := apply.Config{
		WriterThreads:           c.cfg.WriterThreads,
		PrefetchThreads:         c.cfg.PrefetchThreads,
		BatchMax:                c.cfg.BatchMax,
		SlaveDelay:              c.cfg.SlaveDelay,
		MaintenanceMode:         c.cfg.MaintenanceMode,
		BlockSync:               c.cfg.BlockSync,
		ForceInitialSyncFailure: c.cfg.ForceInitialSyncFailure,
	}

	queue := apply.NewQueueAdapter(c.Registry())
	// A *apply.Driver satisfies apply.NodeStateProvider itself, but Engine
	// must be built before Driver exists; engine reads state through a thin
	// indirection that forwards to the driver once it is set.
	stateBox := &driverStateBox{}
	engine := c.Engine(leaf, stateBox)

	driver, err := apply.NewDriver(applyCfg, queue, engine, c.Store(), c.MinValid(),
		c.LockManager(), c.Registry(), cloner, prefetchFn)
	if err != nil {
		return nil, err
	}
	stateBox.driver = driver
	c.driver = driver
	return c.driver, nil
}

// HTTPHandler builds the admin HTTP handler and router over the already
// built Driver. Driver must be constructed first (via Driver above).
func (c *Container) HTTPHandler(prober apply.CandidateProber, weBuildIndexes bool) (*httpapi.Handler, error) {
	if c.driver == nil {
		return nil, apply.ErrDriverNotBuilt
	}
	return &httpapi.Handler{
		Driver:         c.driver,
		Ghosts:         c.GhostTracker(),
		Prober:         prober,
		Source:         c.Registry(),
		WeBuildIndexes: weBuildIndexes,
	}, nil
}

// Close releases the container's owned resources (the storage file handle).
func (c *Container) Close() error {
	if c.store != nil {
		return c.store.Close()
	}
	return nil
}

// driverStateBox exists to break the Engine<->Driver construction cycle:
// Engine needs a NodeStateProvider at construction time, but the Driver that
// implements it is only built afterward, on top of the Engine.
type driverStateBox struct {
	driver *apply.Driver
}

func (b *driverStateBox) CurrentState() apply.NodeState {
	if b.driver == nil {
		return apply.Startup
	}
	return b.driver.CurrentState()
}

// noCursorOpener is the default CursorOpener until chained replication's
// actual cursor transport (out of scope for this engine) is wired in.
type noCursorOpener struct{}

func (noCursorOpener) OpenCursor(ctx context.Context) (apply.GhostCursor, error) {
	return nil, apply.ErrNoCursorTransport
}
