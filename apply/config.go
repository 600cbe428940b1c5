package apply

import "time"

// Config holds the engine's tunable knobs; config.Config (the YAML-facing
// layer) maps onto this.
type Config struct {
	// WriterThreads is N_WRITERS for the apply pool (>=1).
	WriterThreads int
	// PrefetchThreads sizes the prefetch pool.
	PrefetchThreads int
	// BatchMax is the max ops per batch.
	BatchMax int
	// SlaveDelay is the artificial lag held behind the primary.
	SlaveDelay time.Duration
	// MaintenanceMode pins the node in Recovering while > 0.
	MaintenanceMode int
	// BlockSync pins the node in Recovering when true.
	BlockSync bool
	// ForceInitialSyncFailure is test-only: decrements and throws while > 0.
	ForceInitialSyncFailure int
}

// DefaultBatchMax is the default max ops per batch.
const DefaultBatchMax = 128

// stateCheckInterval is how often the assembler re-checks node state while
// draining a batch.
const stateCheckInterval = time.Second

// maxSlaveDelaySleepSegment bounds each slave-delay sleep so configuration
// changes take effect promptly.
const maxSlaveDelaySleepSegment = 60 * time.Second

// maxSaneLagSeconds is the clock-skew sanity bound (2^30 seconds).
const maxSaneLagSeconds = int64(1) << 30

// DefaultConfig returns the engine's baseline tunables.
func DefaultConfig() Config {
	return Config{
		WriterThreads:   4,
		PrefetchThreads: 4,
		BatchMax:        DefaultBatchMax,
	}
}
