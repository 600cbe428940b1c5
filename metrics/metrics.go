package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = "oplogd"
var subsystem = "apply"

var (
	// BatchSize records how many ops landed in each assembled batch.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "batch_size_ops",
		Help:      "Number of operations in each assembled batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// PartitionQueueDepth records per-partition queue depth at dispatch time.
	PartitionQueueDepth = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "partition_queue_depth",
		Help:      "Number of ops routed to a writer partition for one batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	}, []string{"partition"})

	// ApplyLatency records wall-clock time to apply a single op.
	ApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "apply_latency_seconds",
		Help:      "Time taken by the Apply Engine to apply a single operation",
	})

	// GhostLagSeconds records, per downstream replica id, how far behind
	// this node's own last-applied position the ghost's reported position is.
	GhostLagSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "ghost_lag_seconds",
		Help:      "Seconds the tracked replica lags behind this node's own applied position",
	}, []string{"replica_id"})

	// MinValidJournalDiskBytes tracks local storage disk usage.
	MinValidJournalDiskBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "storage_disk_usage_bytes",
		Help:      "Disk usage of the local storage file backing the oplog and minValid journal",
	})

	// BatchesApplied counts completed batch apply cycles, partitioned by outcome.
	BatchesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "batches_applied_total",
		Help:      "Number of batch apply cycles completed, partitioned by outcome",
	}, []string{"outcome"})
)
