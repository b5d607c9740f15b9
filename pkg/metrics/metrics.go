package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Commit coordinator metrics (pkg/txn).
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_commits_total",
			Help: "Total number of transaction commit attempts by outcome (committed, conflict, aborted)",
		},
		[]string{"outcome"},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_commit_duration_seconds",
			Help:    "Time spent inside the commit coordinator's lock per commit attempt",
			Buckets: prometheus.DefBuckets,
		},
	)

	TxnIDHighWaterMark = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_txn_id_high_water_mark",
			Help: "Highest txn_id allocated so far",
		},
	)

	// WAL metrics (pkg/wal).
	WALBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_wal_bytes_written_total",
			Help: "Total bytes appended to the write-ahead log",
		},
	)

	WALFsyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_wal_fsync_duration_seconds",
			Help:    "Time spent in fsync calls by durability mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	WALSegmentBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_wal_segment_bytes",
			Help: "Current size of the active WAL segment in bytes",
		},
	)

	// MVCC store metrics (pkg/mvcc).
	MVCCShardCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_mvcc_shard_count",
			Help: "Number of hash shards the MVCC store was opened with",
		},
	)

	MVCCChainsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_mvcc_chains_total",
			Help: "Total number of distinct typed keys with a version chain",
		},
	)

	MVCCScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_mvcc_scan_duration_seconds",
			Help:    "Time taken to service a range scan, including the k-way shard merge",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Snapshot / recovery metrics (pkg/snapshot).
	SnapshotAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_snapshot_age_seconds",
			Help: "Age of the most recently loaded or taken snapshot",
		},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_snapshot_duration_seconds",
			Help:    "Time taken to take or restore a snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecoveryReplayedRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_recovery_replayed_records",
			Help: "Number of WAL records replayed during the most recent recovery",
		},
	)

	// Run lifecycle metrics (pkg/run).
	RunsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_runs_total",
			Help: "Total number of runs by status (active, completed, failed, orphaned)",
		},
		[]string{"status"},
	)

	// Primitive operation metrics.
	PrimitiveOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_primitive_ops_total",
			Help: "Total number of primitive operations by primitive kind and operation name",
		},
		[]string{"primitive", "op"},
	)

	PrimitiveOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strata_primitive_op_duration_seconds",
			Help:    "Primitive operation duration in seconds by primitive kind and operation name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"primitive", "op"},
	)

	// Retention task metrics (pkg/retention).
	RetentionSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_retention_sweeps_total",
			Help: "Total number of retention sweep cycles completed",
		},
	)

	RetentionEntriesEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_retention_entries_evicted_total",
			Help: "Total number of entries evicted by a retention sweep, by primitive kind",
		},
		[]string{"primitive"},
	)
)

func init() {
	prometheus.MustRegister(
		CommitsTotal,
		CommitDuration,
		TxnIDHighWaterMark,
		WALBytesWritten,
		WALFsyncDuration,
		WALSegmentBytes,
		MVCCShardCount,
		MVCCChainsTotal,
		MVCCScanDuration,
		SnapshotAgeSeconds,
		SnapshotDuration,
		RecoveryReplayedRecords,
		RunsTotal,
		PrimitiveOpsTotal,
		PrimitiveOpDuration,
		RetentionSweepsTotal,
		RetentionEntriesEvicted,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// RecordPrimitiveOp increments PrimitiveOpsTotal and observes
// PrimitiveOpDuration for one call to a primitive package's public
// entrypoint. Callers defer it at the top of the function with
// time.Now(), the same one-line-per-op pattern throughout pkg/kv,
// pkg/jsondoc, pkg/event, pkg/state, and pkg/vector.
func RecordPrimitiveOp(primitive, op string, start time.Time) {
	PrimitiveOpsTotal.WithLabelValues(primitive, op).Inc()
	PrimitiveOpDuration.WithLabelValues(primitive, op).Observe(time.Since(start).Seconds())
}
