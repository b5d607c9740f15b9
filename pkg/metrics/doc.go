/*
Package metrics provides Prometheus metrics collection and exposition for Strata.

The metrics package defines and registers every Strata metric using the
Prometheus client library, then exposes them via an HTTP handler for
scraping. It also provides health and readiness endpoints and a
Collector that periodically samples an open database's size and
lifecycle counts.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                             │
	│  ┌─────────────────────────────────────────────┐          │
	│  │         Prometheus Registry                  │          │
	│  │  - Counters, Gauges, Histograms              │          │
	│  │  - Registered once via init()                │          │
	│  │  - Thread-safe for concurrent updates         │          │
	│  └──────────────────┬──────────────────────────┘          │
	│                     │                                       │
	│  ┌──────────────────▼──────────────────────────┐          │
	│  │            Metric Sources                     │          │
	│  │  - pkg/txn: commits, commit duration          │          │
	│  │  - pkg/wal: bytes written, fsync duration     │          │
	│  │  - pkg/mvcc: shard count, chain count         │          │
	│  │  - pkg/snapshot: age, duration, replay count  │          │
	│  │  - pkg/retention: sweeps, entries evicted     │          │
	│  │  - Collector: runs by status (periodic poll)  │          │
	│  └──────────────────┬──────────────────────────┘          │
	│                     │                                       │
	│  ┌──────────────────▼──────────────────────────┐          │
	│  │          HTTP Exposition                      │          │
	│  │  - /metrics: Prometheus text format           │          │
	│  │  - /health, /ready, /live: JSON                │          │
	│  └───────────────────────────────────────────────┘          │
	└─────────────────────────────────────────────────────────────┘

# Metric Catalog

Commit Coordinator (pkg/txn):

strata_commits_total{outcome}:
  - Type: Counter
  - Description: Commit attempts by outcome (committed, conflict, aborted)
  - Example: strata_commits_total{outcome="committed"} 10523

strata_commit_duration_seconds:
  - Type: Histogram
  - Description: Time spent inside the commit coordinator's lock per attempt

strata_txn_id_high_water_mark:
  - Type: Gauge
  - Description: Highest txn_id allocated so far

Write-Ahead Log (pkg/wal):

strata_wal_bytes_written_total:
  - Type: Counter
  - Description: Total bytes appended to the write-ahead log

strata_wal_fsync_duration_seconds{mode}:
  - Type: Histogram
  - Description: Time spent in fsync calls, labeled by durability mode

strata_wal_segment_bytes:
  - Type: Gauge
  - Description: Current size of the active WAL segment

MVCC Store (pkg/mvcc):

strata_mvcc_shard_count:
  - Type: Gauge
  - Description: Number of hash shards the store was opened with

strata_mvcc_chains_total:
  - Type: Gauge
  - Description: Total number of distinct typed keys with a version chain

strata_mvcc_scan_duration_seconds:
  - Type: Histogram
  - Description: Time to service a range scan, including the shard merge

Snapshot / Recovery (pkg/snapshot):

strata_snapshot_age_seconds:
  - Type: Gauge
  - Description: Age of the most recently loaded or taken snapshot

strata_snapshot_duration_seconds:
  - Type: Histogram
  - Description: Time to take or restore a snapshot

strata_recovery_replayed_records:
  - Type: Gauge
  - Description: Number of WAL records replayed during the most recent recovery

Run Lifecycle (pkg/run):

strata_runs_total{status}:
  - Type: Gauge
  - Description: Number of runs by lifecycle status
  - Example: strata_runs_total{status="orphaned"} 1

Primitive Operations:

strata_primitive_ops_total{primitive, op}:
  - Type: Counter
  - Description: Operation count by primitive kind and operation name
  - Example: strata_primitive_ops_total{primitive="kv",op="put"} 204

strata_primitive_op_duration_seconds{primitive, op}:
  - Type: Histogram
  - Description: Operation duration by primitive kind and operation name

Retention (pkg/retention):

strata_retention_sweeps_total:
  - Type: Counter
  - Description: Total retention sweep cycles completed

strata_retention_entries_evicted_total{primitive}:
  - Type: Counter
  - Description: Entries evicted by a sweep, by primitive kind

# Usage

Registering and Exposing Metrics:

	import "github.com/stratadb-labs/strata-core/pkg/metrics"

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go http.ListenAndServe("127.0.0.1:9090", mux)

Recording a Commit:

	timer := metrics.NewTimer()
	result, err := tx.Commit()
	metrics.CommitDuration.Observe(timer.Duration().Seconds())
	outcome := "committed"
	if err != nil {
		outcome = "aborted"
	}
	metrics.CommitsTotal.WithLabelValues(outcome).Inc()

Periodic Collection:

	db, _ := strata.Open(cfg)
	collector := metrics.NewCollector(db) // *strata.DB satisfies metrics.Source
	collector.Start()
	defer collector.Stop()

Component Health:

	metrics.RegisterComponent("wal", true, "open")
	metrics.RegisterComponent("mvcc", true, "open")
	metrics.RegisterComponent("snapshot", true, "recovered")
	metrics.SetVersion("0.1.0")

# Integration Points

This package integrates with:

  - pkg/strata: DB satisfies metrics.Source; Open registers component health
  - pkg/txn: Increments strata_commits_total and observes commit duration
  - pkg/wal: Tracks bytes written and fsync duration by mode
  - pkg/snapshot: Tracks snapshot age, duration, and replayed record count
  - pkg/retention: Counts sweeps and evicted entries
  - cmd/stratadb: Wires Handler/HealthHandler/ReadyHandler into "serve"

# Performance Characteristics

Collection Overhead:
  - Counter increment: ~20ns (atomic)
  - Gauge set: ~20ns (atomic)
  - Histogram observe: ~100ns (bucket search + atomic)
  - Collector sweep: one read-only transaction per tick, O(runs)

Memory:
  - ~200 bytes per metric plus ~100 bytes per unique label combination
  - Typical single-node footprint: well under 1MB

# Alerting Guidance

High Commit Conflict Rate:
  - Query: rate(strata_commits_total{outcome="conflict"}[5m])
  - Action: check for a hot key under heavy concurrent writers

Stale Snapshot:
  - Query: strata_snapshot_age_seconds > 3600
  - Action: trigger a manual Checkpoint or check the retention schedule

WAL Growth Without Checkpoints:
  - Query: strata_wal_segment_bytes with no corresponding drop in
    strata_snapshot_age_seconds
  - Action: recovery time on next open grows with the unreplayed tail

# Security

Metric Content:
  - Never include key/value contents or document bodies as label values
  - Run ids are safe to expose as labels; run names chosen by the
    caller may not be, depending on deployment

Endpoint Exposure:
  - Bind the metrics server to localhost or a private network by default
  - /metrics and /health carry no authentication of their own

# See Also

  - Prometheus client_golang: https://github.com/prometheus/client_golang
  - Prometheus naming conventions: https://prometheus.io/docs/practices/naming/
*/
package metrics
