/*
Package mvcc implements the sharded in-memory MVCC store (spec.md
§4.2): a map from typed key to newest-first version chain, partitioned
into shards so unrelated keys never contend on the same lock.

# Architecture

	┌──────────────────── MVCC STORE ───────────────────────────┐
	│                                                             │
	│   hash(typed key) ──▶ shard index                          │
	│                                                             │
	│   ┌─────────┐   ┌─────────┐         ┌─────────┐           │
	│   │ shard 0 │   │ shard 1 │   ...   │ shard N │           │
	│   │ RWMutex │   │ RWMutex │         │ RWMutex │           │
	│   │ map[str]│   │ map[str]│         │ map[str]│           │
	│   │ []chain │   │ []chain │         │ []chain │           │
	│   └─────────┘   └─────────┘         └─────────┘           │
	│                                                             │
	│  put: exclusive lock on one shard, append to chain head     │
	│  get_latest/get_at/history: shared lock on one shard        │
	│  scan: shared lock per shard visited, in typed-key order    │
	└─────────────────────────────────────────────────────────────┘

Per spec.md §4.2, the store never fails intrinsically: a non-monotone
put is a fatal logic error (it indicates a pkg/txn bug, not a storage
condition), and the store performs no I/O of its own — persistence is
pkg/wal and pkg/snapshot's job. Readers take a snapshot_version from
pkg/txn and never block on an in-flight commit of an unrelated key,
since shard locks are per-shard and commits touch many shards only in
typed-key sort order (see pkg/txn for the lock-ordering discipline that
makes that safe).
*/
package mvcc
