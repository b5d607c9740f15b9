/*
Package wal implements the length- and CRC-framed write-ahead log
(spec.md §4.3): the durable record of every committed transaction,
replayed at startup to reconstruct MVCC state (pkg/snapshot) and
appended to at every commit (pkg/txn).

# Record format

	u32 length          // bytes following this field, excluding CRC
	u8  type_tag        // core framing | kv | json | event | state | trace | run | vector
	u8  format_version  // starts at 1
	u16 flags           // reserved / per-type
	u64 txn_id
	u64 timestamp_us
	variable payload    // type-specific
	u32 crc32           // over (type_tag .. payload)

# Durability modes

None: no fsync, data loss on crash is permitted up to last published.
Strict: TxCommit is fsynced before the commit returns — synchronous.
Batched: a background flusher fsyncs at interval_ms or batch_size
commits, whichever comes first; see Writer's doc comment for the exact
block-vs-return semantics this implementation commits to (spec.md §9's
first open question).

# Recovery contract

A partial record at the tail, or a CRC mismatch anywhere, truncates
replay at the last valid record boundary (spec.md §4.3.4, §4.5.3); the
WAL never rewrites or compacts records in place — pkg/snapshot's
checkpoint mechanism is how a reader skips an already-snapshotted
prefix.
*/
package wal
