/*
Package keyspace implements the typed address space (spec.md §4.1):
an injective encoding of (PrimitiveKind, RunId, LocalKey) into a single
comparable byte string, used as the map key for every version chain in
pkg/mvcc and as the sort key for WAL/commit ordering in pkg/txn.

# Architecture

	┌─────────────── TYPED KEY ENCODING ────────────────┐
	│                                                     │
	│  [kind:1][run:16][local-segments...]               │
	│                                                     │
	│  local-segments: each segment escaped so that byte  │
	│  concatenation sorts the same as the tuple of       │
	│  segments would under lexicographic tuple order.    │
	│  0x00 in a segment -> 0x00 0xFF; segment terminated │
	│  by 0x00 0x00.                                      │
	└─────────────────────────────────────────────────────┘

Fixing kind and run to constant width means the only variable-length
part of the key is the local-key tail, so ordering within one (kind,
run) partition reduces to ordering of the escaped local-key bytes —
exactly the property spec.md §4.1 requires for deterministic listing
and prefix-respecting scans.

The encoding is written into WAL records and snapshot blobs, so once
chosen it is fixed: changing segment widths or the escape scheme is a
storage format break.
*/
package keyspace
