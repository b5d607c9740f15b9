/*
Package txn implements the single-writer commit coordinator (spec.md
§4.4): transaction lifecycle, optimistic snapshot-isolation validation
(first-committer-wins), and version allocation, sitting between the
primitive substrate (pkg/kv, pkg/jsondoc, ...) and the MVCC store /
WAL.

# State machine

	Idle → Active → Validating → Applying → Committed
	                          ↘ Aborted

# Architecture

	┌────────────────── COMMIT COORDINATOR ─────────────────────┐
	│                                                              │
	│  Begin() ── snapshot_version = latest published txn_id      │
	│       │                                                      │
	│       ▼                                                      │
	│  Get()/StageWrite() ── read-set / write-set accumulate       │
	│  (read-your-writes: write-set consulted before the snapshot) │
	│       │                                                      │
	│       ▼                                                      │
	│  Commit() ── acquire the single commit lock                  │
	│       1. validate read-set vs current MVCC heads (OCC)       │
	│       2. evaluate each write's CAS predicate (if any) —       │
	│          a failing predicate skips just that write, it does   │
	│          NOT abort the rest of the transaction                │
	│       3. allocate one fresh txn_id, shared by every write    │
	│          that will actually apply                            │
	│       4. let each write's Assign hook compute its final bytes │
	│          against the now-resolved current head (event         │
	│          prev_hash, state counter, vector id, ...)             │
	│       5. append WAL records in typed-key order                │
	│       6. publish to the MVCC store in the same order          │
	│       7. release the lock                                     │
	│                                                              │
	└──────────────────────────────────────────────────────────────┘

Per spec.md §4.4.4, the coordinator itself never retries a conflicting
transaction — that is a caller-visible decision, and no retry helper
is provided in this module.
*/
package txn
