/*
Package strata wires the typed address space, the sharded MVCC store, the
write-ahead log, the commit coordinator, and snapshot/recovery into one
embeddable database handle.

# Architecture

	┌─────────────────────────── DB ───────────────────────────┐
	│                                                            │
	│  Open():                                                  │
	│    1. lay out data/{wal,snapshots}                         │
	│    2. snapshot.Discover + snapshot.Install (if found)      │
	│    3. wal.ReadAll the tail after the snapshot's offset     │
	│       (or the whole segment, if none was found)            │
	│    4. snapshot.Replay that tail against the installed      │
	│       store and coordinator                                │
	│    5. mark every non-terminal run Orphaned                 │
	│                                                            │
	│  ┌──────────────┐   ┌──────────────┐   ┌────────────────┐ │
	│  │ mvcc.Store   │◄──┤ txn.Coord-   │◄──┤ wal.Writer      │ │
	│  │ (version     │   │ inator       │   │ (Appender)      │ │
	│  │  chains)     │   │ (commit lock)│   │                 │ │
	│  └──────────────┘   └──────────────┘   └────────────────┘ │
	│         ▲                                                  │
	│         │ Checkpoint(): snapshot.Write(store, coord, …)   │
	│         ▼                                                  │
	│  ┌──────────────┐                                          │
	│  │ snapshot.*   │                                          │
	│  └──────────────┘                                          │
	└────────────────────────────────────────────────────────────┘

Every primitive package (pkg/kv, pkg/jsondoc, pkg/event, pkg/state,
pkg/vector, pkg/run) operates directly on a *txn.Txn obtained from
DB.Begin — DB itself holds no primitive-specific state. This mirrors the
teacher's Manager, which is a thin composition root over its store, FSM,
and subsystem managers rather than a god object duplicating their logic.

# On-disk layout

	<data-dir>/
	  wal/000001.log       active segment (single, non-rotating)
	  snapshots/<n>.snap   snapshot whose contents reflect WAL offset n
	  manifest             format version + latest snapshot offset

Ephemeral databases (Config.Ephemeral) skip all of the above and live
entirely in memory; "temp" databases (Config.Temp) use the same on-disk
layout inside a process-local scratch directory that Close removes.

Segment rotation (multiple numbered wal/ files, §6.3) is not
implemented: Open always uses a single growing wal/000001.log. Nothing
in the spec requires rotation for correctness — only the active segment
is ever read past a snapshot's offset — and a rotating writer would add
bookkeeping with no behavioral difference at this scale. See DESIGN.md.
*/
package strata
