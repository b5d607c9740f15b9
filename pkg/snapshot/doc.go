/*
Package snapshot implements snapshot files and crash recovery (spec.md
§4.5): an atomic dump of the MVCC store's chain heads plus the commit
coordinator's counters, and the WAL replay that reconstructs everything
committed after the newest valid snapshot.

File format mirrors pkg/wal's record framing (magic, length-prefixed
sections, CRC32 per section) rather than inventing a second on-disk
convention: magic INMEMSNP, a format version byte, the WAL offset this
snapshot reflects, one length+CRC-framed blob per primitive kind (chain
heads only — the latest entry per key, tombstone or not), and a final
meta blob carrying the coordinator's counters, all followed by a footer
CRC over the whole body. Write goes to a ".tmp" path first and is
renamed into place only once fully written, so a crash mid-write never
leaves a half-written file at the real name (discovery only ever globs
"*.snap").

Discovery lists every "*.snap" file, orders by the wal_offset_end
encoded in its name descending, and validates each in turn (footer CRC,
then every blob's own CRC) until one passes; an empty directory or an
all-corrupt one means recovery starts from zero state and replays the
entire WAL.

Recovery loads the chosen snapshot's heads directly into the MVCC store
and seeds the coordinator's counters, then replays every WAL record
after that snapshot's offset: ops are buffered per txn_id between
TxBegin and TxCommit and only applied, in typed-key order, once a
matching TxCommit is seen (TxAbort or a missing commit discards them,
satisfying R6). A record with a bad CRC, an impossible length, or an
unrecognized type tag truncates replay from that point on — the same
"treat the rest of the file as absent" rule pkg/wal.ReadAll already
applies to a torn tail record.

ReplayRun answers spec.md's replay_run(run_id) → ReadOnlyView: it reuses
the same apply loop against a throwaway in-memory store, writes nothing
to the real store or WAL, and never touches the coordinator's counters
(P1-P6) — it exists to let an external caller reconstruct one run's
history as of the current WAL tail without perturbing live state.
*/
package snapshot
