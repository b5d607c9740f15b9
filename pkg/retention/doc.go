/*
Package retention implements the background version-history trim
spec.md §4.7 describes: per run, drop deep chain history once it falls
outside the run's RetentionPolicy (pkg/run), but never below the
snapshot low-water mark (spec.md §4.4.4) — the oldest snapshot version
any currently open transaction might still read, tracked by
txn.Coordinator.LowWaterMark.

Trimming is a physical operation on the MVCC store's version chains
(mvcc.Store.TrimChainToDepth/TrimChainBefore), not a logical write: it
never goes through StageWrite, is never WAL-logged, and does not
advance any txn_id. A version chain entry that is trimmed was already
durably superseded in the WAL by whatever committed after it; dropping
it from memory loses nothing a running snapshot needs, and recovery
never depends on trimmed entries since TrimChain* refuses to cross the
low-water mark.

KeepLast and KeepVersions are spec.md §4.7 names for what this package
treats as the same operation: retain the newest N chain entries per
key. spec.md does not elaborate a distinction between the two beyond
naming both, and nothing downstream (recovery, the API surface) reads
policy.Kind to tell them apart, so SweepRun dispatches both to
TrimChainToDepth with N as the depth. See DESIGN.md.
*/
package retention
