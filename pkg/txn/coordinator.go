package txn

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/log"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

// Appender is the subset of *wal.Writer the coordinator needs; it is
// an interface so tests and ephemeral (no-WAL) databases can swap in a
// no-op implementation.
type Appender interface {
	Append(records []wal.Record, fsyncRequired bool) (int64, error)
}

// Coordinator is the single-writer commit lock plus the monotone
// counters every primitive's version allocation depends on
// (spec.md §4.4.3). There is exactly one Coordinator per open
// database.
type Coordinator struct {
	mu    sync.Mutex // the single commit lock
	store *mvcc.Store
	wal   Appender
	log   zerolog.Logger

	nextTxnID uint64

	// per-(run,stream) next event sequence and per-(run,collection)
	// next vector id, restored from a snapshot's coordinator metadata
	// at recovery (spec.md §4.5.1) since neither can always be safely
	// re-derived from chain heads alone (a fully-deleted vector
	// collection must still remember the highest id ever issued). A
	// state cell's counter needs no equivalent here: it travels
	// embedded in the cell's own value bytes (state.encodeValue), so
	// the cell's chain head alone is already sufficient to recover it.
	seqCounters    map[string]uint64
	vectorCounters map[string]uint64

	// snapMu guards openSnapshots, the count of live transactions
	// pinned to each snapshot version — kept separate from mu (the
	// commit lock) since registering/releasing a snapshot must never
	// contend with or be ordered against a commit in flight.
	snapMu        sync.Mutex
	openSnapshots map[uint64]int

	clock func() types.Timestamp
}

// New creates a Coordinator over store, appending committed records
// to walAppender (pass a no-op Appender for ephemeral databases).
func New(store *mvcc.Store, walAppender Appender) *Coordinator {
	return &Coordinator{
		store:          store,
		wal:            walAppender,
		log:            log.WithComponent("txn"),
		nextTxnID:      1,
		seqCounters:    make(map[string]uint64),
		vectorCounters: make(map[string]uint64),
		openSnapshots:  make(map[uint64]int),
		clock:          defaultClock,
	}
}

func defaultClock() types.Timestamp {
	return types.Timestamp(time.Now().UnixMicro())
}

// SeedTxnID restores the high-water mark after recovery: the next
// commit will allocate max(seen in WAL, snapshot)+1.
func (c *Coordinator) SeedTxnID(next uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next > c.nextTxnID {
		c.nextTxnID = next
	}
}

// PeekTxnID returns the next txn_id that would be allocated, for
// snapshot persistence.
func (c *Coordinator) PeekTxnID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextTxnID
}

func counterKey(run types.RunId, name string) string { return run.ID.String() + "/" + name }

// SeedSequence restores a stream's next sequence counter.
func (c *Coordinator) SeedSequence(run types.RunId, stream string, next uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := counterKey(run, stream)
	if next > c.seqCounters[k] {
		c.seqCounters[k] = next
	}
}

// SeedVectorID restores a collection's next vector id. The counter
// holds the last allocated id (see NextVectorIDLocked), so next-1 is
// what is stored.
func (c *Coordinator) SeedVectorID(run types.RunId, collection string, next uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := counterKey(run, collection)
	if next > 0 && next-1 > c.vectorCounters[k] {
		c.vectorCounters[k] = next - 1
	}
}

// Store exposes the underlying MVCC store for a dynamicAssignFunc's
// own lookups (an event stream's current head, say). Like
// NextSequenceLocked, it is only meaningful while the commit lock is
// held, i.e. from inside a dynamicAssignFunc.
func (c *Coordinator) Store() *mvcc.Store { return c.store }

// NextSequenceLocked allocates and advances the next sequence number
// for (run, stream): sequences are contiguous starting at 0 (spec.md
// §3.4). Must only be called from a dynamicAssignFunc, which runs
// while the commit lock is already held.
func (c *Coordinator) NextSequenceLocked(run types.RunId, stream string) uint64 {
	k := counterKey(run, stream)
	n := c.seqCounters[k]
	c.seqCounters[k] = n + 1
	return n
}

// PeekSequenceLocked returns the next sequence that would be allocated
// for (run, stream) without advancing it, and whether any event has
// ever been appended to the stream. Must only be called from a
// dynamicAssignFunc.
func (c *Coordinator) PeekSequenceLocked(run types.RunId, stream string) (next uint64, hasPrior bool) {
	n := c.seqCounters[counterKey(run, stream)]
	return n, n > 0
}

// NextVectorIDLocked allocates and advances the next VectorId for
// (run, collection), starting at 1 (spec.md §8.4 scenario 5). Allocated
// ids are never reused even after the vector they named is deleted
// (spec.md §4.6). Must only be called from a dynamicAssignFunc.
func (c *Coordinator) NextVectorIDLocked(run types.RunId, collection string) uint64 {
	k := counterKey(run, collection)
	n := c.vectorCounters[k] + 1
	c.vectorCounters[k] = n
	return n
}

// SeedCounters restores every counter from a snapshot's persisted
// counters blob in one call, taking the monotone max against whatever
// is already seeded. Keys match CounterSnapshot's format (each map is
// keyed by the same composite counterKey string CounterSnapshot
// returns, not a bare run or stream name). Used once, by pkg/snapshot
// at load time, before WAL replay seeds any further advance from
// records committed after the snapshot.
func (c *Coordinator) SeedCounters(nextTxnID uint64, seq, vector map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nextTxnID > c.nextTxnID {
		c.nextTxnID = nextTxnID
	}
	mergeMax(c.seqCounters, seq)
	mergeMax(c.vectorCounters, vector)
}

func mergeMax(dst, src map[string]uint64) {
	for k, v := range src {
		if v > dst[k] {
			dst[k] = v
		}
	}
}

// Snapshot of all counters, for pkg/snapshot to persist. Returned maps
// are copies safe to serialize without holding the coordinator lock.
func (c *Coordinator) CounterSnapshot() (txnID uint64, seq, vector map[string]uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := func(m map[string]uint64) map[string]uint64 {
		out := make(map[string]uint64, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return c.nextTxnID, cp(c.seqCounters), cp(c.vectorCounters)
}

// latestPublished returns the snapshot_version a new transaction
// should read at: nextTxnID-1, the newest txn_id any commit can have
// published. A commit allocates its txn_id under c.mu before its WAL
// append and does not return it if the append fails, so that id may
// be unused; reading at it sees the same state as the id before it.
func (c *Coordinator) latestPublished() types.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextTxnID == 0 {
		return types.TxnId(0)
	}
	return types.TxnId(c.nextTxnID - 1)
}

// Begin starts a new transaction at the current latest-published
// snapshot. Read-only transactions never take the commit lock even on
// Commit (which becomes a no-op for them). The snapshot version is
// pinned in the open-snapshot registry until the transaction ends
// (Commit or Rollback), so LowWaterMark never reports a version still
// in use.
func (c *Coordinator) Begin(readOnly bool) *Txn {
	snapshotVersion := c.latestPublished()
	c.registerSnapshot(snapshotVersion)
	return &Txn{
		coord:           c,
		snapshotVersion: snapshotVersion,
		readOnly:        readOnly,
		state:           StateActive,
		reads:           make(map[string]types.Version),
		readAbsent:      make(map[string]bool),
		writeIndex:      make(map[string]int),
	}
}

// registerSnapshot pins v as in-use by one more open transaction.
func (c *Coordinator) registerSnapshot(v types.Version) {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	c.openSnapshots[v.N]++
}

// releaseSnapshot unpins v, called exactly once per transaction when
// it finishes. See Txn.release.
func (c *Coordinator) releaseSnapshot(v types.Version) {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	if n := c.openSnapshots[v.N]; n <= 1 {
		delete(c.openSnapshots, v.N)
	} else {
		c.openSnapshots[v.N] = n - 1
	}
}

// LowWaterMark returns the oldest snapshot version any currently open
// transaction might still read — the floor pkg/retention must never
// trim a version chain entry below (spec.md §4.4.4, §4.7). With no
// transactions open, it is the latest published version: nothing pins
// retention to anything older than the current head.
func (c *Coordinator) LowWaterMark() types.Version {
	c.snapMu.Lock()
	min, any := uint64(0), false
	for n := range c.openSnapshots {
		if !any || n < min {
			min, any = n, true
		}
	}
	c.snapMu.Unlock()
	if any {
		return types.TxnId(min)
	}
	return c.latestPublished()
}

// sortAppliedByKey orders writes surviving Assign by their final
// encoded typed key, which is both the lock-acquisition order across
// MVCC shards and the WAL/publish order within one commit (spec.md
// §4.4.2, §5). Dynamic writes only have a final key once Assign has
// run, so this must not be called any earlier.
func sortAppliedByKey(writes []*stagedWrite) {
	// insertion sort: commits rarely stage more than a handful of
	// writes, and this keeps ordering stable for equal keys (which
	// cannot occur — keys are either caller-unique or freshly
	// allocated).
	for i := 1; i < len(writes); i++ {
		for j := i; j > 0 && string(writes[j].key) < string(writes[j-1].key); j-- {
			writes[j], writes[j-1] = writes[j-1], writes[j]
		}
	}
}

// commit is invoked by Txn.Commit; see package doc for the full
// algorithm. Read-only transactions and transactions with no staged
// writes skip the commit lock entirely.
func (c *Coordinator) commit(t *Txn) (*CommitResult, error) {
	if t.readOnly || len(t.writes) == 0 {
		return &CommitResult{Outcomes: make([]WriteOutcome, len(t.writes))}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CommitDuration)

	// 1. OCC validation of the read-set: any key this txn observed
	// (present at some version, or absent) must be unchanged as of
	// now, or the whole transaction aborts (spec.md §4.4.1-2).
	conflict := func(keyStr string, seen, actual types.Version) (*CommitResult, error) {
		metrics.CommitsTotal.WithLabelValues("conflict").Inc()
		var ref *types.EntityRef
		if tk, err := keyspace.Decode([]byte(keyStr)); err == nil {
			r := refFromTypedKey(tk)
			ref = &r
		}
		return nil, types.VersionConflict(ref, seen, actual)
	}
	for keyStr, seenVersion := range t.reads {
		headVersion, ok := c.store.HeadVersion([]byte(keyStr))
		if !ok || headVersion.N != seenVersion.N {
			actual := types.TxnId(0)
			if ok {
				actual = headVersion
			}
			return conflict(keyStr, seenVersion, actual)
		}
	}
	for keyStr := range t.readAbsent {
		if _, ok := c.store.HeadVersion([]byte(keyStr)); ok {
			return conflict(keyStr, types.TxnId(0), types.TxnId(0))
		}
	}

	outcomes := make([]WriteOutcome, len(t.writes))
	var toApply []*stagedWrite

	// 2. CAS predicates: a failing predicate only skips that write.
	// Dynamic writes (event append, first-time vector upsert) have no
	// key to resolve a head against yet, so they carry no CAS predicate
	// and go straight through — they are blind writes by construction.
	for i, w := range t.writes {
		if w.dynamicAssign != nil {
			toApply = append(toApply, w)
			outcomes[i] = WriteOutcome{Applied: true} // version filled in below
			continue
		}
		head, exists := c.store.GetLatest(w.key)
		if w.casCheck != nil {
			if err := w.casCheck(head, exists); err != nil {
				outcomes[i] = WriteOutcome{Applied: false, Err: err}
				continue
			}
		}
		w.resolvedHead = head
		w.resolvedExists = exists
		toApply = append(toApply, w)
		outcomes[i] = WriteOutcome{Applied: true} // version filled in below
	}

	if len(toApply) == 0 {
		return &CommitResult{Outcomes: outcomes}, nil
	}

	// 3. Allocate one fresh txn_id for this commit.
	assignedTxnID := c.nextTxnID
	c.nextTxnID++
	now := c.clock()
	assignedVersion := types.TxnId(assignedTxnID)
	metrics.TxnIDHighWaterMark.Set(float64(assignedTxnID))

	// 4. Let each write compute its final bytes — and, for dynamic
	// writes, its final key — against the resolved head or the store
	// directly (event prev_hash, state/vector counters, freshly
	// allocated sequence/vector ids, ...). Key resolution must finish
	// before the typed-key sort below: a dynamic write's key does not
	// exist until this step runs.
	applied := make([]*stagedWrite, 0, len(toApply))
	for _, w := range toApply {
		var valueBytes []byte
		var domainVersion types.Version
		var tombstone bool
		var err error
		if w.dynamicAssign != nil {
			var finalKey []byte
			finalKey, valueBytes, domainVersion, tombstone, err = w.dynamicAssign(assignedTxnID, c)
			if err == nil {
				w.key = finalKey
			}
		} else {
			valueBytes, domainVersion, tombstone, err = w.assign(assignedTxnID, w.resolvedHead, w.resolvedExists)
		}
		if err != nil {
			idx := w.outcomeIndex
			outcomes[idx] = WriteOutcome{Applied: false, Err: err}
			continue
		}
		w.finalValueBytes = valueBytes
		w.finalTombstone = tombstone
		w.domainVersion = domainVersion
		applied = append(applied, w)
	}

	if len(applied) == 0 {
		// Nothing survived Assign; don't burn a txn_id on an empty commit.
		c.nextTxnID--
		return &CommitResult{Outcomes: outcomes}, nil
	}

	// Every applied write now has a resolved final key: order by it for
	// WAL/publish determinism (spec.md §4.4.2, §5).
	sortAppliedByKey(applied)

	// The WAL payload is framed generically here, from each write's
	// resolved final key/value/tombstone, rather than by the primitive
	// that staged the write — recovery then needs no per-primitive
	// decoding to know exactly which key to republish (wal.EncodeEntry).
	records := make([]wal.Record, 0, len(applied)+2)
	records = append(records, wal.Record{TypeTag: wal.TagTxBegin, TxnID: assignedTxnID, TimestampUs: uint64(now)})
	for _, w := range applied {
		payload := wal.EncodeEntry(w.key, w.finalTombstone, w.finalValueBytes)
		records = append(records, wal.Record{TypeTag: w.walTag, TxnID: assignedTxnID, TimestampUs: uint64(now), Payload: payload})
	}
	records = append(records, wal.Record{TypeTag: wal.TagTxCommit, TxnID: assignedTxnID, TimestampUs: uint64(now)})

	// 5. Append WAL, fsync per the writer's configured durability.
	if _, err := c.wal.Append(records, true); err != nil {
		metrics.CommitsTotal.WithLabelValues("aborted").Inc()
		return nil, types.Wrap(types.KindIoError, nil, fmt.Errorf("wal append: %w", err))
	}

	// 6. Publish to the MVCC store, in the same typed-key order.
	for _, w := range applied {
		c.store.Put(w.key, w.finalValueBytes, assignedVersion, now, w.finalTombstone)
		outcomes[w.outcomeIndex] = WriteOutcome{Applied: true, Version: w.domainVersion, TxnVersion: assignedVersion}
	}

	metrics.CommitsTotal.WithLabelValues("committed").Inc()
	return &CommitResult{Outcomes: outcomes, TxnID: assignedTxnID}, nil
}

func refFromTypedKey(tk keyspace.TypedKey) types.EntityRef {
	ref := types.EntityRef{Kind: tk.Kind, Run: tk.Run}
	switch len(tk.Local) {
	case 1:
		ref.Key = tk.Local[0]
	case 2:
		ref.Stream = tk.Local[0]
	}
	return ref
}
