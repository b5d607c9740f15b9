package txn

import (
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

// State is a transaction's position in its lifecycle (see package doc).
type State int

const (
	StateIdle State = iota
	StateActive
	StateValidating
	StateApplying
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateValidating:
		return "validating"
	case StateApplying:
		return "applying"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// assignFunc computes a write's final on-disk representation once its
// position in commit order is fixed and the coordinator has resolved
// the current chain head for its key. It returns the value bytes to
// store, the domain-specific version to surface to the caller (event
// sequence, state counter, vector id, or the commit's TxnId for kv/json/
// run), and whether this write is a tombstone. The coordinator frames
// the WAL payload itself from the write's final key/value/tombstone
// (wal.EncodeEntry) once every assign in the commit has run, so callers
// never construct WAL bytes directly. A non-nil error means this write
// does not apply — it is reported in the transaction's outcome, not as
// a transaction-wide abort.
type assignFunc func(assignedTxnID uint64, resolvedHead mvcc.StoredValue, resolvedExists bool) (valueBytes []byte, domainVersion types.Version, tombstone bool, err error)

// casCheckFunc evaluates a compare-and-swap predicate against the
// current chain head. A non-nil error means the predicate failed and
// this write is skipped without aborting the rest of the transaction
// (spec.md §4.4.2).
type casCheckFunc func(head mvcc.StoredValue, exists bool) error

// dynamicAssignFunc computes both the final typed key and the final
// on-disk representation of a write whose target key cannot be known
// until commit time — an event append (key embeds the sequence, which
// is only allocated once the per-stream counter advances under the
// commit lock) or a first-time vector upsert (key embeds the
// never-reused VectorId). It is given direct coordinator access because
// its "previous state" lookup (the prior event in the stream, say) is
// not the resolved head of its own target key the way a normal write's
// is, and it may need to allocate from a per-stream/per-collection
// counter that only the coordinator owns.
type dynamicAssignFunc func(assignedTxnID uint64, coord *Coordinator) (finalKey []byte, valueBytes []byte, domainVersion types.Version, tombstone bool, err error)

// stagedWrite is one write accumulated by StageWrite, pending
// resolution at Commit time.
type stagedWrite struct {
	key           []byte
	casCheck      casCheckFunc
	assign        assignFunc
	dynamicAssign dynamicAssignFunc
	walTag        wal.TypeTag
	outcomeIndex  int

	// previewValueBytes/previewTombstone are what the caller intends to
	// write, supplied at StageWrite time so Get can serve read-your-
	// writes before Commit has resolved this write's final bytes
	// against its head (the two can differ — e.g. an event append's
	// final payload embeds prev_hash, known only at commit time).
	previewValueBytes []byte
	previewTombstone  bool

	resolvedHead   mvcc.StoredValue
	resolvedExists bool

	finalValueBytes []byte
	finalTombstone  bool
	domainVersion   types.Version
}

// WriteOutcome reports what happened to one staged write after Commit.
type WriteOutcome struct {
	Applied    bool
	Version    types.Version // domain version, valid iff Applied
	TxnVersion types.Version // commit's TxnId, valid iff Applied
	Err        error         // set iff !Applied (CAS miss or Assign error)
}

// CommitResult is the result of committing a transaction: one outcome
// per staged write, in StageWrite call order, plus the commit's
// assigned txn_id (0 for read-only or no-op commits).
type CommitResult struct {
	Outcomes []WriteOutcome
	TxnID    uint64
}

// Txn is a single transaction's accumulated read-set and write-set.
// A Txn is not safe for concurrent use by multiple goroutines.
type Txn struct {
	coord           *Coordinator
	snapshotVersion types.Version
	readOnly        bool
	state           State

	reads      map[string]types.Version // key -> version observed
	readAbsent map[string]bool          // key -> observed absent
	writeIndex map[string]int           // key -> index into writes, for read-your-writes
	writes     []*stagedWrite

	// touchedPaths tracks, per resource (e.g. a JSON doc id), every
	// path this transaction has written so far, so a second write whose
	// path is an ancestor or descendant of an earlier one in the same
	// transaction can be rejected (spec.md §4.4.2) rather than silently
	// clobbering it.
	touchedPaths map[string][][]string

	// released guards against double-releasing this txn's pinned
	// snapshot version from the coordinator's low-water-mark registry:
	// Commit and Rollback both call release, and Rollback is safe to
	// call after a failed Commit.
	released bool
}

// release unpins this transaction's snapshot version from the
// coordinator's open-snapshot registry exactly once, however the
// transaction ends (committed, aborted, or rolled back).
func (t *Txn) release() {
	if t.released {
		return
	}
	t.released = true
	t.coord.releaseSnapshot(t.snapshotVersion)
}

// SnapshotVersion returns the txn_id this transaction's reads are
// pinned to.
func (t *Txn) SnapshotVersion() types.Version { return t.snapshotVersion }

// IsActive reports whether the transaction can still accept reads and
// writes (spec.md §6.1's is_active).
func (t *Txn) IsActive() bool { return t.state == StateActive }

// Info returns the transaction's current lifecycle state.
func (t *Txn) Info() State { return t.state }

// Store exposes the underlying MVCC store for read-only queries that
// fall outside the read-your-writes contract (history, prefix scans):
// these are audit/listing views, not values a commit's OCC validation
// needs to protect.
func (t *Txn) Store() *mvcc.Store { return t.coord.store }

// Get resolves key as of this transaction's snapshot, consulting its
// own write-set first (read-your-writes) before falling back to the
// MVCC store at snapshotVersion. It records the observation in the
// read-set so Commit can detect a conflicting change.
func (t *Txn) Get(encodedKey []byte) (mvcc.StoredValue, bool, error) {
	if !t.IsActive() {
		return mvcc.StoredValue{}, false, types.New(types.KindTransactionError, nil, "transaction is not active")
	}
	ks := string(encodedKey)

	if idx, ok := t.writeIndex[ks]; ok {
		w := t.writes[idx]
		if w.previewTombstone {
			return mvcc.StoredValue{}, false, nil
		}
		return mvcc.StoredValue{ValueBytes: w.previewValueBytes, Tombstone: false}, true, nil
	}

	val, found := t.coord.store.GetAt(encodedKey, t.snapshotVersion)
	if found {
		t.reads[ks] = val.Version
	} else {
		t.readAbsent[ks] = true
	}
	if !found || val.Tombstone {
		return mvcc.StoredValue{}, false, nil
	}
	return val, true, nil
}

// MarkRead records that the transaction observed key at version v
// without materializing the value (used by primitives that resolve
// the value through a more specific lookup than Get's raw GetAt, e.g.
// pkg/event's stream head scan).
func (t *Txn) MarkRead(encodedKey []byte, v types.Version) {
	t.reads[string(encodedKey)] = v
}

// MarkReadAbsent records that key was observed absent at the
// transaction's snapshot.
func (t *Txn) MarkReadAbsent(encodedKey []byte) {
	t.readAbsent[string(encodedKey)] = true
}

// StageWrite accumulates a pending write. cas may be nil for an
// unconditional write. previewValueBytes/previewTombstone are served
// back by Get for read-your-writes before Commit runs; they need not
// match the bytes Assign finally computes (e.g. an event append's
// preview omits prev_hash, which is only known at commit time). assign
// is invoked during Commit once this write's position in commit order
// and resolved head are known. Keys must be unique within a
// transaction; staging the same key twice replaces the earlier pending
// write with the later one, matching last-write-wins within a single
// transaction body.
func (t *Txn) StageWrite(encodedKey []byte, tag wal.TypeTag, previewValueBytes []byte, previewTombstone bool, cas casCheckFunc, assign assignFunc) error {
	if !t.IsActive() {
		return types.New(types.KindTransactionError, nil, "transaction is not active")
	}
	ks := string(encodedKey)
	w := &stagedWrite{
		key:               append([]byte(nil), encodedKey...),
		casCheck:          cas,
		assign:            assign,
		walTag:            tag,
		previewValueBytes: previewValueBytes,
		previewTombstone:  previewTombstone,
	}
	if idx, ok := t.writeIndex[ks]; ok {
		w.outcomeIndex = idx
		t.writes[idx] = w
	} else {
		w.outcomeIndex = len(t.writes)
		t.writeIndex[ks] = w.outcomeIndex
		t.writes = append(t.writes, w)
	}
	return nil
}

// StageDynamicWrite accumulates a write whose target key is not known
// until commit time — an event append (key embeds a sequence allocated
// under the commit lock) or a first-time vector upsert (key embeds a
// freshly allocated VectorId). Such writes are blind: they carry no CAS
// predicate and are not tracked in the read-set, since nothing could
// have observed their key before it existed. Concurrent dynamic writes
// never conflict with each other or with anything else; they are
// serialized purely by the commit lock (spec.md §4.4.2).
func (t *Txn) StageDynamicWrite(tag wal.TypeTag, fn dynamicAssignFunc) error {
	if !t.IsActive() {
		return types.New(types.KindTransactionError, nil, "transaction is not active")
	}
	w := &stagedWrite{
		dynamicAssign: fn,
		walTag:        tag,
		outcomeIndex:  len(t.writes),
	}
	t.writes = append(t.writes, w)
	return nil
}

// Commit validates and applies the transaction. On a version conflict
// the transaction transitions to Aborted and the error is a
// *types.Error of KindVersionConflict.
func (t *Txn) Commit() (*CommitResult, error) {
	if t.state != StateActive {
		return nil, types.New(types.KindTransactionError, nil, "transaction is not active")
	}
	t.state = StateValidating
	result, err := t.coord.commit(t)
	if err != nil {
		t.state = StateAborted
		t.release()
		return nil, err
	}
	t.state = StateCommitted
	t.release()
	return result, nil
}

// Rollback discards the transaction's read-set and write-set without
// touching the store. It is always safe to call, including after a
// failed Commit.
func (t *Txn) Rollback() {
	t.release()
	if t.state == StateCommitted {
		return
	}
	t.state = StateAborted
	t.reads = nil
	t.readAbsent = nil
	t.writes = nil
	t.writeIndex = nil
	t.touchedPaths = nil
}

// pathOverlaps reports whether a and b are equal or one is a prefix of
// the other — i.e. one path is an ancestor or descendant of the other.
func pathOverlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarkPathWrite records that this transaction is about to write path
// within resource (a JSON doc id, say). It fails if path overlaps a
// path this transaction already wrote within the same resource.
func (t *Txn) MarkPathWrite(resource string, path []string) error {
	for _, existing := range t.touchedPaths[resource] {
		if pathOverlaps(existing, path) {
			return types.New(types.KindConflict, nil, "overlapping path write within transaction")
		}
	}
	if t.touchedPaths == nil {
		t.touchedPaths = make(map[string][][]string)
	}
	t.touchedPaths[resource] = append(t.touchedPaths[resource], path)
	return nil
}
