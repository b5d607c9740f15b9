package snapshot

import (
	"encoding/binary"
	"sort"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

// Install writes a loaded snapshot's chain heads directly into a fresh
// store and seeds coord's counters from it. loaded == nil (no valid
// snapshot found) is a no-op: Replay then starts from WAL offset 0
// against empty state. store must have no existing chains for any key
// the snapshot carries — mvcc.Store.Put only accepts an out-of-order
// version for a key's very first write, so Install is only safe to
// call once, immediately after creating store.
func Install(store *mvcc.Store, coord *txn.Coordinator, loaded *Loaded) {
	if loaded == nil {
		return
	}
	for _, entries := range loaded.Blobs {
		for _, e := range entries {
			store.Put(e.Key, e.Value, types.TxnId(e.Version), types.Timestamp(e.Timestamp), e.Tombstone)
		}
	}
	coord.SeedCounters(loaded.Counters.NextTxnID, loaded.Counters.Sequence, loaded.Counters.Vector)
}

// Replay applies every WAL record after a snapshot's offset to store
// and coord, per spec.md §4.5.3: ops are buffered per txn_id between
// TxBegin and TxCommit and applied — in typed-key order — only once a
// matching TxCommit is seen; TxAbort or a missing commit discards them
// (R6). records is assumed already truncated at the first corrupt or
// unrecognized record by the caller's use of wal.ReadAll across the
// WAL's segments — Replay does not revalidate CRCs itself.
func Replay(store *mvcc.Store, coord *txn.Coordinator, records []wal.Record) {
	metrics.RecoveryReplayedRecords.Set(float64(len(records)))

	type pendingTxn struct {
		ts  uint64
		ops []wal.Record
	}
	buffers := make(map[uint64]*pendingTxn)

	for _, rec := range records {
		switch rec.TypeTag {
		case wal.TagTxBegin:
			buffers[rec.TxnID] = &pendingTxn{ts: rec.TimestampUs}
		case wal.TagTxCommit:
			p, ok := buffers[rec.TxnID]
			if !ok {
				continue
			}
			applyCommit(store, coord, rec.TxnID, p.ts, p.ops)
			delete(buffers, rec.TxnID)
		case wal.TagTxAbort:
			delete(buffers, rec.TxnID)
		default:
			if p, ok := buffers[rec.TxnID]; ok {
				p.ops = append(p.ops, rec)
			}
		}
	}
	// Any buffer still open here belongs to a transaction with no
	// TxCommit in the replayed records — discarded, per R6.
}

// applyCommit publishes one committed transaction's ops to store in
// typed-key order (matching the coordinator's original publish order,
// spec.md §4.4.2, §5) and advances coord's counters from each op's
// final key/value.
func applyCommit(store *mvcc.Store, coord *txn.Coordinator, txnID uint64, ts uint64, ops []wal.Record) {
	type decoded struct {
		key       []byte
		tombstone bool
		value     []byte
	}
	entries := make([]decoded, 0, len(ops))
	for _, op := range ops {
		key, tombstone, value, err := wal.DecodeEntry(op.Payload)
		if err != nil {
			continue
		}
		entries = append(entries, decoded{key: key, tombstone: tombstone, value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return string(entries[i].key) < string(entries[j].key) })

	for _, e := range entries {
		store.Put(e.key, e.value, types.TxnId(txnID), types.Timestamp(ts), e.tombstone)
		advanceCounters(coord, e.key)
	}
	coord.SeedTxnID(txnID + 1)
}

// advanceCounters re-derives the per-(run,stream) sequence and
// per-(run,collection) vector id counters from a replayed key's own
// encoding, the same fixed-width big-endian local segment convention
// pkg/event and pkg/vector use to keep lexicographic key order equal
// to numeric order. A state cell's counter needs no equivalent step:
// it travels embedded in the cell's own value bytes, already restored
// by the store.Put above.
func advanceCounters(coord *txn.Coordinator, key []byte) {
	tk, err := keyspace.Decode(key)
	if err != nil {
		return
	}
	switch tk.Kind {
	case types.PrimitiveEvent:
		if len(tk.Local) == 2 {
			if seq, ok := decodeSegment(tk.Local[1]); ok {
				coord.SeedSequence(tk.Run, tk.Local[0], seq+1)
			}
		}
	case types.PrimitiveVector:
		if len(tk.Local) == 3 && tk.Local[1] == "$id" {
			if id, ok := decodeSegment(tk.Local[2]); ok {
				coord.SeedVectorID(tk.Run, tk.Local[0], id+1)
			}
		}
	}
}

func decodeSegment(s string) (uint64, bool) {
	if len(s) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64([]byte(s)), true
}

// ReadOnlyView is the ephemeral reconstruction ReplayRun returns: a
// freshly replayed store, scoped by convention (not by filtering) to
// the run the caller replayed records for. It is never written to the
// real store, the WAL, or any live coordinator.
type ReadOnlyView struct {
	Run   types.RunId
	Store *mvcc.Store
}

// ReplayRun answers spec.md §4.5.5's replay_run(run_id) -> ReadOnlyView:
// it runs the same buffered-commit apply loop against a throwaway
// in-memory store and a throwaway coordinator, touching neither the
// real store nor the real coordinator's counters, and writes nothing
// to the WAL. Pure, deterministic, and safe to call concurrently any
// number of times (P1-P6) since every call gets its own scratch state.
func ReplayRun(run types.RunId, records []wal.Record) *ReadOnlyView {
	store := mvcc.New(1)
	scratch := txn.New(store, discardAppender{})
	Replay(store, scratch, records)
	return &ReadOnlyView{Run: run, Store: store}
}

type discardAppender struct{}

func (discardAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) {
	return 0, nil
}
