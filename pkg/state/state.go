package state

import (
	"encoding/binary"
	"time"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

const primitiveName = "state"

func encodeKey(run types.RunId, cell string) []byte {
	return keyspace.Encode(types.PrimitiveState, run, cell)
}

func decodeValue(b []byte) (counter uint64, value []byte) {
	if len(b) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:]
}

func encodeValue(counter uint64, value []byte) []byte {
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out[:8], counter)
	copy(out[8:], value)
	return out
}

func toVersioned(sv mvcc.StoredValue) types.Versioned[[]byte] {
	counter, value := decodeValue(sv.ValueBytes)
	return types.Versioned[[]byte]{Value: value, Version: types.Counter(counter), Timestamp: sv.Timestamp}
}

// Get resolves cell at the transaction's snapshot.
func Get(tx *txn.Txn, run types.RunId, cell string) (types.Versioned[[]byte], bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "get", time.Now())
	sv, found, err := tx.Get(encodeKey(run, cell))
	if err != nil || !found {
		return types.Versioned[[]byte]{}, false, err
	}
	return toVersioned(sv), true, nil
}

// Exists reports whether cell currently holds a live value.
func Exists(tx *txn.Txn, run types.RunId, cell string) (bool, error) {
	_, found, err := Get(tx, run, cell)
	return found, err
}

// Init creates cell with an initial value and counter 1. It fails with
// KindAlreadyExists if the cell is already live at commit time.
func Init(tx *txn.Txn, run types.RunId, cell string, value []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "init", time.Now())
	encKey := encodeKey(run, cell)
	cas := func(head mvcc.StoredValue, exists bool) error {
		if exists {
			ref := types.NewStateRef(run, cell)
			return types.New(types.KindAlreadyExists, &ref, "state cell already exists")
		}
		return nil
	}
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return encodeValue(1, value), types.Counter(1), false, nil
	}
	preview := encodeValue(1, value)
	return tx.StageWrite(encKey, wal.TagStateSet, preview, false, cas, assign)
}

// Set unconditionally overwrites cell, incrementing its counter
// (1 if the cell did not previously exist).
func Set(tx *txn.Txn, run types.RunId, cell string, value []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "set", time.Now())
	encKey := encodeKey(run, cell)
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		counter, _ := decodeValue(head.ValueBytes)
		next := counter + 1
		return encodeValue(next, value), types.Counter(next), false, nil
	}
	return tx.StageWrite(encKey, wal.TagStateSet, encodeValue(0, value), false, nil, assign)
}

// CAS validates the cell's current counter equals expectedCounter
// before overwriting. A mismatch is reported via the commit's
// WriteOutcome, not a transaction-wide abort (spec.md §4.4.2).
func CAS(tx *txn.Txn, run types.RunId, cell string, expectedCounter uint64, value []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "cas", time.Now())
	encKey := encodeKey(run, cell)
	cas := func(head mvcc.StoredValue, exists bool) error {
		counter, _ := decodeValue(head.ValueBytes)
		if !exists && expectedCounter != 0 {
			return types.New(types.KindConflict, nil, "cas: cell does not exist")
		}
		if exists && counter != expectedCounter {
			ref := types.NewStateRef(run, cell)
			return types.VersionConflict(&ref, types.Counter(expectedCounter), types.Counter(counter))
		}
		return nil
	}
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		next := expectedCounter + 1
		return encodeValue(next, value), types.Counter(next), false, nil
	}
	return tx.StageWrite(encKey, wal.TagStateSet, encodeValue(expectedCounter+1, value), false, cas, assign)
}

// Delete stages a tombstone for cell.
func Delete(tx *txn.Txn, run types.RunId, cell string) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "delete", time.Now())
	encKey := encodeKey(run, cell)
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		counter, _ := decodeValue(head.ValueBytes)
		return nil, types.Counter(counter), true, nil
	}
	return tx.StageWrite(encKey, wal.TagStateDelete, nil, true, nil, assign)
}

// History returns cell's newest-first version history.
func History(tx *txn.Txn, run types.RunId, cell string, limit int) []types.Versioned[[]byte] {
	defer metrics.RecordPrimitiveOp(primitiveName, "history", time.Now())
	entries := tx.Store().History(encodeKey(run, cell), limit, nil)
	out := make([]types.Versioned[[]byte], 0, len(entries))
	for _, e := range entries {
		out = append(out, toVersioned(e))
	}
	return out
}

// List returns the names of every live state cell under run.
func List(tx *txn.Txn, run types.RunId, limit int) ([]string, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "list", time.Now())
	lo, hi := keyspace.Range(types.PrimitiveState, run)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), limit, nil)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) == 0 {
			continue
		}
		out = append(out, tk.Local[0])
	}
	return out, nil
}
