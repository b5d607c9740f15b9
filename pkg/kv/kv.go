package kv

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

const primitiveName = "kv"

func encodeKey(run types.RunId, key string) []byte {
	return keyspace.Encode(types.PrimitiveKV, run, key)
}

// Get resolves key at the transaction's snapshot.
func Get(tx *txn.Txn, run types.RunId, key string) (types.Versioned[[]byte], bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "get", time.Now())
	sv, found, err := tx.Get(encodeKey(run, key))
	if err != nil || !found {
		return types.Versioned[[]byte]{}, false, err
	}
	return types.Versioned[[]byte]{Value: sv.ValueBytes, Version: sv.Version, Timestamp: sv.Timestamp}, true, nil
}

// Exists reports whether key has a live (non-tombstone) value.
func Exists(tx *txn.Txn, run types.RunId, key string) (bool, error) {
	_, found, err := Get(tx, run, key)
	return found, err
}

// Put unconditionally stages key=value, overwriting any prior value.
func Put(tx *txn.Txn, run types.RunId, key string, value []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "put", time.Now())
	encKey := encodeKey(run, key)
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return value, types.TxnId(assignedTxnID), false, nil
	}
	return tx.StageWrite(encKey, wal.TagKVPut, value, false, nil, assign)
}

// Delete stages a tombstone for key. It is not an error to delete an
// absent key (I4: destroy leaves a tombstone regardless of whether the
// entity existed, idempotent at the API boundary).
func Delete(tx *txn.Txn, run types.RunId, key string) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "delete", time.Now())
	encKey := encodeKey(run, key)
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return nil, types.TxnId(assignedTxnID), true, nil
	}
	return tx.StageWrite(encKey, wal.TagKVDelete, nil, true, nil, assign)
}

// CASOption configures CAS's comparison: exactly one of ExpectedValue
// or ExpectedVersion should be set by callers (spec.md §6.1 "cas(value
// or version)").
type CASOption struct {
	ExpectedValue   []byte
	ExpectedVersion *types.Version
}

// CAS stages a conditional put: the predicate is evaluated against the
// chain head at commit time. A failing predicate does not abort the
// rest of the transaction (spec.md §4.4.2) — callers should inspect
// the corresponding WriteOutcome.
func CAS(tx *txn.Txn, run types.RunId, key string, opt CASOption, newValue []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "cas", time.Now())
	encKey := encodeKey(run, key)
	cas := func(head mvcc.StoredValue, exists bool) error {
		if opt.ExpectedVersion != nil {
			if !exists || !head.Version.Equal(*opt.ExpectedVersion) {
				return types.New(types.KindConflict, nil, "cas: version mismatch")
			}
			return nil
		}
		if !exists {
			return types.New(types.KindConflict, nil, "cas: key does not exist")
		}
		if !bytes.Equal(head.ValueBytes, opt.ExpectedValue) {
			return types.New(types.KindConflict, nil, "cas: value mismatch")
		}
		return nil
	}
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return newValue, types.TxnId(assignedTxnID), false, nil
	}
	return tx.StageWrite(encKey, wal.TagKVPut, newValue, false, cas, assign)
}

// Incr reads the current value as a big-endian int64 (0 if absent),
// adds delta, and stages the result. The read is recorded in the
// transaction's read-set, so a concurrent writer to the same key
// causes this commit to abort with VersionConflict rather than
// silently overwriting (spec.md §8.4 scenario 2's ABA-safety applies
// equally here).
func Incr(tx *txn.Txn, run types.RunId, key string, delta int64) (int64, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "incr", time.Now())
	encKey := encodeKey(run, key)
	current, found, err := tx.Get(encKey)
	if err != nil {
		return 0, err
	}
	var base int64
	if found && len(current.ValueBytes) == 8 {
		base = int64(binary.BigEndian.Uint64(current.ValueBytes))
	}
	next := base + delta

	var nb [8]byte
	binary.BigEndian.PutUint64(nb[:], uint64(next))
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return nb[:], types.TxnId(assignedTxnID), false, nil
	}
	if err := tx.StageWrite(encKey, wal.TagKVPut, nb[:], false, nil, assign); err != nil {
		return 0, err
	}
	return next, nil
}

// History returns key's newest-first version history.
func History(tx *txn.Txn, run types.RunId, key string, limit int) []types.Versioned[[]byte] {
	defer metrics.RecordPrimitiveOp(primitiveName, "history", time.Now())
	entries := tx.Store().History(encodeKey(run, key), limit, nil)
	out := make([]types.Versioned[[]byte], 0, len(entries))
	for _, e := range entries {
		out = append(out, types.Versioned[[]byte]{Value: e.ValueBytes, Version: e.Version, Timestamp: e.Timestamp})
	}
	return out
}

// MGet resolves multiple keys in one call.
func MGet(tx *txn.Txn, run types.RunId, keys []string) (map[string]types.Versioned[[]byte], error) {
	out := make(map[string]types.Versioned[[]byte], len(keys))
	for _, k := range keys {
		v, found, err := Get(tx, run, k)
		if err != nil {
			return nil, err
		}
		if found {
			out[k] = v
		}
	}
	return out, nil
}

// MPut stages multiple puts in one call.
func MPut(tx *txn.Txn, run types.RunId, kvs map[string][]byte) error {
	for k, v := range kvs {
		if err := Put(tx, run, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every live key under run, up to limit (0 = unbounded).
func Keys(tx *txn.Txn, run types.RunId, limit int) ([]string, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "keys", time.Now())
	lo, hi := keyspace.Range(types.PrimitiveKV, run)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), limit, nil)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil {
			continue
		}
		out = append(out, tk.Local[0])
	}
	return out, nil
}

// Scan lists live values under run, up to limit, resuming after
// cursor.
func Scan(tx *txn.Txn, run types.RunId, limit int, cursor []byte) (map[string]types.Versioned[[]byte], []byte, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "scan", time.Now())
	lo, hi := keyspace.Range(types.PrimitiveKV, run)
	items, next := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), limit, cursor)
	out := make(map[string]types.Versioned[[]byte], len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil {
			continue
		}
		out[tk.Local[0]] = types.Versioned[[]byte]{Value: it.Value.ValueBytes, Version: it.Value.Version, Timestamp: it.Value.Timestamp}
	}
	return out, next, nil
}
