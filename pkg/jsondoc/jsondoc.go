package jsondoc

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

const primitiveName = "json"

const (
	maxDocSize   = 16 * 1024 * 1024
	maxDepth     = 100
	maxPathLen   = 256
	maxArraySize = 1048576
)

func encodeKey(run types.RunId, docID string) []byte {
	return keyspace.Encode(types.PrimitiveJSON, run, docID)
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func invalidInput(run types.RunId, docID, path, msg string) error {
	ref := types.NewJSONRef(run, docID, path)
	return types.New(types.KindInvalidInput, &ref, msg)
}

// validateDoc enforces spec.md §6.4's limits: overall byte size,
// nesting depth, and per-array element count.
func validateDoc(run types.RunId, docID, path string, doc []byte) error {
	if len(doc) > maxDocSize {
		return invalidInput(run, docID, path, "document exceeds maximum size")
	}
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return invalidInput(run, docID, path, "invalid json")
	}
	if depth := depthOf(v, 1); depth > maxDepth {
		return invalidInput(run, docID, path, "document exceeds maximum nesting depth")
	}
	if err := checkArraySizes(v); err != nil {
		return invalidInput(run, docID, path, err.Error())
	}
	return nil
}

func depthOf(v interface{}, cur int) int {
	switch t := v.(type) {
	case map[string]interface{}:
		max := cur
		for _, vv := range t {
			if d := depthOf(vv, cur+1); d > max {
				max = d
			}
		}
		return max
	case []interface{}:
		max := cur
		for _, vv := range t {
			if d := depthOf(vv, cur+1); d > max {
				max = d
			}
		}
		return max
	default:
		return cur
	}
}

func checkArraySizes(v interface{}) error {
	switch t := v.(type) {
	case map[string]interface{}:
		for _, vv := range t {
			if err := checkArraySizes(vv); err != nil {
				return err
			}
		}
	case []interface{}:
		if len(t) > maxArraySize {
			return errArrayTooLarge
		}
		for _, vv := range t {
			if err := checkArraySizes(vv); err != nil {
				return err
			}
		}
	}
	return nil
}

var errArrayTooLarge = errors.New("array exceeds maximum size")

func currentDocBytes(tx *txn.Txn, run types.RunId, docID string) ([]byte, bool, error) {
	sv, found, err := tx.Get(encodeKey(run, docID))
	if err != nil || !found {
		return nil, found, err
	}
	return sv.ValueBytes, true, nil
}

// rewrite is the shared path for every path-based mutation: resolve
// the current document (or {} if absent), apply mutate, validate the
// result, and stage the whole rewritten document as one write. Two
// path writes to the same document within one transaction conflict if
// the paths are equal or either is an ancestor or descendant of the other.
func rewrite(tx *txn.Txn, run types.RunId, docID, path string, mutate func(doc []byte) ([]byte, error)) error {
	segs := splitPath(path)
	if len(segs) > maxPathLen {
		return invalidInput(run, docID, path, "path exceeds maximum length")
	}
	if err := tx.MarkPathWrite(docID, segs); err != nil {
		return err
	}
	cur, found, err := currentDocBytes(tx, run, docID)
	if err != nil {
		return err
	}
	if !found {
		cur = []byte("{}")
	}
	newDoc, err := mutate(cur)
	if err != nil {
		return invalidInput(run, docID, path, "invalid json mutation: "+err.Error())
	}
	if err := validateDoc(run, docID, path, newDoc); err != nil {
		return err
	}
	encKey := encodeKey(run, docID)
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return newDoc, types.TxnId(assignedTxnID), false, nil
	}
	return tx.StageWrite(encKey, wal.TagJSONSet, newDoc, false, nil, assign)
}

// Get resolves the whole document at docID.
func Get(tx *txn.Txn, run types.RunId, docID string) (types.Versioned[[]byte], bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "get", time.Now())
	sv, found, err := tx.Get(encodeKey(run, docID))
	if err != nil || !found {
		return types.Versioned[[]byte]{}, false, err
	}
	return types.Versioned[[]byte]{Value: sv.ValueBytes, Version: sv.Version, Timestamp: sv.Timestamp}, true, nil
}

// Query resolves the value at path within docID without staging a
// write (spec.md's path-aware read).
func Query(tx *txn.Txn, run types.RunId, docID, path string) (json.RawMessage, bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "query", time.Now())
	doc, found, err := currentDocBytes(tx, run, docID)
	if err != nil || !found {
		return nil, false, err
	}
	if path == "" {
		return json.RawMessage(doc), true, nil
	}
	res := gjson.GetBytes(doc, path)
	if !res.Exists() {
		return nil, false, nil
	}
	return json.RawMessage(res.Raw), true, nil
}

// Set overwrites the whole document (path == "") or the value at path.
func Set(tx *txn.Txn, run types.RunId, docID, path string, value json.RawMessage) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "set", time.Now())
	return rewrite(tx, run, docID, path, func(doc []byte) ([]byte, error) {
		if path == "" {
			return value, nil
		}
		return sjson.SetRawBytes(doc, path, value)
	})
}

// Delete removes path from the document (or the whole document if
// path == "").
func Delete(tx *txn.Txn, run types.RunId, docID, path string) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "delete", time.Now())
	if path == "" {
		if err := tx.MarkPathWrite(docID, nil); err != nil {
			return err
		}
		assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
			return nil, types.TxnId(assignedTxnID), true, nil
		}
		return tx.StageWrite(encodeKey(run, docID), wal.TagJSONDelete, nil, true, nil, assign)
	}
	return rewrite(tx, run, docID, path, func(doc []byte) ([]byte, error) {
		return sjson.DeleteBytes(doc, path)
	})
}

// Merge shallow-merges the object fields into the object at path,
// overwriting existing keys by name.
func Merge(tx *txn.Txn, run types.RunId, docID, path string, fields map[string]json.RawMessage) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "merge", time.Now())
	return rewrite(tx, run, docID, path, func(doc []byte) ([]byte, error) {
		out := doc
		for k, v := range fields {
			subPath := k
			if path != "" {
				subPath = path + "." + k
			}
			merged, err := sjson.SetRawBytes(out, subPath, v)
			if err != nil {
				return nil, err
			}
			out = merged
		}
		return out, nil
	})
}

// ArrayPush appends value to the array at path, creating it if absent.
func ArrayPush(tx *txn.Txn, run types.RunId, docID, path string, value json.RawMessage) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "array_push", time.Now())
	return rewrite(tx, run, docID, path, func(doc []byte) ([]byte, error) {
		return sjson.SetRawBytes(doc, path+".-1", value)
	})
}

// ArrayPop removes and returns the last element of the array at path.
func ArrayPop(tx *txn.Txn, run types.RunId, docID, path string) (json.RawMessage, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "array_pop", time.Now())
	var popped json.RawMessage
	err := rewrite(tx, run, docID, path, func(doc []byte) ([]byte, error) {
		res := gjson.GetBytes(doc, path)
		if !res.IsArray() || len(res.Array()) == 0 {
			return doc, nil
		}
		arr := res.Array()
		popped = json.RawMessage(arr[len(arr)-1].Raw)
		return sjson.DeleteBytes(doc, path+"."+strconv.Itoa(len(arr)-1))
	})
	return popped, err
}

// Increment adds delta to the numeric value at path (0 if the path is
// absent) and stages the result.
func Increment(tx *txn.Txn, run types.RunId, docID, path string, delta float64) (float64, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "increment", time.Now())
	var result float64
	err := rewrite(tx, run, docID, path, func(doc []byte) ([]byte, error) {
		res := gjson.GetBytes(doc, path)
		base := 0.0
		if res.Exists() {
			base = res.Float()
		}
		result = base + delta
		return sjson.SetBytes(doc, path, result)
	})
	return result, err
}

// CAS stages a conditional whole-document overwrite: the predicate is
// evaluated against the chain head at commit time. A failing predicate
// does not abort the rest of the transaction.
func CAS(tx *txn.Txn, run types.RunId, docID string, expectedVersion *types.Version, newDoc []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "cas", time.Now())
	if err := validateDoc(run, docID, "", newDoc); err != nil {
		return err
	}
	encKey := encodeKey(run, docID)
	cas := func(head mvcc.StoredValue, exists bool) error {
		if expectedVersion == nil {
			return nil
		}
		if !exists || !head.Version.Equal(*expectedVersion) {
			return types.New(types.KindConflict, nil, "cas: version mismatch")
		}
		return nil
	}
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return newDoc, types.TxnId(assignedTxnID), false, nil
	}
	return tx.StageWrite(encKey, wal.TagJSONSet, newDoc, false, cas, assign)
}

// History returns docID's newest-first version history.
func History(tx *txn.Txn, run types.RunId, docID string, limit int) []types.Versioned[[]byte] {
	defer metrics.RecordPrimitiveOp(primitiveName, "history", time.Now())
	entries := tx.Store().History(encodeKey(run, docID), limit, nil)
	out := make([]types.Versioned[[]byte], 0, len(entries))
	for _, e := range entries {
		out = append(out, types.Versioned[[]byte]{Value: e.ValueBytes, Version: e.Version, Timestamp: e.Timestamp})
	}
	return out
}

// List returns the ids of every live document under run.
func List(tx *txn.Txn, run types.RunId, limit int) ([]string, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "list", time.Now())
	lo, hi := keyspace.Range(types.PrimitiveJSON, run)
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

// Count returns the number of live documents under run.
func Count(tx *txn.Txn, run types.RunId) (int, error) {
	ids, err := List(tx, run, 0)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
