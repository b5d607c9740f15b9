package event

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

const primitiveName = "event"

// seqSegment encodes a sequence number as a fixed-width 8-byte
// big-endian local-key segment, so lexicographic key order matches
// numeric sequence order (a decimal string would not: "10" < "2").
func seqSegment(n uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return string(b[:])
}

func decodeSeqSegment(s string) (uint64, bool) {
	if len(s) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64([]byte(s)), true
}

func encodeKey(run types.RunId, stream string, seq uint64) []byte {
	return keyspace.Encode(types.PrimitiveEvent, run, stream, seqSegment(seq))
}

func streamRange(run types.RunId, stream string) (lo, hi []byte) {
	return keyspace.Range(types.PrimitiveEvent, run, stream)
}

// encodeValue frames the stored value as an 8-byte big-endian prev_hash
// prefix followed by the raw event payload.
func encodeValue(prevHash uint64, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out[:8], prevHash)
	copy(out[8:], payload)
	return out
}

func decodeValue(b []byte) (prevHash uint64, payload []byte) {
	if len(b) < 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:]
}

// chainHash computes H(value_bytes || prev_hash) — the rolling chain
// hash each event's stored prev_hash is set to (spec.md §4.6). Using
// xxhash rather than a cryptographic hash: the chain exists to catch
// accidental corruption and concurrent-append races, not to resist a
// malicious writer with store access.
func chainHash(payload []byte, prevHash uint64) uint64 {
	var prevBuf [8]byte
	binary.BigEndian.PutUint64(prevBuf[:], prevHash)
	h := xxhash.New()
	h.Write(payload)
	h.Write(prevBuf[:])
	return h.Sum64()
}

func toVersioned(seq uint64, sv mvcc.StoredValue) types.Versioned[[]byte] {
	_, payload := decodeValue(sv.ValueBytes)
	return types.Versioned[[]byte]{Value: payload, Version: types.Sequence(seq), Timestamp: sv.Timestamp}
}

// chainState carries the (payload, prev_hash) of the most recently
// resolved event in a stream, either the stream's true head (read once,
// lazily, the first time a dynamicAssignFunc in a batch runs) or the
// previous event staged earlier in the same Append/BatchAppend call.
// Threading it through a shared pointer is what lets BatchAppend chain
// correctly: the head lookup against the store would otherwise be
// stale for every event after the first in the same commit, since
// nothing is published to the store until the whole commit's writes
// have all been assigned (pkg/txn's commit step 4 runs before step 6).
type chainState struct {
	resolved bool
	payload  []byte
	prevHash uint64
	hasPrior bool
}

func (cs *chainState) resolve(coord *txn.Coordinator, run types.RunId, stream string) {
	if cs.resolved {
		return
	}
	cs.resolved = true
	next, hasPrior := coord.PeekSequenceLocked(run, stream)
	if !hasPrior {
		cs.hasPrior = false
		return
	}
	headKey := encodeKey(run, stream, next-1)
	head, found := coord.Store().GetLatest(headKey)
	if !found {
		cs.hasPrior = false
		return
	}
	prevHash, payload := decodeValue(head.ValueBytes)
	cs.hasPrior = true
	cs.payload = payload
	cs.prevHash = prevHash
}

func stageOne(tx *txn.Txn, run types.RunId, stream string, payload []byte, cs *chainState) error {
	return tx.StageDynamicWrite(wal.TagEventAppend, func(assignedTxnID uint64, coord *txn.Coordinator) ([]byte, []byte, types.Version, bool, error) {
		cs.resolve(coord, run, stream)

		var newPrevHash uint64
		if cs.hasPrior {
			newPrevHash = chainHash(cs.payload, cs.prevHash)
		}
		seq := coord.NextSequenceLocked(run, stream)

		cs.hasPrior = true
		cs.payload = payload
		cs.prevHash = newPrevHash

		key := encodeKey(run, stream, seq)
		value := encodeValue(newPrevHash, payload)
		return key, value, types.Sequence(seq), false, nil
	})
}

// Append stages a single event onto stream. The assigned sequence is
// reported via the commit's WriteOutcome.Version, not returned here —
// it cannot be known until the commit lock resolves it.
func Append(tx *txn.Txn, run types.RunId, stream string, payload []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "append", time.Now())
	return stageOne(tx, run, stream, payload, &chainState{})
}

// BatchAppend stages len(payloads) events onto stream within one
// transaction, chaining each to the one before it in the batch (rather
// than to the store's stale pre-commit head) so the prev_hash chain
// stays intact across the whole batch.
func BatchAppend(tx *txn.Txn, run types.RunId, stream string, payloads [][]byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "batch_append", time.Now())
	cs := &chainState{}
	for _, p := range payloads {
		if err := stageOne(tx, run, stream, p, cs); err != nil {
			return err
		}
	}
	return nil
}

// Get resolves the event at (stream, seq).
func Get(tx *txn.Txn, run types.RunId, stream string, seq uint64) (types.Versioned[[]byte], bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "get", time.Now())
	sv, found, err := tx.Get(encodeKey(run, stream, seq))
	if err != nil || !found {
		return types.Versioned[[]byte]{}, false, err
	}
	return toVersioned(seq, sv), true, nil
}

// Range returns up to limit events (0 = no limit) in [from, to), in
// ascending sequence order. No continuation cursor is returned.
func Range(tx *txn.Txn, run types.RunId, stream string, from, to uint64, limit int) ([]types.Versioned[[]byte], error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "range", time.Now())
	lo := encodeKey(run, stream, from)
	hi := encodeKey(run, stream, to)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), limit, nil)
	out := make([]types.Versioned[[]byte], 0, len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) != 2 {
			continue
		}
		seq, ok := decodeSeqSegment(tk.Local[1])
		if !ok {
			continue
		}
		out = append(out, toVersioned(seq, it.Value))
	}
	return out, nil
}

// RevRange returns events in [from, to] in descending sequence order.
// Strata's MVCC store only scans ascending, so this materializes the
// ascending range and reverses it in place.
func RevRange(tx *txn.Txn, run types.RunId, stream string, from, to uint64, limit int) ([]types.Versioned[[]byte], error) {
	items, err := Range(tx, run, stream, from, to+1, 0)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// allStream scans every event in stream (used by Len/Latest/Head/
// VerifyChain, whose contracts need the whole chain rather than a
// bounded page).
func allStream(tx *txn.Txn, run types.RunId, stream string) ([]types.Versioned[[]byte], error) {
	lo, hi := streamRange(run, stream)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
	out := make([]types.Versioned[[]byte], 0, len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) != 2 {
			continue
		}
		seq, ok := decodeSeqSegment(tk.Local[1])
		if !ok {
			continue
		}
		out = append(out, toVersioned(seq, it.Value))
	}
	return out, nil
}

// Len returns the number of events ever appended to stream.
func Len(tx *txn.Txn, run types.RunId, stream string) (uint64, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "len", time.Now())
	events, err := allStream(tx, run, stream)
	if err != nil {
		return 0, err
	}
	return uint64(len(events)), nil
}

// Latest returns the newest event in stream.
func Latest(tx *txn.Txn, run types.RunId, stream string) (types.Versioned[[]byte], bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "latest", time.Now())
	events, err := allStream(tx, run, stream)
	if err != nil || len(events) == 0 {
		return types.Versioned[[]byte]{}, false, err
	}
	return events[len(events)-1], true, nil
}

// Head is an alias for Latest matching spec.md's operation name.
func Head(tx *txn.Txn, run types.RunId, stream string) (types.Versioned[[]byte], bool, error) {
	return Latest(tx, run, stream)
}

// Streams lists every stream name with at least one event under run.
func Streams(tx *txn.Txn, run types.RunId) ([]string, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "streams", time.Now())
	lo, hi := keyspace.Range(types.PrimitiveEvent, run)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) != 2 {
			continue
		}
		if !seen[tk.Local[0]] {
			seen[tk.Local[0]] = true
			out = append(out, tk.Local[0])
		}
	}
	return out, nil
}

// ChainBreak describes the first point where a stream's prev_hash
// chain does not match its recomputed value.
type ChainBreak struct {
	Stream       string
	Sequence     uint64
	ExpectedHash uint64
	ActualHash   uint64
}

// VerifyChain walks stream from sequence 0 and returns the first break
// in its prev_hash chain, if any (spec.md §4.6).
func VerifyChain(tx *txn.Txn, run types.RunId, stream string) (*ChainBreak, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "verify_chain", time.Now())
	lo, hi := streamRange(run, stream)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)

	var prevPayload []byte
	var prevHash uint64
	hasPrior := false

	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) != 2 {
			continue
		}
		seq, ok := decodeSeqSegment(tk.Local[1])
		if !ok {
			continue
		}
		storedPrevHash, payload := decodeValue(it.Value.ValueBytes)

		expected := uint64(0)
		if hasPrior {
			expected = chainHash(prevPayload, prevHash)
		}
		if storedPrevHash != expected {
			return &ChainBreak{Stream: stream, Sequence: seq, ExpectedHash: expected, ActualHash: storedPrevHash}, nil
		}

		prevPayload = payload
		prevHash = storedPrevHash
		hasPrior = true
	}
	return nil, nil
}
