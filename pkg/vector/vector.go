package vector

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

const primitiveName = "vector"

// Metric identifies the distance/similarity function a collection
// searches with.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricDot    Metric = "dot"
)

const (
	segConfig  = "$cfg"
	segID      = "$id"
	segKeyMap  = "$key"
)

// Config is a collection's immutable configuration, fixed at creation.
type Config struct {
	Dimension uint32
	Metric    Metric
}

func encodeConfigKey(run types.RunId, collection string) []byte {
	return keyspace.Encode(types.PrimitiveVector, run, collection, segConfig)
}

func encodeDataKey(run types.RunId, collection string, id uint64) []byte {
	var idSeg [8]byte
	binary.BigEndian.PutUint64(idSeg[:], id)
	return keyspace.Encode(types.PrimitiveVector, run, collection, segID, string(idSeg[:]))
}

func encodeMappingKey(run types.RunId, collection, key string) []byte {
	return keyspace.Encode(types.PrimitiveVector, run, collection, segKeyMap, key)
}

func dataRange(run types.RunId, collection string) (lo, hi []byte) {
	return keyspace.Range(types.PrimitiveVector, run, collection, segID)
}

func mappingRange(run types.RunId, collection string) (lo, hi []byte) {
	return keyspace.Range(types.PrimitiveVector, run, collection, segKeyMap)
}

func collectionRange(run types.RunId) (lo, hi []byte) {
	return keyspace.Range(types.PrimitiveVector, run)
}

func encodeConfig(cfg Config) []byte {
	var buf bytes.Buffer
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], cfg.Dimension)
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], uint32(len(cfg.Metric)))
	buf.Write(u32[:])
	buf.WriteString(string(cfg.Metric))
	return buf.Bytes()
}

func decodeConfig(b []byte) (Config, bool) {
	if len(b) < 8 {
		return Config{}, false
	}
	dim := binary.BigEndian.Uint32(b[:4])
	mlen := binary.BigEndian.Uint32(b[4:8])
	if len(b) < int(8+mlen) {
		return Config{}, false
	}
	metric := string(b[8 : 8+mlen])
	return Config{Dimension: dim, Metric: Metric(metric)}, true
}

func encodeVectorValue(key string, vec []float32, meta []byte) []byte {
	var buf bytes.Buffer
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], uint32(len(key)))
	buf.Write(u32[:])
	buf.WriteString(key)
	binary.BigEndian.PutUint32(u32[:], uint32(len(vec)))
	buf.Write(u32[:])
	for _, f := range vec {
		binary.BigEndian.PutUint32(u32[:], math.Float32bits(f))
		buf.Write(u32[:])
	}
	buf.Write(meta)
	return buf.Bytes()
}

func decodeVectorValue(b []byte) (key string, vec []float32, meta []byte) {
	if len(b) < 4 {
		return "", nil, nil
	}
	klen := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if len(b) < int(klen)+4 {
		return "", nil, nil
	}
	key = string(b[:klen])
	b = b[klen:]
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	vec = make([]float32, n)
	for i := uint32(0); i < n; i++ {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(b[:4]))
		b = b[4:]
	}
	meta = b
	return key, vec, meta
}

func encodeID(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func decodeID(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

func notFound(run types.RunId, collection, key string) error {
	ref := types.NewVectorRef(run, collection, key)
	return types.New(types.KindNotFound, &ref, "vector not found")
}

// CreateCollection fixes collection's dimension and distance metric.
// It fails with KindAlreadyExists if the collection already exists.
func CreateCollection(tx *txn.Txn, run types.RunId, collection string, dimension uint32, metric Metric) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "create_collection", time.Now())
	encKey := encodeConfigKey(run, collection)
	cfg := Config{Dimension: dimension, Metric: metric}
	value := encodeConfig(cfg)
	cas := func(head mvcc.StoredValue, exists bool) error {
		if exists {
			ref := types.NewVectorRef(run, collection, "")
			return types.New(types.KindAlreadyExists, &ref, "vector collection already exists")
		}
		return nil
	}
	assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return value, types.TxnId(assignedTxnID), false, nil
	}
	return tx.StageWrite(encKey, wal.TagVectorUpsert, value, false, cas, assign)
}

// Info returns collection's immutable configuration.
func Info(tx *txn.Txn, run types.RunId, collection string) (Config, bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "info", time.Now())
	sv, found, err := tx.Get(encodeConfigKey(run, collection))
	if err != nil || !found {
		return Config{}, false, err
	}
	cfg, ok := decodeConfig(sv.ValueBytes)
	return cfg, ok, nil
}

// Exists reports whether collection currently exists.
func Exists(tx *txn.Txn, run types.RunId, collection string) (bool, error) {
	_, found, err := Info(tx, run, collection)
	return found, err
}

// ListCollections returns the names of every live collection under run.
func ListCollections(tx *txn.Txn, run types.RunId) ([]string, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "list_collections", time.Now())
	lo, hi := collectionRange(run)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) == 0 {
			continue
		}
		if !seen[tk.Local[0]] {
			seen[tk.Local[0]] = true
			out = append(out, tk.Local[0])
		}
	}
	return out, nil
}

// DropCollection tombstones the collection's config and every live
// vector and key mapping under it in one transaction.
func DropCollection(tx *txn.Txn, run types.RunId, collection string) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "drop_collection", time.Now())
	lo, hi := keyspace.Range(types.PrimitiveVector, run, collection)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
	for _, it := range items {
		if !it.Found {
			continue
		}
		key := append([]byte(nil), it.Key...)
		assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
			return nil, types.TxnId(assignedTxnID), true, nil
		}
		if err := tx.StageWrite(key, wal.TagVectorDelete, nil, true, nil, assign); err != nil {
			return err
		}
	}
	return nil
}

func lookupID(tx *txn.Txn, run types.RunId, collection, key string) (uint64, bool, error) {
	sv, found, err := tx.Get(encodeMappingKey(run, collection, key))
	if err != nil || !found {
		return 0, false, err
	}
	id, ok := decodeID(sv.ValueBytes)
	return id, ok, nil
}

// Upsert validates vec's dimension against collection's config and
// stages the write. An existing live key is overwritten in place at
// its stable id; a new key is assigned a freshly allocated id that is
// never reused, even across later deletes (spec.md §4.6).
func Upsert(tx *txn.Txn, run types.RunId, collection, key string, vec []float32, meta []byte) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "upsert", time.Now())
	cfg, found, err := Info(tx, run, collection)
	if err != nil {
		return err
	}
	if !found {
		ref := types.NewVectorRef(run, collection, key)
		return types.New(types.KindNotFound, &ref, "vector collection does not exist")
	}
	if uint32(len(vec)) != cfg.Dimension {
		ref := types.NewVectorRef(run, collection, key)
		return types.New(types.KindDimensionMismatch, &ref, "vector dimension does not match collection config")
	}

	existingID, hasExisting, err := lookupID(tx, run, collection, key)
	if err != nil {
		return err
	}
	value := encodeVectorValue(key, vec, meta)

	if hasExisting {
		dataKey := encodeDataKey(run, collection, existingID)
		assign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
			return value, types.Sequence(existingID), false, nil
		}
		return tx.StageWrite(dataKey, wal.TagVectorUpsert, value, false, nil, assign)
	}

	// New key: the id can only be allocated once the commit lock is
	// held. The mapping write below is staged second and reads
	// allocatedID, which pkg/txn guarantees is resolved first — applied
	// writes are assigned in stage order (see pkg/txn's commit step 4).
	var allocatedID uint64
	err = tx.StageDynamicWrite(wal.TagVectorUpsert, func(assignedTxnID uint64, coord *txn.Coordinator) ([]byte, []byte, types.Version, bool, error) {
		id := coord.NextVectorIDLocked(run, collection)
		allocatedID = id
		dataKey := encodeDataKey(run, collection, id)
		return dataKey, value, types.Sequence(id), false, nil
	})
	if err != nil {
		return err
	}

	mappingKey := encodeMappingKey(run, collection, key)
	mappingAssign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return encodeID(allocatedID), types.Sequence(allocatedID), false, nil
	}
	return tx.StageWrite(mappingKey, wal.TagVectorUpsert, nil, false, nil, mappingAssign)
}

// Get resolves key's current vector.
func Get(tx *txn.Txn, run types.RunId, collection, key string) (types.Versioned[[]float32], bool, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "get", time.Now())
	id, found, err := lookupID(tx, run, collection, key)
	if err != nil || !found {
		return types.Versioned[[]float32]{}, false, err
	}
	sv, found, err := tx.Get(encodeDataKey(run, collection, id))
	if err != nil || !found {
		return types.Versioned[[]float32]{}, false, err
	}
	_, vec, _ := decodeVectorValue(sv.ValueBytes)
	return types.Versioned[[]float32]{Value: vec, Version: types.Sequence(id), Timestamp: sv.Timestamp}, true, nil
}

// Delete tombstones key's vector and its id mapping. Absent keys are a
// no-op, matching the other primitives' idempotent delete.
func Delete(tx *txn.Txn, run types.RunId, collection, key string) error {
	defer metrics.RecordPrimitiveOp(primitiveName, "delete", time.Now())
	id, found, err := lookupID(tx, run, collection, key)
	if err != nil || !found {
		return err
	}
	dataKey := encodeDataKey(run, collection, id)
	mappingKey := encodeMappingKey(run, collection, key)

	dataAssign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return nil, types.Sequence(id), true, nil
	}
	if err := tx.StageWrite(dataKey, wal.TagVectorDelete, nil, true, nil, dataAssign); err != nil {
		return err
	}
	mappingAssign := func(assignedTxnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return nil, types.Sequence(id), true, nil
	}
	return tx.StageWrite(mappingKey, wal.TagVectorDelete, nil, true, nil, mappingAssign)
}

// Count returns the number of live vectors in collection.
func Count(tx *txn.Txn, run types.RunId, collection string) (int, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "count", time.Now())
	lo, hi := dataRange(run, collection)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
	n := 0
	for _, it := range items {
		if it.Found {
			n++
		}
	}
	return n, nil
}

// ListKeys returns the user keys of every live vector in collection.
func ListKeys(tx *txn.Txn, run types.RunId, collection string) ([]string, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "list_keys", time.Now())
	lo, hi := mappingRange(run, collection)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) != 3 {
			continue
		}
		out = append(out, tk.Local[2])
	}
	return out, nil
}

// Scan returns up to limit live vectors in collection, resuming after
// cursor.
func Scan(tx *txn.Txn, run types.RunId, collection string, limit int, cursor []byte) (map[string]types.Versioned[[]float32], []byte, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "scan", time.Now())
	lo, hi := dataRange(run, collection)
	items, next := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), limit, cursor)
	out := make(map[string]types.Versioned[[]float32], len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		tk, err := keyspace.Decode(it.Key)
		if err != nil || len(tk.Local) != 3 {
			continue
		}
		id, ok := decodeSeqFromIDSeg(tk.Local[2])
		if !ok {
			continue
		}
		key, vec, _ := decodeVectorValue(it.Value.ValueBytes)
		out[key] = types.Versioned[[]float32]{Value: vec, Version: types.Sequence(id), Timestamp: it.Value.Timestamp}
	}
	return out, next, nil
}

func decodeSeqFromIDSeg(seg string) (uint64, bool) {
	if len(seg) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64([]byte(seg)), true
}

// History returns key's newest-first version history.
func History(tx *txn.Txn, run types.RunId, collection, key string, limit int) ([]types.Versioned[[]float32], error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "history", time.Now())
	id, found, err := lookupID(tx, run, collection, key)
	if err != nil || !found {
		return nil, err
	}
	entries := tx.Store().History(encodeDataKey(run, collection, id), limit, nil)
	out := make([]types.Versioned[[]float32], 0, len(entries))
	for _, e := range entries {
		_, vec, _ := decodeVectorValue(e.ValueBytes)
		out = append(out, types.Versioned[[]float32]{Value: vec, Version: e.Version, Timestamp: e.Timestamp})
	}
	return out, nil
}

// Match is one ranked search result.
type Match struct {
	Key   string
	Score float64
	Vec   []float32
}

// Search scores every live vector in collection against query using
// the collection's configured metric and returns the topK best matches,
// best first. Brute-force and single-threaded, matching spec.md's
// determinism requirement for search.
func Search(tx *txn.Txn, run types.RunId, collection string, query []float32, topK int) ([]Match, error) {
	defer metrics.RecordPrimitiveOp(primitiveName, "search", time.Now())
	cfg, found, err := Info(tx, run, collection)
	if err != nil {
		return nil, err
	}
	if !found {
		ref := types.NewVectorRef(run, collection, "")
		return nil, types.New(types.KindNotFound, &ref, "vector collection does not exist")
	}
	if uint32(len(query)) != cfg.Dimension {
		ref := types.NewVectorRef(run, collection, "")
		return nil, types.New(types.KindDimensionMismatch, &ref, "query dimension does not match collection config")
	}

	lo, hi := dataRange(run, collection)
	items, _ := tx.Store().Scan(lo, hi, tx.SnapshotVersion(), 0, nil)
	matches := make([]Match, 0, len(items))
	for _, it := range items {
		if !it.Found {
			continue
		}
		key, vec, _ := decodeVectorValue(it.Value.ValueBytes)
		matches = append(matches, Match{Key: key, Vec: vec, Score: score(cfg.Metric, query, vec)})
	}

	higherIsBetter := cfg.Metric != MetricL2
	sort.Slice(matches, func(i, j int) bool {
		if higherIsBetter {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Score < matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func score(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case MetricDot:
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	default: // cosine
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0
		}
		return dot / (math.Sqrt(na) * math.Sqrt(nb))
	}
}
