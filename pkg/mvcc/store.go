package mvcc

import (
	"bytes"
	"container/heap"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/types"
)

// StoredValue is one entry in a version chain: spec.md §3.3's
// { value_bytes, version, timestamp, tombstone_flag }.
//
// Version here is always the commit-assigned TxnId — the storage
// layer's notion of "version" is the globally monotone commit id, not
// a primitive's domain-specific counter (event sequence, state
// counter, vector id). Those are carried in the typed key or in
// ValueBytes by the primitive substrate, reported on the commit's
// WriteOutcome, and surfaced as the public Version on the
// Versioned[T] a primitive returns to its caller. See DESIGN.md,
// "chain version vs domain version".
type StoredValue struct {
	ValueBytes []byte
	Version    types.Version
	Timestamp  types.Timestamp
	Tombstone  bool
}

type versionChain struct {
	key     []byte // encoded typed key
	entries []StoredValue
}

type shard struct {
	mu     sync.RWMutex
	chains map[string]*versionChain
	order  []string // keys present, kept sorted for ordered scans
}

// Store is the sharded MVCC map from typed key to version chain.
type Store struct {
	shards []*shard
}

// New creates a Store with the given shard count. shardCount must be
// > 0; a typical default is runtime.GOMAXPROCS(0) * 4.
func New(shardCount int) *Store {
	if shardCount <= 0 {
		shardCount = 1
	}
	s := &Store{shards: make([]*shard, shardCount)}
	for i := range s.shards {
		s.shards[i] = &shard{chains: make(map[string]*versionChain)}
	}
	return s
}

func (s *Store) shardFor(key []byte) *shard {
	h := fnv.New64a()
	_, _ = h.Write(key)
	return s.shards[h.Sum64()%uint64(len(s.shards))]
}

// Put appends a new head to key's version chain. version must be
// strictly greater than the chain's current head version (or the
// chain must be empty); violating this is a fatal logic error
// indicating a bug in the commit coordinator, per spec.md §4.2, and
// panics rather than returning an error.
func (s *Store) Put(key []byte, valueBytes []byte, version types.Version, ts types.Timestamp, tombstone bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	ks := string(key)
	ch, ok := sh.chains[ks]
	if !ok {
		ch = &versionChain{key: append([]byte(nil), key...)}
		sh.chains[ks] = ch
		insertSorted(&sh.order, ks)
	} else if len(ch.entries) > 0 && !ch.entries[0].Version.Less(version) {
		panic("mvcc: non-monotone version write to " + ks)
	}
	ch.entries = append([]StoredValue{{
		ValueBytes: valueBytes,
		Version:    version,
		Timestamp:  ts,
		Tombstone:  tombstone,
	}}, ch.entries...)
}

func insertSorted(order *[]string, key string) {
	i := sort.SearchStrings(*order, key)
	*order = append(*order, "")
	copy((*order)[i+1:], (*order)[i:])
	(*order)[i] = key
}

// HeadVersion returns the version of the chain head regardless of
// whether it is a tombstone — used by pkg/txn's OCC validation, which
// must detect "this key was deleted since my snapshot" as a change
// just like any other write.
func (s *Store) HeadVersion(key []byte) (types.Version, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ch, ok := sh.chains[string(key)]
	if !ok || len(ch.entries) == 0 {
		return types.Version{}, false
	}
	return ch.entries[0].Version, true
}

// GetLatest returns the chain head if it is not a tombstone.
func (s *Store) GetLatest(key []byte) (StoredValue, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ch, ok := sh.chains[string(key)]
	if !ok || len(ch.entries) == 0 {
		return StoredValue{}, false
	}
	head := ch.entries[0]
	if head.Tombstone {
		return StoredValue{}, false
	}
	return head, true
}

// GetAt returns the newest entry in key's chain whose version is <=
// requested. Unlike GetLatest, a tombstone at that position IS
// returned (visible as a delete at that snapshot) rather than hidden.
func (s *Store) GetAt(key []byte, requested types.Version) (StoredValue, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ch, ok := sh.chains[string(key)]
	if !ok {
		return StoredValue{}, false
	}
	for _, e := range ch.entries {
		if e.Version.N <= requested.N {
			return e, true
		}
	}
	return StoredValue{}, false
}

// History returns a newest-first slice of key's chain, optionally
// bounded by limit (0 = unbounded) and by beforeVersion (exclusive,
// nil = no bound).
func (s *Store) History(key []byte, limit int, beforeVersion *types.Version) []StoredValue {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ch, ok := sh.chains[string(key)]
	if !ok {
		return nil
	}
	out := make([]StoredValue, 0, len(ch.entries))
	for _, e := range ch.entries {
		if beforeVersion != nil && e.Version.N >= beforeVersion.N {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// ScanItem is one materialized result from Scan: the encoded typed
// key plus the value visible at the snapshot version, or absent if
// the key didn't exist yet / was a tombstone at that version.
type ScanItem struct {
	Key   []byte
	Value StoredValue
	Found bool
}

// heapEntry is one shard's current cursor position during a Scan merge.
type heapEntry struct {
	shardIdx int
	pos      int
	key      string
}

type mergeHeap []heapEntry

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool   { return h[i].key < h[j].key }
func (h mergeHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{})  { *h = append(*h, x.(heapEntry)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scan iterates typed keys in [lo, hi) order (hi == nil means
// unbounded), materializing the snapshot read at snapshotVersion for
// each. It merges across all shards via a k-way merge so result order
// matches the global typed-key order despite hash partitioning.
// cursor, if non-nil, resumes after the given key. limit bounds the
// number of items returned (0 = unbounded); nextCursor is non-nil iff
// the scan was truncated by limit.
func (s *Store) Scan(lo, hi []byte, snapshotVersion types.Version, limit int, cursor []byte) (items []ScanItem, nextCursor []byte) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MVCCScanDuration)

	type cursorShard struct {
		keys []string
		pos  int
	}
	shardCursors := make([]cursorShard, len(s.shards))

	for i, sh := range s.shards {
		sh.mu.RLock()
		keys := make([]string, 0, len(sh.order))
		for _, k := range sh.order {
			kb := []byte(k)
			if bytes.Compare(kb, lo) < 0 {
				continue
			}
			if hi != nil && bytes.Compare(kb, hi) >= 0 {
				continue
			}
			if cursor != nil && bytes.Compare(kb, cursor) <= 0 {
				continue
			}
			keys = append(keys, k)
		}
		sh.mu.RUnlock()
		shardCursors[i] = cursorShard{keys: keys}
	}

	h := &mergeHeap{}
	heap.Init(h)
	for i, sc := range shardCursors {
		if len(sc.keys) > 0 {
			heap.Push(h, heapEntry{shardIdx: i, pos: 0, key: sc.keys[0]})
		}
	}

	for h.Len() > 0 {
		if limit > 0 && len(items) >= limit {
			// Cursor is the last key returned (spec.md §4.2); the next
			// call skips keys <= cursor.
			nextCursor = items[len(items)-1].Key
			return items, nextCursor
		}
		top := heap.Pop(h).(heapEntry)
		keyStr := shardCursors[top.shardIdx].keys[top.pos]
		val, found := s.GetAt([]byte(keyStr), snapshotVersion)
		items = append(items, ScanItem{Key: []byte(keyStr), Value: val, Found: found && !val.Tombstone})

		nextPos := top.pos + 1
		if nextPos < len(shardCursors[top.shardIdx].keys) {
			heap.Push(h, heapEntry{shardIdx: top.shardIdx, pos: nextPos, key: shardCursors[top.shardIdx].keys[nextPos]})
		}
	}
	return items, nil
}

// ChainKeys returns every encoded typed key with a chain in [lo, hi),
// independent of any snapshot version — used by pkg/retention to walk
// every key under a run rather than only what one snapshot can see.
func (s *Store) ChainKeys(lo, hi []byte) [][]byte {
	var out [][]byte
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, k := range sh.order {
			kb := []byte(k)
			if bytes.Compare(kb, lo) < 0 {
				continue
			}
			if hi != nil && bytes.Compare(kb, hi) >= 0 {
				continue
			}
			out = append(out, append([]byte(nil), kb...))
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i], out[j]) < 0 })
	return out
}

// TrimChainToDepth drops the oldest entries of key's chain beyond the
// newest maxDepth. An entry is dropped only when the next newer entry
// is at or below lowWaterMark (the oldest version any open snapshot
// might still read), so a snapshot at the mark keeps the entry it
// reads; the sole remaining entry is never dropped. It reports how many
// entries were removed.
func (s *Store) TrimChainToDepth(key []byte, maxDepth int, lowWaterMark types.Version) int {
	if maxDepth <= 0 {
		return 0
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	ch, ok := sh.chains[string(key)]
	if !ok || len(ch.entries) <= maxDepth {
		return 0
	}
	// entries is newest-first; shrink cut from the tail (oldest) toward
	// maxDepth, but never past an entry an active snapshot might still
	// need.
	cut := len(ch.entries)
	for cut > maxDepth && ch.entries[cut-2].Version.N <= lowWaterMark.N {
		cut--
	}
	if cut >= len(ch.entries) {
		return 0
	}
	removed := len(ch.entries) - cut
	ch.entries = ch.entries[:cut]
	return removed
}

// TrimChainBefore drops every entry of key's chain older than ts,
// subject to the same low-water-mark and keep-at-least-one floor as
// TrimChainToDepth.
func (s *Store) TrimChainBefore(key []byte, ts types.Timestamp, lowWaterMark types.Version) int {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	ch, ok := sh.chains[string(key)]
	if !ok || len(ch.entries) <= 1 {
		return 0
	}
	cut := len(ch.entries)
	for cut > 1 {
		e := ch.entries[cut-1]
		if e.Timestamp >= ts || ch.entries[cut-2].Version.N > lowWaterMark.N {
			break
		}
		cut--
	}
	if cut >= len(ch.entries) {
		return 0
	}
	removed := len(ch.entries) - cut
	ch.entries = ch.entries[:cut]
	return removed
}

// RawHead returns key's chain head regardless of whether it is a
// tombstone — used by pkg/snapshot, which must capture a deleted key's
// tombstone state rather than treat it as simply absent.
func (s *Store) RawHead(key []byte) (StoredValue, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ch, ok := sh.chains[string(key)]
	if !ok || len(ch.entries) == 0 {
		return StoredValue{}, false
	}
	return ch.entries[0], true
}

// Exists reports whether key has a non-tombstone head.
func (s *Store) Exists(key []byte) bool {
	_, ok := s.GetLatest(key)
	return ok
}

// ShardCount returns the number of shards the store was created with.
func (s *Store) ShardCount() int { return len(s.shards) }

// ChainCount returns the total number of distinct typed keys with a
// version chain, across every shard — used by pkg/metrics, which
// otherwise has no cheap way to report store size without a full scan.
func (s *Store) ChainCount() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.chains)
		sh.mu.RUnlock()
	}
	return total
}
