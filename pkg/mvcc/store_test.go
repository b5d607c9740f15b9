package mvcc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/types"
)

func TestPutGetLatest(t *testing.T) {
	s := mvcc.New(4)
	run := types.NewRunID("r")
	key := keyspace.Encode(types.PrimitiveKV, run, "k")

	s.Put(key, []byte("v1"), types.TxnId(1), 100, false)
	got, ok := s.GetLatest(key)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got.ValueBytes)

	s.Put(key, []byte("v2"), types.TxnId(2), 200, false)
	got, ok = s.GetLatest(key)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got.ValueBytes)
}

func TestTombstoneHidesFromGetLatestButVisibleInHistory(t *testing.T) {
	s := mvcc.New(1)
	run := types.NewRunID("r")
	key := keyspace.Encode(types.PrimitiveKV, run, "k")

	s.Put(key, []byte("v1"), types.TxnId(1), 100, false)
	s.Put(key, nil, types.TxnId(2), 200, true)

	_, ok := s.GetLatest(key)
	assert.False(t, ok)

	hist := s.History(key, 0, nil)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Tombstone)
	assert.False(t, hist[1].Tombstone)
}

func TestGetAtSeesSnapshotConsistently(t *testing.T) {
	s := mvcc.New(1)
	run := types.NewRunID("r")
	key := keyspace.Encode(types.PrimitiveKV, run, "k")

	s.Put(key, []byte("v1"), types.TxnId(1), 100, false)
	s.Put(key, []byte("v2"), types.TxnId(5), 200, false)

	v, ok := s.GetAt(key, types.TxnId(3))
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v.ValueBytes)

	v, ok = s.GetAt(key, types.TxnId(5))
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v.ValueBytes)

	_, ok = s.GetAt(key, types.TxnId(0))
	assert.False(t, ok)
}

func TestPutPanicsOnNonMonotoneVersion(t *testing.T) {
	s := mvcc.New(1)
	run := types.NewRunID("r")
	key := keyspace.Encode(types.PrimitiveKV, run, "k")
	s.Put(key, []byte("v1"), types.TxnId(5), 100, false)

	assert.Panics(t, func() {
		s.Put(key, []byte("v0"), types.TxnId(3), 100, false)
	})
}

func TestScanOrdersAcrossShards(t *testing.T) {
	s := mvcc.New(8)
	run := types.NewRunID("r")
	keysIn := []string{"a", "b", "c", "d", "e"}
	for i, k := range keysIn {
		s.Put(keyspace.Encode(types.PrimitiveKV, run, k), []byte(k), types.TxnId(uint64(i+1)), types.Timestamp(i), false)
	}
	lo, hi := keyspace.Range(types.PrimitiveKV, run)
	items, next := s.Scan(lo, hi, types.TxnId(100), 0, nil)
	require.Nil(t, next)
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, keysIn[i], string(it.Value.ValueBytes))
	}
}

func TestScanBudgetTruncationIsPrefix(t *testing.T) {
	s := mvcc.New(4)
	run := types.NewRunID("r")
	for i := 0; i < 20; i++ {
		k := string(rune('a' + i))
		s.Put(keyspace.Encode(types.PrimitiveKV, run, k), []byte(k), types.TxnId(uint64(i+1)), 0, false)
	}
	lo, hi := keyspace.Range(types.PrimitiveKV, run)
	full, _ := s.Scan(lo, hi, types.TxnId(100), 0, nil)
	limited, next := s.Scan(lo, hi, types.TxnId(100), 5, nil)
	require.NotNil(t, next)
	require.Len(t, limited, 5)
	for i := range limited {
		assert.Equal(t, full[i].Key, limited[i].Key)
	}
}
