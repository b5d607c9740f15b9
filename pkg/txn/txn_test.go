package txn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{ appended int }

func (n *noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) {
	n.appended += len(records)
	return 0, nil
}

func putAssign(value []byte) func(uint64, mvcc.StoredValue, bool) ([]byte, types.Version, bool, error) {
	return func(txnID uint64, head mvcc.StoredValue, exists bool) ([]byte, types.Version, bool, error) {
		return value, types.TxnId(txnID), false, nil
	}
}

func testRun() types.RunId { return types.NewRunID("test") }

func TestCommitPublishesToStore(t *testing.T) {
	store := mvcc.New(4)
	appender := &noopAppender{}
	coord := txn.New(store, appender)

	key := keyspace.Encode(types.PrimitiveKV, testRun(), "foo")

	tx := coord.Begin(false)
	require.NoError(t, tx.StageWrite(key, wal.TagKVPut, []byte("bar"), false, nil, putAssign([]byte("bar"))))

	result, err := tx.Commit()
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.True(t, result.Outcomes[0].Applied)
	assert.Equal(t, 3, appender.appended) // begin, put, commit

	val, found := store.GetLatest(key)
	require.True(t, found)
	assert.Equal(t, []byte("bar"), val.ValueBytes)
}

func TestReadYourWritesBeforeCommit(t *testing.T) {
	store := mvcc.New(4)
	coord := txn.New(store, &noopAppender{})
	key := keyspace.Encode(types.PrimitiveKV, testRun(), "foo")

	tx := coord.Begin(false)
	require.NoError(t, tx.StageWrite(key, wal.TagKVPut, []byte("staged"), false, nil, putAssign([]byte("staged"))))

	val, found, err := tx.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("staged"), val.ValueBytes)
}

func TestConcurrentWriterCausesVersionConflict(t *testing.T) {
	store := mvcc.New(4)
	coord := txn.New(store, &noopAppender{})
	key := keyspace.Encode(types.PrimitiveKV, testRun(), "foo")

	// Seed an initial value.
	seed := coord.Begin(false)
	require.NoError(t, seed.StageWrite(key, wal.TagKVPut, []byte("v1"), false, nil, putAssign([]byte("v1"))))
	_, err := seed.Commit()
	require.NoError(t, err)

	// txA reads the key (snapshot before the conflicting write).
	txA := coord.Begin(false)
	_, _, err = txA.Get(key)
	require.NoError(t, err)

	// txB writes and commits first, advancing the head.
	txB := coord.Begin(false)
	require.NoError(t, txB.StageWrite(key, wal.TagKVPut, []byte("v2"), false, nil, putAssign([]byte("v2"))))
	_, err = txB.Commit()
	require.NoError(t, err)

	// txA now stages its own write to the same key and commits; its read-set
	// (key at v1) is stale, so it must conflict.
	require.NoError(t, txA.StageWrite(key, wal.TagKVPut, []byte("v3"), false, nil, putAssign([]byte("v3"))))
	_, err = txA.Commit()
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindVersionConflict))
}

func TestCASFailureSkipsOnlyThatWriteNotWholeTxn(t *testing.T) {
	store := mvcc.New(4)
	coord := txn.New(store, &noopAppender{})
	keyA := keyspace.Encode(types.PrimitiveKV, testRun(), "a")
	keyB := keyspace.Encode(types.PrimitiveKV, testRun(), "b")

	failingCAS := func(head mvcc.StoredValue, exists bool) error {
		return types.New(types.KindConflict, nil, "cas predicate failed")
	}

	tx := coord.Begin(false)
	require.NoError(t, tx.StageWrite(keyA, wal.TagKVPut, []byte("a1"), false, failingCAS, putAssign([]byte("a1"))))
	require.NoError(t, tx.StageWrite(keyB, wal.TagKVPut, []byte("b1"), false, nil, putAssign([]byte("b1"))))

	result, err := tx.Commit()
	require.NoError(t, err)
	assert.False(t, result.Outcomes[0].Applied)
	assert.Error(t, result.Outcomes[0].Err)
	assert.True(t, result.Outcomes[1].Applied)

	_, found := store.GetLatest(keyA)
	assert.False(t, found)
	_, found = store.GetLatest(keyB)
	assert.True(t, found)
}

func TestReadOnlyTransactionNeverTakesCommitLock(t *testing.T) {
	store := mvcc.New(4)
	coord := txn.New(store, &noopAppender{})
	tx := coord.Begin(true)
	result, err := tx.Commit()
	require.NoError(t, err)
	assert.Empty(t, result.Outcomes)
}

func TestRollbackDiscardsWriteSet(t *testing.T) {
	store := mvcc.New(4)
	coord := txn.New(store, &noopAppender{})
	key := keyspace.Encode(types.PrimitiveKV, testRun(), "foo")

	tx := coord.Begin(false)
	require.NoError(t, tx.StageWrite(key, wal.TagKVPut, []byte("v1"), false, nil, putAssign([]byte("v1"))))
	tx.Rollback()
	assert.False(t, tx.IsActive())

	_, found := store.GetLatest(key)
	assert.False(t, found)
}
