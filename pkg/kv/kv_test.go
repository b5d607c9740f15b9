package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/kv"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{}

func (noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) { return 0, nil }

func newCoord() *txn.Coordinator {
	return txn.New(mvcc.New(4), noopAppender{})
}

func testRun() types.RunId { return types.NewRunID("test") }

func TestReadYourWritesInTxn(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, kv.Put(tx, run, "k", []byte("v1")))
	got, found, err := kv.Get(tx, run, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v1"), got.Value)

	_, err = tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	got2, found2, err := kv.Get(tx2, run, "k")
	require.NoError(t, err)
	require.True(t, found2)
	assert.Equal(t, []byte("v1"), got2.Value)
	assert.Equal(t, got.Version, got2.Version)
}

func TestDeleteThenGetReturnsAbsent(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, kv.Put(tx, run, "k", []byte("v")))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, kv.Delete(tx2, run, "k"))
	_, err = tx2.Commit()
	require.NoError(t, err)

	tx3 := coord.Begin(true)
	_, found, err := kv.Get(tx3, run, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIncrStartsAtZero(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	v, err := kv.Incr(tx, run, "counter", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)
	_, err = tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	v2, err := kv.Incr(tx2, run, "counter", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 8, v2)
}

func TestCASValueMismatchFailsWithoutAbortingTxn(t *testing.T) {
	coord := newCoord()
	run := testRun()

	seed := coord.Begin(false)
	require.NoError(t, kv.Put(seed, run, "k", []byte("A")))
	_, err := seed.Commit()
	require.NoError(t, err)

	tx := coord.Begin(false)
	opt := kv.CASOption{ExpectedValue: []byte("WRONG")}
	require.NoError(t, kv.CAS(tx, run, "k", opt, []byte("B")))
	require.NoError(t, kv.Put(tx, run, "other", []byte("still-applies")))

	result, err := tx.Commit()
	require.NoError(t, err)
	assert.False(t, result.Outcomes[0].Applied)
	assert.True(t, result.Outcomes[1].Applied)
}

func TestKeysListsUnderRun(t *testing.T) {
	coord := newCoord()
	run := testRun()
	other := types.NewRunID("other")

	tx := coord.Begin(false)
	require.NoError(t, kv.Put(tx, run, "a", []byte("1")))
	require.NoError(t, kv.Put(tx, run, "b", []byte("2")))
	require.NoError(t, kv.Put(tx, other, "a", []byte("x")))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	keys, err := kv.Keys(tx2, run, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}
