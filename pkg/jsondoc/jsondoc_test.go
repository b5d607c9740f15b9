package jsondoc_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/jsondoc"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{}

func (noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) { return 0, nil }

func newCoord() *txn.Coordinator { return txn.New(mvcc.New(4), noopAppender{}) }
func testRun() types.RunId       { return types.NewRunID("test") }

func TestSetAtPathCreatesDocument(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, jsondoc.Set(tx, run, "doc1", "user.name", json.RawMessage(`"alice"`)))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	v, found, err := jsondoc.Query(tx2, run, "doc1", "user.name")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `"alice"`, string(v))
}

func TestReadAfterWriteInsideTxnObservesRewrittenDocument(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, jsondoc.Set(tx, run, "doc1", "a.b", json.RawMessage(`1`)))
	v, found, err := jsondoc.Query(tx, run, "doc1", "a.b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", string(v))
}

func TestOverlappingPathWritesWithinOneTxnAreRejected(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, jsondoc.Set(tx, run, "doc1", "a.b", json.RawMessage(`1`)))
	err := jsondoc.Set(tx, run, "doc1", "a.b.c", json.RawMessage(`2`))
	assert.Error(t, err)

	err2 := jsondoc.Set(tx, run, "doc1", "a", json.RawMessage(`{}`))
	assert.Error(t, err2)
}

func TestDisjointPathWritesWithinOneTxnBothApply(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, jsondoc.Set(tx, run, "doc1", "a", json.RawMessage(`1`)))
	require.NoError(t, jsondoc.Set(tx, run, "doc1", "b", json.RawMessage(`2`)))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	va, _, err := jsondoc.Query(tx2, run, "doc1", "a")
	require.NoError(t, err)
	vb, _, err := jsondoc.Query(tx2, run, "doc1", "b")
	require.NoError(t, err)
	assert.Equal(t, "1", string(va))
	assert.Equal(t, "2", string(vb))
}

func TestArrayPushAndPop(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, jsondoc.ArrayPush(tx, run, "doc1", "items", json.RawMessage(`"x"`)))
	_, err := tx.Commit()
	require.NoError(t, err)

	// A second push to the same path in the same transaction would be an
	// overlapping path write, so it gets its own transaction.
	txb := coord.Begin(false)
	require.NoError(t, jsondoc.ArrayPush(txb, run, "doc1", "items", json.RawMessage(`"y"`)))
	_, err = txb.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	popped, err := jsondoc.ArrayPop(tx2, run, "doc1", "items")
	require.NoError(t, err)
	assert.Equal(t, `"y"`, string(popped))
	_, err = tx2.Commit()
	require.NoError(t, err)
}

func TestIncrement(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	v, err := jsondoc.Increment(tx, run, "doc1", "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
	_, err = tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	v2, err := jsondoc.Increment(tx2, run, "doc1", "counter", 3)
	require.NoError(t, err)
	assert.Equal(t, 8.0, v2)
}

func TestDocumentExceedingDepthLimitRejected(t *testing.T) {
	coord := newCoord()
	run := testRun()

	nested := "1"
	for i := 0; i < 101; i++ {
		nested = `{"n":` + nested + `}`
	}

	tx := coord.Begin(false)
	err := jsondoc.Set(tx, run, "doc1", "", json.RawMessage(nested))
	assert.Error(t, err)
}

func TestPathExceedingMaxLengthRejected(t *testing.T) {
	coord := newCoord()
	run := testRun()

	segs := make([]string, 0, 300)
	for i := 0; i < 300; i++ {
		segs = append(segs, "a")
	}
	path := strings.Join(segs, ".")

	tx := coord.Begin(false)
	err := jsondoc.Set(tx, run, "doc1", path, json.RawMessage(`1`))
	assert.Error(t, err)
}

func TestListAndCount(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, jsondoc.Set(tx, run, "doc1", "", json.RawMessage(`{"a":1}`)))
	require.NoError(t, jsondoc.Set(tx, run, "doc2", "", json.RawMessage(`{"b":2}`)))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	ids, err := jsondoc.List(tx2, run, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1", "doc2"}, ids)

	count, err := jsondoc.Count(tx2, run)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
