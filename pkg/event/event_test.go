package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/event"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{}

func (noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) { return 0, nil }

func newCoord() *txn.Coordinator { return txn.New(mvcc.New(4), noopAppender{}) }
func testRun() types.RunId       { return types.NewRunID("test") }

func TestAppendSequencesStartAtZeroAndAreContiguous(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, event.Append(tx, run, "s", []byte("a")))
	require.NoError(t, event.Append(tx, run, "s", []byte("b")))
	result, err := tx.Commit()
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, types.Sequence(0), result.Outcomes[0].Version)
	assert.Equal(t, types.Sequence(1), result.Outcomes[1].Version)

	tx2 := coord.Begin(false)
	require.NoError(t, event.Append(tx2, run, "s", []byte("c")))
	result2, err := tx2.Commit()
	require.NoError(t, err)
	assert.Equal(t, types.Sequence(2), result2.Outcomes[0].Version)
}

func TestBatchAppendChainsWithinOneCommit(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, event.BatchAppend(tx, run, "s", [][]byte{[]byte("a"), []byte("b"), []byte("c")}))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	brk, err := event.VerifyChain(tx2, run, "s")
	require.NoError(t, err)
	assert.Nil(t, brk)

	got, err := event.Len(tx2, run, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 3, got)
}

func TestConcurrentAppendsToSameStreamDoNotConflict(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx1 := coord.Begin(false)
	require.NoError(t, event.Append(tx1, run, "s", []byte("from-tx1")))

	tx2 := coord.Begin(false)
	require.NoError(t, event.Append(tx2, run, "s", []byte("from-tx2")))

	_, err := tx1.Commit()
	require.NoError(t, err)
	// tx2 started before tx1 committed but staged no reads on the
	// stream's head, so its dynamic append must not abort on conflict.
	_, err = tx2.Commit()
	require.NoError(t, err)

	tx3 := coord.Begin(true)
	n, err := event.Len(tx3, run, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRangeAndRevRange(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, event.BatchAppend(tx, run, "s", [][]byte{[]byte("a"), []byte("b"), []byte("c")}))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	forward, err := event.Range(tx2, run, "s", 0, 3, 0)
	require.NoError(t, err)
	require.Len(t, forward, 3)
	assert.Equal(t, []byte("a"), forward[0].Value)
	assert.Equal(t, []byte("c"), forward[2].Value)

	backward, err := event.RevRange(tx2, run, "s", 0, 2, 0)
	require.NoError(t, err)
	require.Len(t, backward, 3)
	assert.Equal(t, []byte("c"), backward[0].Value)
	assert.Equal(t, []byte("a"), backward[2].Value)
}

func TestStreamsListsDistinctStreamNames(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, event.Append(tx, run, "alpha", []byte("1")))
	require.NoError(t, event.Append(tx, run, "beta", []byte("1")))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	names, err := event.Streams(tx2, run)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}
