package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/state"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{}

func (noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) { return 0, nil }

func newCoord() *txn.Coordinator { return txn.New(mvcc.New(4), noopAppender{}) }
func testRun() types.RunId       { return types.NewRunID("test") }

func TestInitFailsIfCellExists(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, state.Init(tx, run, "c", []byte("A")))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, state.Init(tx2, run, "c", []byte("B")))
	result, err := tx2.Commit()
	require.NoError(t, err)
	assert.False(t, result.Outcomes[0].Applied)
}

// TestABASafeCAS reproduces spec.md §8.4 scenario 2: a sequence of
// successful CAS calls advances the counter, and a stale CAS against
// an outdated counter fails even though the underlying value at that
// counter would otherwise match.
func TestABASafeCAS(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx0 := coord.Begin(false)
	require.NoError(t, state.Init(tx0, run, "c", []byte("A")))
	_, err := tx0.Commit()
	require.NoError(t, err)

	tx1 := coord.Begin(false)
	require.NoError(t, state.CAS(tx1, run, "c", 1, []byte("B")))
	r1, err := tx1.Commit()
	require.NoError(t, err)
	require.True(t, r1.Outcomes[0].Applied)

	tx2 := coord.Begin(false)
	require.NoError(t, state.CAS(tx2, run, "c", 2, []byte("A")))
	r2, err := tx2.Commit()
	require.NoError(t, err)
	require.True(t, r2.Outcomes[0].Applied)

	tx3 := coord.Begin(false)
	require.NoError(t, state.CAS(tx3, run, "c", 1, []byte("C")))
	r3, err := tx3.Commit()
	require.NoError(t, err)
	assert.False(t, r3.Outcomes[0].Applied)
}

func TestSetIncrementsCounterEachWrite(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, state.Set(tx, run, "c", []byte("1")))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, state.Set(tx2, run, "c", []byte("2")))
	_, err = tx2.Commit()
	require.NoError(t, err)

	tx3 := coord.Begin(true)
	v, found, err := state.Get(tx3, run, "c")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.Counter(2), v.Version)
	assert.Equal(t, []byte("2"), v.Value)
}
