package retention_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/kv"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/retention"
	"github.com/stratadb-labs/strata-core/pkg/run"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{}

func (noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) { return 0, nil }

func newCoord() *txn.Coordinator { return txn.New(mvcc.New(4), noopAppender{}) }

func TestSweepRunIsNoopForKeepAll(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	for i := 0; i < 5; i++ {
		require.NoError(t, kv.Put(tx, r, "k1", []byte("v")))
	}
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	stats, err := retention.SweepRun(tx2, coord, r)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EntriesTrimmed)
}

func TestSweepRunKeepLastTrimsBeyondDepth(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepLast, N: 2}, 1))
	_, err := tx.Commit()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		tx := coord.Begin(false)
		require.NoError(t, kv.Put(tx, r, "k1", []byte("v")))
		_, err := tx.Commit()
		require.NoError(t, err)
	}

	encKey := keyspace.Encode(types.PrimitiveKV, r, "k1")

	tx2 := coord.Begin(true)
	stats, err := retention.SweepRun(tx2, coord, r)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.EntriesTrimmed)
	assert.Len(t, tx2.Store().History(encKey, 0, nil), 2)
	tx2.Rollback()
}

func TestSweepRunNeverTrimsBelowLowWaterMark(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepLast, N: 1}, 1))
	require.NoError(t, kv.Put(tx, r, "k1", []byte("v0")))
	_, err := tx.Commit()
	require.NoError(t, err)

	// A long-lived reader pins the snapshot taken right after the first
	// write; subsequent writes must not let retention trim history that
	// reader might still need.
	reader := coord.Begin(true)

	for i := 0; i < 4; i++ {
		tx := coord.Begin(false)
		require.NoError(t, kv.Put(tx, r, "k1", []byte("v")))
		_, err := tx.Commit()
		require.NoError(t, err)
	}

	encKey := keyspace.Encode(types.PrimitiveKV, r, "k1")

	sweepTx := coord.Begin(true)
	_, err = retention.SweepRun(sweepTx, coord, r)
	require.NoError(t, err)

	history := sweepTx.Store().History(encKey, 0, nil)
	found := false
	for _, e := range history {
		if e.Version.N == reader.SnapshotVersion().N {
			found = true
		}
	}
	assert.True(t, found, "entry at the pinned reader's snapshot must survive the sweep")

	reader.Rollback()
	sweepTx.Rollback()
}

func TestSweepAllCoversEveryRun(t *testing.T) {
	coord := newCoord()
	a := types.NewRunID("a")
	b := types.NewRunID("b")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, a, "", nil, run.RetentionPolicy{Kind: run.KeepLast, N: 1}, 1))
	require.NoError(t, run.Create(tx, b, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	_, err := tx.Commit()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		tx := coord.Begin(false)
		require.NoError(t, kv.Put(tx, a, "k1", []byte("v")))
		_, err := tx.Commit()
		require.NoError(t, err)
	}

	tx2 := coord.Begin(true)
	results, err := retention.SweepAll(tx2, coord)
	require.NoError(t, err)
	require.Contains(t, results, a.ID.String())
	require.Contains(t, results, b.ID.String())
	assert.Positive(t, results[a.ID.String()].EntriesTrimmed)
	assert.Equal(t, 0, results[b.ID.String()].EntriesTrimmed)
	tx2.Rollback()
}
