package strata_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/kv"
	"github.com/stratadb-labs/strata-core/pkg/run"
	"github.com/stratadb-labs/strata-core/pkg/strata"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

func TestEphemeralDatabaseReadsBackCommittedWrite(t *testing.T) {
	db, err := strata.Open(strata.Config{Ephemeral: true})
	require.NoError(t, err)
	defer db.Close()

	tx := db.Begin(false)
	require.NoError(t, kv.Put(tx, strata.DefaultRun(), "k1", []byte("v1")))
	_, err = tx.Commit()
	require.NoError(t, err)

	tx2 := db.Begin(true)
	got, ok, err := kv.Get(tx2, strata.DefaultRun(), "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got.Value)
}

func TestCloseAndReopenRecoversWrittenData(t *testing.T) {
	dir := t.TempDir()
	r := strata.DefaultRun()

	db, err := strata.Open(strata.Config{DataDir: dir, WAL: wal.Config{Mode: wal.DurabilityStrict}})
	require.NoError(t, err)

	tx := db.Begin(false)
	require.NoError(t, kv.Put(tx, r, "a", []byte("1")))
	require.NoError(t, kv.Put(tx, r, "b", []byte("2")))
	_, err = tx.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := strata.Open(strata.Config{DataDir: dir, WAL: wal.Config{Mode: wal.DurabilityStrict}})
	require.NoError(t, err)
	defer reopened.Close()

	tx2 := reopened.Begin(true)
	got, ok, err := kv.Get(tx2, r, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got.Value)

	got2, ok, err := kv.Get(tx2, r, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), got2.Value)
}

func TestCheckpointThenReopenUsesSnapshotPath(t *testing.T) {
	dir := t.TempDir()
	r := strata.DefaultRun()

	db, err := strata.Open(strata.Config{DataDir: dir, WAL: wal.Config{Mode: wal.DurabilityStrict}})
	require.NoError(t, err)

	tx := db.Begin(false)
	require.NoError(t, kv.Put(tx, r, "a", []byte("pre-snapshot")))
	_, err = tx.Commit()
	require.NoError(t, err)

	require.NoError(t, db.Checkpoint())

	tx2 := db.Begin(false)
	require.NoError(t, kv.Put(tx2, r, "b", []byte("post-snapshot")))
	_, err = tx2.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "snapshots", "*.snap"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	reopened, err := strata.Open(strata.Config{DataDir: dir, WAL: wal.Config{Mode: wal.DurabilityStrict}})
	require.NoError(t, err)
	defer reopened.Close()

	tx3 := reopened.Begin(true)
	gotA, ok, err := kv.Get(tx3, r, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("pre-snapshot"), gotA.Value)

	gotB, ok, err := kv.Get(tx3, r, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("post-snapshot"), gotB.Value)
}

func TestOpenMarksActiveRunsOrphaned(t *testing.T) {
	dir := t.TempDir()
	rid := types.NewRunID("crash-mid-run")

	db, err := strata.Open(strata.Config{DataDir: dir, WAL: wal.Config{Mode: wal.DurabilityStrict}})
	require.NoError(t, err)

	tx := db.Begin(false)
	require.NoError(t, run.Create(tx, rid, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 0))
	_, err = tx.Commit()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := strata.Open(strata.Config{DataDir: dir, WAL: wal.Config{Mode: wal.DurabilityStrict}})
	require.NoError(t, err)
	defer reopened.Close()

	tx2 := reopened.Begin(true)
	meta, ok, err := run.Get(tx2, rid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run.StatusOrphaned, meta.Status)
}

func TestTempDatabaseClosesCleanly(t *testing.T) {
	db, err := strata.Open(strata.Config{Temp: true, WAL: wal.Config{Mode: wal.DurabilityNone}})
	require.NoError(t, err)

	tx := db.Begin(false)
	require.NoError(t, kv.Put(tx, strata.DefaultRun(), "k", []byte("v")))
	_, err = tx.Commit()
	require.NoError(t, err)

	require.NoError(t, db.Close())
}
