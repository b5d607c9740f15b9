package run_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/kv"
	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/run"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{}

func (noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) { return 0, nil }

func newCoord() *txn.Coordinator { return txn.New(mvcc.New(4), noopAppender{}) }

func TestCreateFailsIfExists(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, run.Create(tx2, r, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 2))
	result, err := tx2.Commit()
	require.NoError(t, err)
	assert.False(t, result.Outcomes[0].Applied)
}

func TestLifecycleHappyPath(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, run.Pause(tx2, r, 2))
	require.NoError(t, run.Resume(tx2, r, 3))
	require.NoError(t, run.Complete(tx2, r, 4))
	require.NoError(t, run.Archive(tx2, r, 5))
	_, err = tx2.Commit()
	require.NoError(t, err)

	tx3 := coord.Begin(true)
	m, found, err := run.Get(tx3, r)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, run.StatusArchived, m.Status)
}

func TestArchivedIsTerminal(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	require.NoError(t, run.Complete(tx, r, 2))
	require.NoError(t, run.Archive(tx, r, 3))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	err = run.Resume(tx2, r, 4)
	assert.Error(t, err)
}

func TestOrphanedBehavesLikePaused(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, run.MarkOrphaned(tx2, r, 2))
	_, err = tx2.Commit()
	require.NoError(t, err)

	tx3 := coord.Begin(false)
	require.NoError(t, run.Resume(tx3, r, 3))
	_, err = tx3.Commit()
	require.NoError(t, err)

	tx4 := coord.Begin(true)
	m, _, err := run.Get(tx4, r)
	require.NoError(t, err)
	assert.Equal(t, run.StatusActive, m.Status)
}

func TestQueryFiltersByStatusAndTag(t *testing.T) {
	coord := newCoord()
	a := types.NewRunID("a")
	b := types.NewRunID("b")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, a, "", []string{"prod"}, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	require.NoError(t, run.Create(tx, b, "", []string{"dev"}, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	require.NoError(t, run.Pause(tx, b, 2))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	active, err := run.Query(tx2, run.StatusActive, "", 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	prod, err := run.Query(tx2, "", "prod", 0)
	require.NoError(t, err)
	assert.Len(t, prod, 1)
}

func TestChildrenListsRunsWithMatchingParent(t *testing.T) {
	coord := newCoord()
	parent := types.NewRunID("parent")
	child := types.NewRunID("child")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, parent, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	require.NoError(t, run.Create(tx, child, parent.ID.String(), nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	kids, err := run.Children(tx2, parent, 0)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.True(t, kids[0].Equal(child))
}

func TestDeleteCascadesAcrossPrimitives(t *testing.T) {
	coord := newCoord()
	r := types.NewRunID("a")

	tx := coord.Begin(false)
	require.NoError(t, run.Create(tx, r, "", nil, run.RetentionPolicy{Kind: run.KeepAll}, 1))
	require.NoError(t, kv.Put(tx, r, "k1", []byte("v1")))
	require.NoError(t, kv.Put(tx, r, "k2", []byte("v2")))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, run.Delete(tx2, r))
	_, err = tx2.Commit()
	require.NoError(t, err)

	tx3 := coord.Begin(true)
	_, found, err := run.Get(tx3, r)
	require.NoError(t, err)
	assert.False(t, found)
	keys, err := kv.Keys(tx3, r, 0)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDeleteRejectsDefaultRun(t *testing.T) {
	coord := newCoord()

	tx := coord.Begin(false)
	err := run.Delete(tx, types.DefaultRunID)
	tx.Rollback()

	require.Error(t, err)
	var strataErr *types.Error
	require.ErrorAs(t, err, &strataErr)
	assert.Equal(t, types.KindConstraintViolation, strataErr.Kind)
}
