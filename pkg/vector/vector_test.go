package vector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/mvcc"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/vector"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

type noopAppender struct{}

func (noopAppender) Append(records []wal.Record, fsyncRequired bool) (int64, error) { return 0, nil }

func newCoord() *txn.Coordinator { return txn.New(mvcc.New(4), noopAppender{}) }
func testRun() types.RunId       { return types.NewRunID("test") }

func TestCreateCollectionFailsIfExists(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, vector.CreateCollection(tx, run, "docs", 3, vector.MetricCosine))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, vector.CreateCollection(tx2, run, "docs", 3, vector.MetricCosine))
	result, err := tx2.Commit()
	require.NoError(t, err)
	assert.False(t, result.Outcomes[0].Applied)
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, vector.CreateCollection(tx, run, "docs", 3, vector.MetricCosine))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	err = vector.Upsert(tx2, run, "docs", "k1", []float32{1, 2}, nil)
	assert.Error(t, err)
}

// TestVectorIdMonotonicity reproduces spec.md §8.4 scenario 5: 10
// upserts get ids 1..=10; deleting all and reinserting 10 more gets
// ids 11..=20.
func TestVectorIdMonotonicity(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, vector.CreateCollection(tx, run, "docs", 2, vector.MetricCosine))
	_, err := tx.Commit()
	require.NoError(t, err)

	// Each new-key upsert stages two writes: the data write (even
	// outcome index) and the key->id mapping write (odd index).
	upsertAll := func(prefix string) []types.Version {
		tx := coord.Begin(false)
		for i := 0; i < 10; i++ {
			require.NoError(t, vector.Upsert(tx, run, "docs", keyFor(prefix, i), []float32{1, 1}, nil))
		}
		result, err := tx.Commit()
		require.NoError(t, err)
		dataVersions := make([]types.Version, 0, 10)
		for i := 0; i < len(result.Outcomes); i += 2 {
			dataVersions = append(dataVersions, result.Outcomes[i].Version)
		}
		return dataVersions
	}

	first := upsertAll("a")
	assert.Equal(t, types.Sequence(1), first[0])
	assert.Equal(t, types.Sequence(10), first[9])

	tx2 := coord.Begin(false)
	for i := 0; i < 10; i++ {
		require.NoError(t, vector.Delete(tx2, run, "docs", keyFor("a", i)))
	}
	_, err = tx2.Commit()
	require.NoError(t, err)

	second := upsertAll("b")
	assert.Equal(t, types.Sequence(11), second[0])
	assert.Equal(t, types.Sequence(20), second[9])
}

func keyFor(prefix string, i int) string {
	return prefix + string(rune('0'+i))
}

func TestUpsertOverwritesAtStableId(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, vector.CreateCollection(tx, run, "docs", 2, vector.MetricCosine))
	require.NoError(t, vector.Upsert(tx, run, "docs", "k1", []float32{1, 0}, nil))
	result, err := tx.Commit()
	require.NoError(t, err)
	firstID := result.Outcomes[1].Version

	tx2 := coord.Begin(false)
	require.NoError(t, vector.Upsert(tx2, run, "docs", "k1", []float32{0, 1}, nil))
	result2, err := tx2.Commit()
	require.NoError(t, err)
	assert.Equal(t, firstID, result2.Outcomes[0].Version)

	tx3 := coord.Begin(true)
	v, found, err := vector.Get(tx3, run, "docs", "k1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []float32{0, 1}, v.Value)
}

func TestSearchRanksByCosineSimilarity(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, vector.CreateCollection(tx, run, "docs", 2, vector.MetricCosine))
	require.NoError(t, vector.Upsert(tx, run, "docs", "same", []float32{1, 0}, nil))
	require.NoError(t, vector.Upsert(tx, run, "docs", "opposite", []float32{-1, 0}, nil))
	require.NoError(t, vector.Upsert(tx, run, "docs", "orthogonal", []float32{0, 1}, nil))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(true)
	matches, err := vector.Search(tx2, run, "docs", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "same", matches[0].Key)
	assert.Equal(t, "opposite", matches[2].Key)
}

func TestDropCollectionRemovesEverything(t *testing.T) {
	coord := newCoord()
	run := testRun()

	tx := coord.Begin(false)
	require.NoError(t, vector.CreateCollection(tx, run, "docs", 2, vector.MetricCosine))
	require.NoError(t, vector.Upsert(tx, run, "docs", "k1", []float32{1, 1}, nil))
	_, err := tx.Commit()
	require.NoError(t, err)

	tx2 := coord.Begin(false)
	require.NoError(t, vector.DropCollection(tx2, run, "docs"))
	_, err = tx2.Commit()
	require.NoError(t, err)

	tx3 := coord.Begin(true)
	exists, err := vector.Exists(tx3, run, "docs")
	require.NoError(t, err)
	assert.False(t, exists)
}
