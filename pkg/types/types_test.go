package types_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/types"
)

func TestVersionCrossTagNeverEqual(t *testing.T) {
	a := types.TxnId(5)
	b := types.Sequence(5)
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(types.TxnId(5)))
}

func TestEntityRefString(t *testing.T) {
	run := types.NewRunID("demo")
	ref := types.NewEventRef(run, "orders", 12)
	require.Contains(t, ref.String(), "orders")
	require.Contains(t, ref.String(), "12")
}

func TestErrorWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := types.Wrap(types.KindIoError, nil, cause)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, types.IsKind(err, types.KindIoError))
}

func TestVersionConflictCarriesVersions(t *testing.T) {
	ref := types.NewKVRef(types.DefaultRunID, "k")
	err := types.VersionConflict(&ref, types.TxnId(1), types.TxnId(3))
	require.Equal(t, types.KindVersionConflict, err.Kind)
	require.Equal(t, uint64(1), err.Expected.N)
	require.Equal(t, uint64(3), err.Actual.N)
}
