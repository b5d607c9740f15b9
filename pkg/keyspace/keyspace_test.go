package keyspace_test

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	run := types.NewRunID("r1")
	cases := [][]string{
		{"simple-key"},
		{"a", "b"},
		{"with\x00null", "tail"},
		{},
	}
	for _, local := range cases {
		enc := keyspace.Encode(types.PrimitiveEvent, run, local...)
		dec, err := keyspace.Decode(enc)
		require.NoError(t, err)
		require.Equal(t, types.PrimitiveEvent, dec.Kind)
		require.True(t, dec.Run.Equal(run))
		if len(local) == 0 {
			require.Empty(t, dec.Local)
		} else {
			require.Equal(t, local, dec.Local)
		}
	}
}

func TestOrderingPreservesLocalKeyOrder(t *testing.T) {
	run := types.NewRunID("r1")
	keys := []string{"a", "aa", "ab", "b", "ba"}
	var encoded [][]byte
	for _, k := range keys {
		encoded = append(encoded, keyspace.Encode(types.PrimitiveKV, run, k))
	}
	shuffled := append([][]byte{}, encoded...)
	sort.Slice(shuffled, func(i, j int) bool { return bytes.Compare(shuffled[i], shuffled[j]) < 0 })
	require.Equal(t, encoded, shuffled)
}

func TestRangeCoversPrefix(t *testing.T) {
	// Range narrows by whole local-key *segments*, e.g. every sequence
	// under one event stream, not by byte-prefix within a segment.
	run := types.NewRunID("r1")
	lo, hi := keyspace.Range(types.PrimitiveEvent, run, "orders")
	inside := keyspace.Encode(types.PrimitiveEvent, run, "orders", "7")
	outside := keyspace.Encode(types.PrimitiveEvent, run, "payments", "0")

	require.True(t, bytes.Compare(lo, inside) <= 0)
	require.True(t, hi == nil || bytes.Compare(inside, hi) < 0)
	require.True(t, hi != nil && bytes.Compare(outside, hi) >= 0)
}

func TestDisjointAcrossKindAndRun(t *testing.T) {
	run1 := types.NewRunID("r1")
	run2 := types.NewRunID("r2")
	a := keyspace.Encode(types.PrimitiveKV, run1, "k")
	b := keyspace.Encode(types.PrimitiveJSON, run1, "k")
	c := keyspace.Encode(types.PrimitiveKV, run2, "k")
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}
