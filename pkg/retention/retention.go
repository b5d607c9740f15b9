package retention

import (
	"github.com/stratadb-labs/strata-core/pkg/keyspace"
	"github.com/stratadb-labs/strata-core/pkg/metrics"
	"github.com/stratadb-labs/strata-core/pkg/run"
	"github.com/stratadb-labs/strata-core/pkg/txn"
	"github.com/stratadb-labs/strata-core/pkg/types"
)

// everyPrimitive mirrors run.Delete's partition list: every primitive
// kind a run's data can live under, excluding the run index itself:
// a run's metadata chain is never trimmed by a sweep.
var everyPrimitive = []types.PrimitiveType{
	types.PrimitiveKV,
	types.PrimitiveJSON,
	types.PrimitiveEvent,
	types.PrimitiveState,
	types.PrimitiveTrace,
	types.PrimitiveVector,
}

// Stats reports the outcome of one run's sweep.
type Stats struct {
	KeysVisited    int
	EntriesTrimmed int
}

// SweepRun applies runID's retention policy to every key stored under
// it. KeepAll (and an unset policy) is a no-op. Nothing is ever
// trimmed at or above the coordinator's current low-water mark,
// regardless of what the policy alone would allow.
func SweepRun(tx *txn.Txn, coord *txn.Coordinator, runID types.RunId) (Stats, error) {
	policy, err := run.Retention(tx, runID)
	if err != nil {
		return Stats{}, err
	}
	if policy.Kind == run.KeepAll || policy.Kind == "" {
		return Stats{}, nil
	}

	low := coord.LowWaterMark()
	store := tx.Store()
	var stats Stats
	for _, kind := range everyPrimitive {
		lo, hi := keyspace.Range(kind, runID)
		var evicted int
		for _, key := range store.ChainKeys(lo, hi) {
			stats.KeysVisited++
			var removed int
			switch policy.Kind {
			case run.KeepLast, run.KeepVersions:
				removed = store.TrimChainToDepth(key, int(policy.N), low)
			case run.KeepSince:
				removed = store.TrimChainBefore(key, policy.Since, low)
			}
			stats.EntriesTrimmed += removed
			evicted += removed
		}
		if evicted > 0 {
			metrics.RetentionEntriesEvicted.WithLabelValues(kind.String()).Add(float64(evicted))
		}
	}
	metrics.RetentionSweepsTotal.Inc()
	return stats, nil
}

// SweepAll runs SweepRun over every run the database knows about — the
// opportunistic pass spec.md §4.7 describes (no scheduled compaction
// cycle is specified). A run whose policy lookup fails is skipped
// rather than aborting the whole sweep.
func SweepAll(tx *txn.Txn, coord *txn.Coordinator) (map[string]Stats, error) {
	ids, err := run.List(tx, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Stats, len(ids))
	for _, id := range ids {
		st, err := SweepRun(tx, coord, id)
		if err != nil {
			continue
		}
		out[id.ID.String()] = st
	}
	return out, nil
}
